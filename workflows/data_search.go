package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
)

// searchDataWarningThreshold is how often DataSearch logs a scalability
// warning as it accumulates rows across pages.
const searchDataWarningThreshold = 500_000

// tsToGoCast maps a logical table column's declared data type to the
// function DataSearch uses to cast that column's raw compact values.
var tsToGoCast = map[string]func(interface{}) (interface{}, error){
	"VARCHAR":   castString,
	"CHAR":      castString,
	"DOUBLE":    castFloat,
	"FLOAT":     castFloat,
	"BOOL":      castBool,
	"INT32":     castInt,
	"INT64":     castInt,
	"DATE":      castDate,
	"DATE_TIME": castDate,
	"TIMESTAMP": castFloat,
}

// DataSearch runs a Search TML query against worksheet (a logical
// table's GUID or name), paging the COMPACT-format search endpoint
// until a short page signals the result set is exhausted. Each
// returned row is zipped against its declared column names and cast to
// the type the worksheet's own column metadata declares for that
// column, falling back to a leading aggregation-prefix match ("total
// revenue" against column "revenue") and finally to the raw value when
// no column match can be found.
//
// Extracting an entire worksheet through Search this way does not
// scale; a warning is logged every 500k rows accumulated.
func DataSearch(ctx context.Context, client *apiclient.Client, query, worksheet string, logger *logrus.Entry) (columns []string, rows []map[string]interface{}, err error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	tableGUID, columnTypes, err := client.MetadataColumnInfo(ctx, worksheet)
	if err != nil {
		return nil, nil, fmt.Errorf("workflows: data search: %w", err)
	}

	var named []map[string]interface{}
	var columnNames []string

	for {
		page, err := client.SearchData(ctx, query, tableGUID, len(named), apiclient.SearchDataBatchSize)
		if err != nil {
			return nil, nil, fmt.Errorf("workflows: data search: %w", err)
		}
		if columnNames == nil {
			columnNames = page.Columns
		}

		for _, compact := range page.Rows {
			named = append(named, zipCompactRow(compact, columnNames))
		}

		if len(page.Rows) < apiclient.SearchDataBatchSize {
			break
		}

		if len(named)%searchDataWarningThreshold == 0 {
			logger.WithField("rows", humanize.Comma(int64(len(named)))).
				Warn("using search to extract this many rows is not scalable, consider a filter or extracting directly from the data source")
		}
	}

	castRows(named, columnTypes, logger)

	return columnNames, named, nil
}

// zipCompactRow pairs each positional compact value with its declared
// column name, unwrapping the {"v":{"s":...}} envelope the platform
// wraps some cells (TIMESTAMP/DATE_TIME) in under COMPACT format.
func zipCompactRow(compact []interface{}, columnNames []string) map[string]interface{} {
	row := make(map[string]interface{}, len(compact))
	for i, value := range compact {
		if i >= len(columnNames) {
			break
		}
		row[columnNames[i]] = unwrapCompactValue(value)
	}
	return row
}

func unwrapCompactValue(value interface{}) interface{} {
	envelope, ok := value.(map[string]interface{})
	if !ok {
		return value
	}
	v, ok := envelope["v"].(map[string]interface{})
	if !ok {
		return value
	}
	if s, ok := v["s"]; ok {
		return s
	}
	return value
}

// castRows casts every non-nil cell in rows to the Go type its column
// type declares, in place. A column that can't be matched to a type, or
// whose declared type has no cast mapping, is logged once and left as
// the raw value from the response.
func castRows(rows []map[string]interface{}, columnTypes map[string]string, logger *logrus.Entry) {
	warned := make(map[string]bool)

	for _, row := range rows {
		for column, value := range row {
			if value == nil {
				continue
			}

			columnType, matched := matchColumnType(column, columnTypes)
			if !matched {
				if !warned[column] {
					logger.WithField("column", column).Warn("could not match column to a worksheet column, leaving value as-is")
					warned[column] = true
				}
				continue
			}
			castFn, known := tsToGoCast[columnType]
			if !known {
				if !warned[column] {
					logger.WithField("column", column).WithField("column_type", columnType).
						Warn("could not find a cast for this column's declared type, leaving value as-is")
					warned[column] = true
				}
				continue
			}

			cast, err := castFn(value)
			if err != nil {
				if !warned[column] {
					logger.WithError(err).WithField("column", column).Warn("could not cast column value, leaving value as-is")
					warned[column] = true
				}
				continue
			}
			row[column] = cast
		}
	}
}

// matchColumnType finds column's declared data type, falling back to
// matching against an aggregation-prefixed name ("total revenue"
// contains "revenue") the way the platform names aggregated Search
// result columns.
func matchColumnType(column string, columnTypes map[string]string) (string, bool) {
	if t, ok := columnTypes[column]; ok {
		return t, true
	}
	for name, t := range columnTypes {
		if name != "" && strings.Contains(column, name) {
			return t, true
		}
	}
	return "", false
}

func castString(v interface{}) (interface{}, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}

func castFloat(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return nil, fmt.Errorf("cast %q to float: %w", n, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cast %v (%T) to float: unsupported source type", v, v)
	}
}

func castBool(v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strings.EqualFold(b, "true"), nil
	default:
		return nil, fmt.Errorf("cast %v (%T) to bool: unsupported source type", v, v)
	}
}

func castInt(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return nil, fmt.Errorf("cast %q to int: %w", n, err)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("cast %v (%T) to int: unsupported source type", v, v)
	}
}

// castDate casts a unix-timestamp-shaped DATE/DATE_TIME cell to a
// time.Time, mirroring datetime.fromtimestamp against the platform's
// UTC timestamps.
func castDate(v interface{}) (interface{}, error) {
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case string:
		if _, err := fmt.Sscanf(n, "%g", &seconds); err != nil {
			return nil, fmt.Errorf("cast %q to date: %w", n, err)
		}
	default:
		return nil, fmt.Errorf("cast %v (%T) to date: unsupported source type", v, v)
	}
	return time.Unix(int64(seconds), 0).UTC(), nil
}
