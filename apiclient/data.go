package apiclient

import (
	"context"
	"fmt"
)

// SearchDataBatchSize is the page size DataSearch workflows request per
// call, matching the original tool's default record_size.
const SearchDataBatchSize = 100_000

// SearchDataPage is one page of a COMPACT-format search result: the
// declared column names for the page plus one slice of raw, un-zipped,
// un-cast compact values per row.
type SearchDataPage struct {
	Columns []string
	Rows    [][]interface{}
}

// SearchData fetches one page of a Search Data query in COMPACT format,
// starting at recordOffset and asking for up to recordSize rows.
// COMPACT is used instead of FULL because it is faster and does not
// drop null values from the response. The platform returns fewer rows
// than recordSize once the result set is exhausted; callers loop on
// recordOffset until that happens.
func (c *Client) SearchData(ctx context.Context, query, logicalTableGUID string, recordOffset, recordSize int) (*SearchDataPage, error) {
	body := map[string]interface{}{
		"query_string":             query,
		"logical_table_identifier": logicalTableGUID,
		"data_format":              "COMPACT",
		"record_offset":            recordOffset,
		"record_size":              recordSize,
	}

	var envelope struct {
		Contents []struct {
			ColumnNames []string        `json:"column_names"`
			DataRows    [][]interface{} `json:"data_rows"`
		} `json:"contents"`
	}
	if err := c.do(ctx, "POST", pathSearchData, body, &envelope); err != nil {
		return nil, fmt.Errorf("apiclient: search data: %w", err)
	}
	if len(envelope.Contents) == 0 {
		return &SearchDataPage{}, nil
	}
	return &SearchDataPage{
		Columns: envelope.Contents[0].ColumnNames,
		Rows:    envelope.Contents[0].DataRows,
	}, nil
}

// LogsFetch retrieves cluster logs matching the given filter
// (timeframe, log level, and source service, passed through
// verbatim).
func (c *Client) LogsFetch(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := c.do(ctx, "POST", pathLogsFetch, filter, &rows); err != nil {
		return nil, fmt.Errorf("apiclient: logs fetch: %w", err)
	}
	return rows, nil
}
