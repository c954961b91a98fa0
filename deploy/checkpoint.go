package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
	"cstools.thoughtspot.com/paginate"
	"cstools.thoughtspot.com/taskgroup"
	"cstools.thoughtspot.com/workflows"
)

// exportConcurrency is the server-stress bound spec.md §4.8 sets for
// checkpoint's fan-out of tml_export calls.
const exportConcurrency = 4

// Filters narrows which objects a checkpoint considers.
type Filters struct {
	Types              []string
	Pattern            string
	Authors            []string // owner names; empty means no author filter
	ExcludeSystemOwned bool
	DeleteAware        bool
}

const systemOwnerName = "system"

func (f Filters) matches(obj apiclient.MetadataObject) bool {
	if f.ExcludeSystemOwned && obj.Header.Owner == systemOwnerName {
		return false
	}
	if len(f.Authors) == 0 {
		return true
	}
	for _, a := range f.Authors {
		if a == obj.Header.Owner {
			return true
		}
	}
	return false
}

// Checkpoint exports every object matching filters from environment
// into {directory}/{type}/{guid}.{type}.tml, updates the environment's
// mapping file to reflect exactly what was exported, and appends an
// EXPORT history record.
func Checkpoint(ctx context.Context, client *apiclient.Client, directory, environment string, filters Filters, logger *logrus.Entry) (*MappingFile, []workflows.StatusRow, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	mf, err := OpenMappingFile(directory, environment)
	if err != nil {
		return nil, nil, err
	}

	var matched []apiclient.MetadataObject
	for _, objectType := range filters.Types {
		fetch := func(ctx context.Context, offset, size int) ([]apiclient.MetadataObject, error) {
			return client.MetadataSearchPage(ctx, []string{objectType}, filters.Pattern, offset, size)
		}
		for _, obj := range paginate.All(ctx, 5000, fetch, logger.WithField("metadata_type", objectType)) {
			if filters.matches(obj) {
				matched = append(matched, obj)
			}
		}
	}

	rows, seen := exportAll(ctx, client, matched, directory, logger)

	for guid := range seen {
		mf.EnsureKey(guid)
	}

	filesExpected := len(matched)
	filesExported := 0
	for _, row := range rows {
		if row.Status == workflows.StatusOK {
			filesExported++
		}
	}

	if filters.DeleteAware {
		for guid := range mf.Mapping {
			if _, stillPresent := seen[guid]; stillPresent {
				continue
			}
			mf.RemoveKey(guid)
			removeExportedFile(directory, guid)
		}
	}

	mf.AppendHistory(HistoryRecord{
		At:          time.Now().UTC(),
		Mode:        ModeExport,
		Environment: environment,
		Status:      workflows.Rollup(rows),
		Info: map[string]interface{}{
			"files_expected": filesExpected,
			"files_exported": filesExported,
		},
	})

	if err := mf.Save(directory, environment); err != nil {
		return nil, rows, err
	}

	return mf, rows, nil
}

// exportAll fans tml_export calls out across exportConcurrency
// workers, writing each successful export to disk and returning both
// the per-object status rows and the set of GUIDs actually seen.
func exportAll(ctx context.Context, client *apiclient.Client, objects []apiclient.MetadataObject, directory string, logger *logrus.Entry) ([]workflows.StatusRow, map[string]struct{}) {
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		seen[obj.GUID] = struct{}{}
	}

	group := taskgroup.New[workflows.StatusRow](exportConcurrency)
	for _, obj := range objects {
		obj := obj
		group.Spawn(ctx, func(ctx context.Context) (workflows.StatusRow, error) {
			exportRows, err := client.TMLExport(ctx, []string{obj.GUID}, true)
			if err != nil {
				return workflows.StatusRow{GUID: obj.GUID, Name: obj.Name, Type: obj.Type, Status: workflows.StatusError, Message: err.Error()}, nil
			}
			if len(exportRows) == 0 {
				return workflows.StatusRow{GUID: obj.GUID, Name: obj.Name, Type: obj.Type, Status: workflows.StatusError, Message: "no export row returned"}, nil
			}
			row := exportRows[0]
			if row.Err != nil {
				return workflows.StatusRow{GUID: obj.GUID, Name: obj.Name, Type: obj.Type, Status: workflows.StatusError, Message: row.Err.Error()}, nil
			}
			if err := writeExportedFile(directory, row.Type, row.GUID, row.TML); err != nil {
				return workflows.StatusRow{GUID: obj.GUID, Name: obj.Name, Type: obj.Type, Status: workflows.StatusError, Message: err.Error()}, nil
			}
			return workflows.StatusRow{GUID: obj.GUID, Name: obj.Name, Type: obj.Type, Status: workflows.StatusOK}, nil
		})
	}

	var rows []workflows.StatusRow
	for _, res := range group.Wait() {
		if res.Err != nil {
			logger.WithError(res.Err).Warn("export task did not run")
			continue
		}
		rows = append(rows, res.Value)
	}
	return rows, seen
}

func writeExportedFile(directory, objectType, guid string, tml []byte) error {
	dir := filepath.Join(directory, objectType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.tml", guid, objectType))
	return os.WriteFile(path, tml, 0o644)
}

// removeExportedFile best-effort deletes a previously exported
// object's on-disk TML under any type subdirectory; the type isn't
// known once the object has disappeared from the source, so every
// type directory is checked.
func removeExportedFile(directory, guid string) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(directory, entry.Name(), guid+".*.tml"))
		for _, m := range matches {
			os.Remove(m)
		}
	}
}
