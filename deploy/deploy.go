package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
	"cstools.thoughtspot.com/workflows"
)

// DeployType controls whether Deploy considers every *.tml file under
// directory or only those touched since the last import checkpoint.
type DeployType string

const (
	DeployAll   DeployType = "ALL"
	DeployDelta DeployType = "DELTA"
)

// Deploy imports every *.tml file under directory into target_env,
// rewriting GUIDs and literal strings per the merged source/target
// mapping, and records the outcome back into the target mapping file.
func Deploy(ctx context.Context, client *apiclient.Client, directory, sourceEnv, targetEnv string, deployType DeployType, policy apiclient.ImportPolicy, logger *logrus.Entry) (*MappingFile, []workflows.StatusRow, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	sourceMF, err := OpenMappingFile(directory, sourceEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMappingFileMissing, err)
	}
	targetMF, err := OpenMappingFile(directory, targetEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMappingFileMissing, err)
	}

	merged := Merge(sourceMF, targetMF)

	files, err := tmlFiles(directory)
	if err != nil {
		return nil, nil, err
	}

	if deployType == DeployDelta {
		cutoff := merged.LastImportAt()
		files = filterByModTime(files, cutoff)
	}

	if len(files) == 0 {
		logger.Info("no tml files to deploy after applying delta filtering")
		merged.AppendHistory(HistoryRecord{
			At:          time.Now().UTC(),
			Mode:        ModeImport,
			Environment: targetEnv,
			Status:      workflows.StatusOK,
			Info:        map[string]interface{}{"files_considered": 0},
		})
		if err := merged.Save(directory, targetEnv); err != nil {
			return merged, nil, err
		}
		return merged, nil, nil
	}

	docs := make([][]byte, 0, len(files))
	sourceGUIDs := make([]string, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return merged, nil, fmt.Errorf("deploy: read %s: %w", f, err)
		}
		rewritten := Rewrite(string(raw), merged)
		docs = append(docs, []byte(rewritten))
		sourceGUIDs = append(sourceGUIDs, guidFromFilename(f))
	}

	importMode := ModeImport
	if policy == apiclient.ImportValidateOnly {
		importMode = ModeValidate
	}

	rows, err := workflows.TMLImport(ctx, client, docs, workflows.TMLImportOptions{Policy: policy}, logger)
	if err != nil {
		return merged, nil, fmt.Errorf("deploy: %w", err)
	}

	for i, row := range rows {
		if row.Status != workflows.StatusOK || i >= len(sourceGUIDs) {
			continue
		}
		merged.SetTarget(sourceGUIDs[i], row.GUID)
	}

	merged.AppendHistory(HistoryRecord{
		At:          time.Now().UTC(),
		Mode:        importMode,
		Environment: targetEnv,
		Status:      workflows.Rollup(rows),
		Info: map[string]interface{}{
			"files_considered": len(files),
		},
	})

	if err := merged.Save(directory, targetEnv); err != nil {
		return merged, rows, err
	}

	return merged, rows, nil
}

// tmlFiles enumerates every *.tml file under directory, excluding the
// .mappings directory itself.
func tmlFiles(directory string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(directory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == mappingDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".tml" {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy: walk %s: %w", directory, err)
	}
	return out, nil
}

// filterByModTime keeps only files modified at or after cutoff. A
// zero cutoff (no prior IMPORT record) keeps every file.
func filterByModTime(files []string, cutoff time.Time) []string {
	if cutoff.IsZero() {
		return files
	}
	var out []string
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			out = append(out, f)
		}
	}
	return out
}

// guidFromFilename extracts the GUID from a {guid}.{type}.tml
// filename, the naming convention Checkpoint writes.
func guidFromFilename(path string) string {
	base := filepath.Base(path)
	for i := 0; i < len(base); i++ {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}
