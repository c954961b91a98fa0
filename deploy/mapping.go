// Package deploy implements the TML content-migration engine:
// checkpointing a source environment's metadata to disk with a stable
// cross-environment GUID mapping, then deploying those artifacts into
// a target environment with delta detection and mapping-aware GUID
// substitution.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HistoryMode names which phase of the engine produced a history
// record, mirroring statemanager's Status enum style but scoped to
// the three phases this engine actually has.
type HistoryMode string

const (
	ModeExport   HistoryMode = "EXPORT"
	ModeValidate HistoryMode = "VALIDATE"
	ModeImport   HistoryMode = "IMPORT"
)

// HistoryRecord is one append-only entry in a mapping file's history.
type HistoryRecord struct {
	At          time.Time              `json:"at"`
	By          string                 `json:"by"`
	Mode        HistoryMode            `json:"mode"`
	Environment string                 `json:"environment"`
	Status      string                 `json:"status"`
	Info        map[string]interface{} `json:"info,omitempty"`
}

// MappingFile is the durable identity-mapping record for one
// environment: which source GUIDs map to which target GUIDs, which
// literal strings get substituted verbatim, and the append-only
// history of checkpoint/deploy operations that touched it.
type MappingFile struct {
	Metadata struct {
		Environment string `json:"environment"`
	} `json:"metadata"`
	Mapping           map[string]*string `json:"mapping"`
	AdditionalMapping map[string]string  `json:"additional_mapping"`
	History           []HistoryRecord    `json:"history"`
}

// mappingDir is the fixed subdirectory mapping files live under,
// relative to the caller's content directory.
const mappingDir = ".mappings"

func mappingPath(directory, environment string) string {
	return filepath.Join(directory, mappingDir, fmt.Sprintf("%s-guid-mappings.json", environment))
}

// OpenMappingFile opens environment's mapping file under directory,
// creating an empty one if it doesn't exist yet.
func OpenMappingFile(directory, environment string) (*MappingFile, error) {
	path := mappingPath(directory, environment)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		mf := &MappingFile{
			Mapping:           map[string]*string{},
			AdditionalMapping: map[string]string{},
		}
		mf.Metadata.Environment = environment
		return mf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deploy: read mapping file %s: %w", path, err)
	}

	var mf MappingFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("deploy: parse mapping file %s: %w", path, err)
	}
	if mf.Mapping == nil {
		mf.Mapping = map[string]*string{}
	}
	if mf.AdditionalMapping == nil {
		mf.AdditionalMapping = map[string]string{}
	}
	return &mf, nil
}

// Save writes mf to environment's mapping file under directory,
// creating the .mappings directory if needed.
func (mf *MappingFile) Save(directory, environment string) error {
	dir := filepath.Join(directory, mappingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("deploy: create mappings directory: %w", err)
	}

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("deploy: marshal mapping file: %w", err)
	}

	path := mappingPath(directory, environment)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("deploy: write mapping file %s: %w", path, err)
	}
	return nil
}

// EnsureKey adds guid to the mapping with a null target if it isn't
// already present. It never overwrites an existing entry, null or
// otherwise.
func (mf *MappingFile) EnsureKey(guid string) {
	if _, present := mf.Mapping[guid]; !present {
		mf.Mapping[guid] = nil
	}
}

// SetTarget records guid's resolved target. Per spec, a non-null
// existing mapping is never silently overwritten; only a currently
// null (or absent) entry is set.
func (mf *MappingFile) SetTarget(sourceGUID, targetGUID string) {
	if existing, present := mf.Mapping[sourceGUID]; present && existing != nil {
		return
	}
	target := targetGUID
	mf.Mapping[sourceGUID] = &target
}

// Target returns the known target GUID for sourceGUID, or "" if none
// is known yet.
func (mf *MappingFile) Target(sourceGUID string) string {
	if target, present := mf.Mapping[sourceGUID]; present && target != nil {
		return *target
	}
	return ""
}

// RemoveKey deletes guid from the mapping, used by delete-aware
// checkpointing when an object no longer appears in the source.
func (mf *MappingFile) RemoveKey(guid string) {
	delete(mf.Mapping, guid)
}

// AppendHistory appends a record to mf's history.
func (mf *MappingFile) AppendHistory(rec HistoryRecord) {
	mf.History = append(mf.History, rec)
}

// LastImportAt returns the timestamp of the most recent IMPORT
// history record, or the zero time if there isn't one. Deploy's DELTA
// mode uses this as the cutoff for skipping unmodified files.
func (mf *MappingFile) LastImportAt() time.Time {
	var latest time.Time
	for _, rec := range mf.History {
		if rec.Mode == ModeImport && rec.At.After(latest) {
			latest = rec.At
		}
	}
	return latest
}

// Merge combines a source and target mapping file per spec: mapping
// entries from both are unioned (target's non-null values win over
// source's, since target is authoritative for GUIDs actually imported
// there), additional_mapping is unioned, and history is concatenated
// source-then-target.
func Merge(source, target *MappingFile) *MappingFile {
	merged := &MappingFile{
		Mapping:           map[string]*string{},
		AdditionalMapping: map[string]string{},
	}
	merged.Metadata = target.Metadata

	for guid, tgt := range source.Mapping {
		merged.Mapping[guid] = copyStringPtr(tgt)
	}
	for guid, tgt := range target.Mapping {
		if tgt != nil {
			merged.Mapping[guid] = copyStringPtr(tgt)
		} else if _, present := merged.Mapping[guid]; !present {
			merged.Mapping[guid] = nil
		}
	}

	for k, v := range source.AdditionalMapping {
		merged.AdditionalMapping[k] = v
	}
	for k, v := range target.AdditionalMapping {
		merged.AdditionalMapping[k] = v
	}

	merged.History = append(merged.History, source.History...)
	merged.History = append(merged.History, target.History...)
	return merged
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
