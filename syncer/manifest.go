package syncer

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadManifest reads a MANIFEST.json describing a syncer adapter:
// its registered name, the concrete type implementing it, and the
// third-party libraries it depends on.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("syncer: read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("syncer: parse manifest %s: %w", path, err)
	}
	return m, nil
}

// builtinManifests describes the syncers this module ships, the way
// each adapter directory's own MANIFEST.json would.
var builtinManifests = map[string]Manifest{
	"file": {Name: "file", Class: "FileSyncer"},
	"csv":  {Name: "csv", Class: "CSVSyncer"},
	"postgres": {
		Name:  "postgres",
		Class: "DatabaseSyncer",
		Requirements: []Requirement{
			{Library: "github.com/lib/pq", Version: "v1.10.9"},
		},
	},
}

// BuiltinManifest returns the manifest for one of the syncers this
// module ships built in, or false if name isn't one of them.
func BuiltinManifest(name string) (Manifest, bool) {
	m, ok := builtinManifests[name]
	return m, ok
}
