package deploy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cstools.thoughtspot.com/apiclient"
	"cstools.thoughtspot.com/transport"
)

// fixtureObjects are the three source objects every test below
// checkpoints and deploys.
var fixtureObjects = []struct {
	GUID, Name, Type string
}{
	{"g1", "first", "liveboard"},
	{"g2", "second", "liveboard"},
	{"g3", "third", "liveboard"},
}

// newFixtureServer wires a server that answers metadata/search with
// fixtureObjects, metadata/tml/export with a per-guid document, and
// metadata/tml/import by minting a new target guid per request,
// counting import calls via importCalls.
func newFixtureServer(t *testing.T, importCalls *int64, activeGUIDs *[]string) (*apiclient.Client, *httptest.Server) {
	t.Helper()

	targetGUIDs := map[string]string{"g1": "h1", "g2": "h2", "g3": "h3"}

	isActive := func(guid string) bool {
		for _, g := range *activeGUIDs {
			if g == guid {
				return true
			}
		}
		return false
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case contains(r.URL.Path, "metadata/search"):
			var body struct {
				Offset int `json:"record_offset"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Offset > 0 {
				json.NewEncoder(w).Encode([]apiclient.MetadataObject{})
				return
			}
			var rows []apiclient.MetadataObject
			for _, o := range fixtureObjects {
				if !isActive(o.GUID) {
					continue
				}
				rows = append(rows, apiclient.MetadataObject{GUID: o.GUID, Name: o.Name, Type: o.Type})
			}
			json.NewEncoder(w).Encode(rows)

		case contains(r.URL.Path, "metadata/tml/export"):
			var body struct {
				Metadata []struct {
					Identifier string `json:"identifier"`
				} `json:"metadata"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			guid := body.Metadata[0].Identifier
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{
					"info": map[string]interface{}{
						"id": guid, "name": guid, "type": "liveboard",
						"status": map[string]string{"status_code": "OK"},
					},
					"edoc": "liveboard:\n  guid: " + guid + "\n",
				},
			})

		case contains(r.URL.Path, "metadata/tml/import"):
			atomic.AddInt64(importCalls, 1)
			var body struct {
				TMLs []string `json:"metadata_tmls"`
			}
			json.NewDecoder(r.Body).Decode(&body)

			type importResp struct {
				Response struct {
					Header struct {
						IDGUID string `json:"id_guid"`
						Name   string `json:"name"`
					} `json:"header"`
					Type   string `json:"type"`
					Status struct {
						Code string `json:"status_code"`
					} `json:"status"`
				} `json:"response"`
			}

			resps := make([]importResp, len(body.TMLs))
			for i, doc := range body.TMLs {
				sourceGUID := extractGUID(doc)
				target := targetGUIDs[sourceGUID]
				if target == "" {
					target = sourceGUID
				}
				resps[i].Response.Header.IDGUID = target
				resps[i].Response.Header.Name = target
				resps[i].Response.Type = "liveboard"
				resps[i].Response.Status.Code = "OK"
			}
			json.NewEncoder(w).Encode(resps)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(handler))
	tr := transport.New(server.Client(), nil, transport.DefaultConfig(), nil)
	return apiclient.New(server.URL, tr, nil), server
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// extractGUID pulls the guid back out of the fixture TML body written
// by the fake export endpoint ("liveboard:\n  guid: gN\n"), after any
// rewrite has replaced it with its mapped target.
func extractGUID(doc string) string {
	const marker = "guid: "
	idx := indexOf(doc, marker)
	if idx < 0 {
		return ""
	}
	rest := doc[idx+len(marker):]
	for i, c := range rest {
		if c == '\n' {
			return rest[:i]
		}
	}
	return rest
}

func TestCheckpointThenDeployEstablishesGUIDMapping(t *testing.T) {
	var importCalls int64
	active := []string{"g1", "g2", "g3"}
	client, server := newFixtureServer(t, &importCalls, &active)
	defer server.Close()

	dir := t.TempDir()
	ctx := context.Background()

	_, checkpointRows, err := Checkpoint(ctx, client, dir, "X", Filters{Types: []string{"liveboard"}}, nil)
	require.NoError(t, err)
	require.Len(t, checkpointRows, 3)

	targetMF, rows, err := Deploy(ctx, client, dir, "X", "Y", DeployAll, apiclient.ImportAllOrNone, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "h1", targetMF.Target("g1"))
	assert.Equal(t, "h2", targetMF.Target("g2"))
	assert.Equal(t, "h3", targetMF.Target("g3"))

	var exportRecords, importRecords int
	for _, rec := range targetMF.History {
		switch rec.Mode {
		case ModeExport:
			exportRecords++
		case ModeImport:
			importRecords++
		}
	}
	assert.Equal(t, 1, exportRecords)
	assert.Equal(t, 1, importRecords)
}

func TestDeltaDeployMakesNoImportCallsWhenNothingChanged(t *testing.T) {
	var importCalls int64
	active := []string{"g1", "g2", "g3"}
	client, server := newFixtureServer(t, &importCalls, &active)
	defer server.Close()

	dir := t.TempDir()
	ctx := context.Background()

	_, _, err := Checkpoint(ctx, client, dir, "X", Filters{Types: []string{"liveboard"}}, nil)
	require.NoError(t, err)

	_, _, err = Deploy(ctx, client, dir, "X", "Y", DeployAll, apiclient.ImportAllOrNone, nil)
	require.NoError(t, err)

	callsAfterFirstDeploy := atomic.LoadInt64(&importCalls)
	require.Greater(t, callsAfterFirstDeploy, int64(0))

	_, _, err = Deploy(ctx, client, dir, "X", "Y", DeployDelta, apiclient.ImportAllOrNone, nil)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirstDeploy, atomic.LoadInt64(&importCalls), "delta deploy must not re-import unchanged files")
}

func TestDeleteAwareCheckpointRemovesStaleMappingKeysAndFiles(t *testing.T) {
	var importCalls int64
	active := []string{"g1", "g2", "g3"}
	client, server := newFixtureServer(t, &importCalls, &active)
	defer server.Close()

	dir := t.TempDir()
	ctx := context.Background()

	mf, _, err := Checkpoint(ctx, client, dir, "X", Filters{Types: []string{"liveboard"}, DeleteAware: true}, nil)
	require.NoError(t, err)
	require.Contains(t, mf.Mapping, "g1")
	require.FileExists(t, filepath.Join(dir, "liveboard", "g1.liveboard.tml"))

	active = []string{"g2", "g3"}

	mf, _, err = Checkpoint(ctx, client, dir, "X", Filters{Types: []string{"liveboard"}, DeleteAware: true}, nil)
	require.NoError(t, err)

	assert.NotContains(t, mf.Mapping, "g1")
	assert.Contains(t, mf.Mapping, "g2")
	assert.Contains(t, mf.Mapping, "g3")

	_, err = os.Stat(filepath.Join(dir, "liveboard", "g1.liveboard.tml"))
	assert.True(t, os.IsNotExist(err), "stale export file should have been removed")
}
