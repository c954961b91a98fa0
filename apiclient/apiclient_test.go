package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cstools.thoughtspot.com/session"
	"cstools.thoughtspot.com/transport"
)

func ctxBG() context.Context { return context.Background() }

func sessionWithVersion(version string) session.Context {
	return session.Context{PlatformVersion: version}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	tr := transport.New(server.Client(), nil, transport.DefaultConfig(), nil)
	return New(server.URL, tr, nil), server
}

func TestLoginSessionCookieCapturesSessionContext(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+pathLogin {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clusterId":      "cluster-1",
			"releaseVersion": "10.3.0",
			"orgsEnabled":    true,
			"currentOrg":     map[string]string{"id": "org-7"},
			"currentUser": map[string]interface{}{
				"id":         "user-1",
				"name":       "admin",
				"privileges": []string{"ADMINISTRATION"},
			},
		})
	})
	defer server.Close()

	if err := client.LoginSessionCookie(ctxBG(), "admin", "secret", true); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	sess := client.Session()
	if sess.ClusterID != "cluster-1" || sess.PlatformVersion != "10.3.0" || sess.OrgID != "org-7" {
		t.Fatalf("unexpected session context: %+v", sess)
	}
	if !sess.User.HasPrivilege("ADMINISTRATION") {
		t.Errorf("expected user to carry ADMINISTRATION privilege")
	}

	client.stopHeartbeat()
}

func TestDoReturnsStatusErrorOnFailureResponse(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"not allowed"}`))
	})
	defer server.Close()

	err := client.do(ctxBG(), "GET", "some/path", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", statusErr.StatusCode)
	}
}

func TestScrubRemovesUndefinedSentinels(t *testing.T) {
	in := map[string]interface{}{
		"keep":    "value",
		"drop":    "undefined",
		"nested":  map[string]interface{}{"drop": "undefined", "keep": 1},
		"listed":  []interface{}{"undefined", "value"},
	}
	out := Scrub(in).(map[string]interface{})

	if _, present := out["drop"]; present {
		t.Error("expected top-level undefined entry to be dropped")
	}
	if _, present := out["keep"]; !present {
		t.Error("expected keep entry to survive")
	}
	nested := out["nested"].(map[string]interface{})
	if _, present := nested["drop"]; present {
		t.Error("expected nested undefined entry to be dropped")
	}
	listed := out["listed"].([]interface{})
	if len(listed) != 2 {
		t.Errorf("Scrub must not shrink list length, got %d entries", len(listed))
	}
}

func TestFetchPermissionsDispatchesByPlatformVersion(t *testing.T) {
	var hitV1, hitV2 bool
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/" + pathV1Permissions:
			hitV1 = true
			json.NewEncoder(w).Encode(map[string]interface{}{})
		case "/" + pathPermissionsFetch:
			hitV2 = true
			json.NewEncoder(w).Encode(map[string]interface{}{})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	defer server.Close()

	client.setSession(sessionWithVersion("9.4.0"))
	if _, err := client.FetchPermissions(ctxBG(), "LOGICAL_TABLE", []string{"g1"}); err != nil {
		t.Fatalf("v1 fetch failed: %v", err)
	}
	if !hitV1 {
		t.Error("expected pre-10.1.0 platform to use the V1 endpoint")
	}

	client.setSession(sessionWithVersion("10.2.0"))
	if _, err := client.FetchPermissions(ctxBG(), "LOGICAL_TABLE", []string{"g1"}); err != nil {
		t.Fatalf("v2 fetch failed: %v", err)
	}
	if !hitV2 {
		t.Error("expected 10.1.0+ platform to use the V2 endpoint")
	}
}

func TestDataServiceURLUsesRedirectHostOnceCaptured(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	defer server.Close()

	before, err := client.dataServiceURL("loads")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before == "" {
		t.Fatal("expected a non-empty default dataservice URL")
	}

	client.setDataserviceHost("node-7.internal:8442")
	after, err := client.dataServiceURL("loads")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != "https://node-7.internal:8442/loads" {
		t.Errorf("expected redirect host to be honored, got %s", after)
	}
}
