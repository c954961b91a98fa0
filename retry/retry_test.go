package retry

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func mustRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", "https://example.com/"+path, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	return req
}

func TestClassifyServerPressureRetries(t *testing.T) {
	req := mustRequest(t, "api/rest/2.0/metadata/search")
	outcome := Outcome{Response: &http.Response{StatusCode: http.StatusBadGateway}}

	decision := Classify(req, outcome, 1, 0)

	cont, ok := decision.(Continue)
	if !ok {
		t.Fatalf("expected Continue, got %#v", decision)
	}
	if cont.Wait != 60*time.Second {
		t.Errorf("expected 60s wait, got %v", cont.Wait)
	}
}

func TestClassifyBackoffDoublesPerExponent(t *testing.T) {
	req := mustRequest(t, "api/rest/2.0/metadata/search")
	outcome := Outcome{Response: &http.Response{StatusCode: http.StatusGatewayTimeout}}

	decision := Classify(req, outcome, 2, 60*time.Second)

	cont, ok := decision.(Continue)
	if !ok {
		t.Fatalf("expected Continue, got %#v", decision)
	}
	if cont.Wait != 240*time.Second {
		t.Errorf("expected 240s wait, got %v", cont.Wait)
	}
}

func TestClassifyGivesUpAfterMaxAttempts(t *testing.T) {
	req := mustRequest(t, "api/rest/2.0/metadata/search")
	outcome := Outcome{Response: &http.Response{StatusCode: http.StatusBadGateway}}

	decision := Classify(req, outcome, MaxAttempts, 0)

	if _, ok := decision.(Give); !ok {
		t.Fatalf("expected Give at max attempts, got %#v", decision)
	}
}

func TestClassifyNetworkErrorRetriedOnlyForTMLImport(t *testing.T) {
	importReq := mustRequest(t, "api/rest/2.0/metadata/tml/import")
	searchReq := mustRequest(t, "api/rest/2.0/metadata/search")
	outcome := Outcome{Err: errors.New("read timeout")}

	decision := Classify(importReq, outcome, 1, 0)
	if _, ok := decision.(Continue); !ok {
		t.Errorf("expected network error against TML import to retry, got %#v", decision)
	}

	decision = Classify(searchReq, outcome, 1, 0)
	if _, ok := decision.(Give); !ok {
		t.Errorf("expected network error against other path to give up, got %#v", decision)
	}
}

func TestClassifyOtherOutcomesDoNotRetry(t *testing.T) {
	req := mustRequest(t, "api/rest/2.0/metadata/search")
	outcome := Outcome{Response: &http.Response{StatusCode: http.StatusNotFound}}

	decision := Classify(req, outcome, 1, 0)
	if _, ok := decision.(Give); !ok {
		t.Errorf("expected 404 to give up, got %#v", decision)
	}
}
