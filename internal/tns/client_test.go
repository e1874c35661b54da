package tns

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(apiURL string) *Client {
	return NewClient(Config{
		BotID:          "12345",
		BotName:        "test_bot",
		APIKey:         "secret-key",
		APIURL:         apiURL,
		RequestTimeout: time.Second,
	}, zerolog.Nop())
}

func TestMarkerShape(t *testing.T) {
	cfg := Config{BotID: "12345", BotName: "test_bot"}
	want := `tns_marker{"tns_id":12345,"type":"bot","name":"test_bot"}`
	if got := cfg.Marker(); got != want {
		t.Fatalf("marker = %q, want %q", got, want)
	}
}

func TestEnabledRequiresAllCredentials(t *testing.T) {
	cfg := Config{BotID: "1", BotName: "b", APIKey: "k", APIURL: "http://x"}
	if !cfg.Enabled() {
		t.Fatal("full credentials should enable the client")
	}
	for _, mutate := range []func(*Config){
		func(c *Config) { c.BotID = "" },
		func(c *Config) { c.BotName = "" },
		func(c *Config) { c.APIKey = "" },
		func(c *Config) { c.APIURL = "" },
	} {
		c := cfg
		mutate(&c)
		if c.Enabled() {
			t.Fatal("missing credential should disable the client")
		}
	}
}

func TestProbeSelectsFirstLiveEndpoint(t *testing.T) {
	// First candidate 404s; second answers HTTP 400 with a JSON body, which
	// means the endpoint exists but disliked the empty probe payload.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bulk-report") && !strings.Contains(r.URL.Path, "status") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"id_code": 400, "id_message": "Bad request"})
	}))
	defer srv.Close()

	probe, err := testClient(srv.URL).ProbeEndpoints(context.Background())
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if probe.SubmitURL != srv.URL+"/bulk_report" {
		t.Fatalf("submit url = %q, want second candidate", probe.SubmitURL)
	}
	if probe.StatusURL == "" {
		t.Fatal("status url should be discovered")
	}
	if len(probe.Notes) == 0 {
		t.Fatal("probe should record per-candidate notes")
	}
}

func TestProbeRejectsHTMLBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer srv.Close()

	probe, err := testClient(srv.URL).ProbeEndpoints(context.Background())
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if probe.SubmitURL != "" {
		t.Fatalf("HTML pages must not count as live endpoints, got %q", probe.SubmitURL)
	}
}

func TestProbeSurvivesUnreachableServer(t *testing.T) {
	probe, err := testClient("http://127.0.0.1:1").ProbeEndpoints(context.Background())
	if err != nil {
		t.Fatalf("transport trouble must not raise from probing: %v", err)
	}
	if probe.SubmitURL != "" || probe.StatusURL != "" {
		t.Fatal("nothing should be discovered")
	}
}

func TestProbeDisabled(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	if _, err := c.ProbeEndpoints(context.Background()); err != ErrDisabled {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
}

func testPayload() Payload {
	return BuildMinimalReport(ReportParams{
		ObjectName:    "ZTF21abc",
		RADeg:         12.3456789,
		DecDeg:        -5.000001,
		DiscoveryTime: time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC),
		Mag:           18.0,
		Fid:           2,
		Instrument:    "ZTF",
	}, Config{ReporterName: "Tester"})
}

func TestSubmitSuccessOnPinnedURL(t *testing.T) {
	var gotAPIKey, gotData, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart form: %v", err)
			return
		}
		gotAPIKey = r.FormValue("api_key")
		gotData = r.FormValue("data")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id_code": 200, "report_id": 42})
	}))
	defer srv.Close()

	body, err := testClient(srv.URL).SubmitReport(context.Background(), testPayload(), srv.URL+"/bulk-report")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if gotAPIKey != "secret-key" {
		t.Errorf("api_key field = %q", gotAPIKey)
	}
	if !strings.Contains(gotData, `"at_report"`) {
		t.Errorf("data field should hold the JSON report, got %q", gotData)
	}
	if !strings.HasPrefix(gotUA, "tns_marker{") {
		t.Errorf("user-agent = %q", gotUA)
	}
	if !strings.Contains(string(body), "report_id") {
		t.Errorf("response body = %s", body)
	}
}

func TestSubmitRejectionStopsRotation(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"id_message": "missing field: discovery_datetime"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SubmitReport(context.Background(), testPayload(), "")
	if err == nil {
		t.Fatal("want rejection error")
	}

	var rejected *EndpointRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("want EndpointRejectedError, got %T: %v", err, err)
	}
	if rejected.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rejected.StatusCode)
	}
	if requests != 1 {
		t.Fatalf("a live endpoint rejecting the payload must stop rotation, saw %d requests", requests)
	}
}

func TestSubmitRotatesPastServerErrors(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id_code": 200})
	}))
	defer srv.Close()

	body, err := testClient(srv.URL).SubmitReport(context.Background(), testPayload(), "")
	if err != nil {
		t.Fatalf("submit should succeed on the third candidate: %v", err)
	}
	if requests != 3 {
		t.Fatalf("requests = %d", requests)
	}
	if !strings.Contains(string(body), "id_code") {
		t.Errorf("body = %s", body)
	}
}

func TestSubmitExhaustedReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SubmitReport(context.Background(), testPayload(), "")
	if err == nil {
		t.Fatal("want error after exhausting all candidates")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry the last HTTP status: %v", err)
	}
}

func TestSubmitDisabled(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	if _, err := c.SubmitReport(context.Background(), testPayload(), ""); err != ErrDisabled {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
}
