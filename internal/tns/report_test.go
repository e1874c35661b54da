package tns

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFormatCoord(t *testing.T) {
	cases := []struct {
		deg  float64
		want string
	}{
		{12.3456789, "12.3456789"},
		{-5.000001, "-5.0000010"},
		{0, "0.0000000"},
		{359.99999995, "360.0000000"},
	}
	for _, tc := range cases {
		if got := FormatCoord(tc.deg); got != tc.want {
			t.Errorf("FormatCoord(%v) = %q, want %q", tc.deg, got, tc.want)
		}
	}
}

func TestFormatDiscoveryTime(t *testing.T) {
	ts := time.Date(2021, 6, 1, 12, 30, 45, 123456000, time.UTC)
	if got := FormatDiscoveryTime(ts); got != "2021-06-01T12:30:45.123456Z" {
		t.Fatalf("got %q", got)
	}

	// Non-UTC inputs are normalized before formatting.
	loc := time.FixedZone("CEST", 2*3600)
	local := time.Date(2021, 6, 1, 14, 30, 45, 0, loc)
	if got := FormatDiscoveryTime(local); got != "2021-06-01T12:30:45.000000Z" {
		t.Fatalf("got %q", got)
	}
}

func TestFilterLetter(t *testing.T) {
	cases := map[int]string{1: "g", 2: "r", 3: "i", 4: "4", 0: "0"}
	for fid, want := range cases {
		if got := FilterLetter(fid); got != want {
			t.Errorf("FilterLetter(%d) = %q, want %q", fid, got, want)
		}
	}
}

func TestBuildMinimalReportShape(t *testing.T) {
	p := ReportParams{
		ObjectName:    "ZTF21abc",
		RADeg:         12.3456789,
		DecDeg:        -5.000001,
		DiscoveryTime: time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC),
		Mag:           18.21,
		Fid:           1,
		Instrument:    "ZTF",
		Observer:      "Fink/ZTF",
	}
	cfg := Config{
		ReporterName:        "A. Astronomer",
		ReporterEmail:       "astro@example.org",
		ReporterInstitution: "Example Observatory",
	}

	raw, err := json.Marshal(BuildMinimalReport(p, cfg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		ATReport map[string]map[string]any `json:"at_report"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry, ok := decoded.ATReport["0"]
	if !ok {
		t.Fatalf("payload should key the single report under %q: %s", "0", raw)
	}

	wantStrings := map[string]string{
		"objname":            "ZTF21abc",
		"ra":                 "12.3456789",
		"dec":                "-5.0000010",
		"discovery_datetime": "2021-06-01T12:00:00.000000Z",
		"reporting_group":    "Example Observatory",
		"reporter":           "A. Astronomer",
		"reporter_email":     "astro@example.org",
		"instrument":         "ZTF",
		"filter":             "g",
	}
	for key, want := range wantStrings {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if mag, _ := entry["mag"].(float64); mag != 18.21 {
		t.Errorf("mag = %v", entry["mag"])
	}
}

func TestBuildMinimalReportFallbacks(t *testing.T) {
	p := ReportParams{ObjectName: "ZTF21abc", Observer: "Fink/ZTF"}

	payload := BuildMinimalReport(p, Config{})
	entry := payload.ATReport["0"]
	if entry.ReportingGroup != "None" {
		t.Errorf("reporting_group = %q, want None", entry.ReportingGroup)
	}
	if entry.Reporter != "Fink/ZTF" {
		t.Errorf("reporter should fall back to the observer, got %q", entry.Reporter)
	}

	payload = BuildMinimalReport(ReportParams{ObjectName: "ZTF21abc"}, Config{})
	if got := payload.ATReport["0"].Reporter; got != "Unknown" {
		t.Errorf("reporter = %q, want Unknown", got)
	}

	if !strings.HasPrefix(payload.ATReport["0"].RA, "0.0000000") {
		t.Errorf("zero RA should still carry 7 decimals: %q", payload.ATReport["0"].RA)
	}
}
