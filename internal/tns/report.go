package tns

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// filterLetters maps survey photometric band ids to registry filter letters.
// Unmapped ids pass through as their numeric string form.
var filterLetters = map[int]string{
	1: "g",
	2: "r",
	3: "i",
}

// ReportParams are the inputs for one minimal AT report.
type ReportParams struct {
	ObjectName    string
	RADeg         float64
	DecDeg        float64
	DiscoveryTime time.Time
	Mag           float64
	Fid           int
	Instrument    string
	Observer      string
}

// reportEntry mirrors the registry's bulk-report AT schema. Coordinates are
// strings so the wire form never depends on platform float formatting.
type reportEntry struct {
	ObjName           string  `json:"objname"`
	RA                string  `json:"ra"`
	Dec               string  `json:"dec"`
	DiscoveryDatetime string  `json:"discovery_datetime"`
	ReportingGroup    string  `json:"reporting_group"`
	Reporter          string  `json:"reporter"`
	ReporterEmail     string  `json:"reporter_email"`
	Instrument        string  `json:"instrument"`
	Mag               float64 `json:"mag"`
	Filter            string  `json:"filter"`
}

// Payload is the bulk-report envelope: {"at_report": {"0": {...}}}.
type Payload struct {
	ATReport map[string]reportEntry `json:"at_report"`
}

// BuildMinimalReport assembles a conservative minimal AT report. Registry
// schemas drift slightly across versions; when a submission is rejected the
// response names the missing fields.
func BuildMinimalReport(p ReportParams, cfg Config) Payload {
	group := cfg.ReporterInstitution
	if group == "" {
		group = "None"
	}
	reporter := cfg.ReporterName
	if reporter == "" {
		reporter = p.Observer
	}
	if reporter == "" {
		reporter = "Unknown"
	}

	entry := reportEntry{
		ObjName:           p.ObjectName,
		RA:                FormatCoord(p.RADeg),
		Dec:               FormatCoord(p.DecDeg),
		DiscoveryDatetime: FormatDiscoveryTime(p.DiscoveryTime),
		ReportingGroup:    group,
		Reporter:          reporter,
		ReporterEmail:     cfg.ReporterEmail,
		Instrument:        p.Instrument,
		Mag:               p.Mag,
		Filter:            FilterLetter(p.Fid),
	}
	return Payload{ATReport: map[string]reportEntry{"0": entry}}
}

// FormatCoord renders a coordinate with exactly 7 decimal places.
func FormatCoord(deg float64) string {
	return decimal.NewFromFloat(deg).StringFixed(7)
}

// FormatDiscoveryTime renders an ISO-8601 UTC timestamp with a trailing Z.
func FormatDiscoveryTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// FilterLetter maps a band id to its registry letter.
func FilterLetter(fid int) string {
	if letter, ok := filterLetters[fid]; ok {
		return letter
	}
	return strconv.Itoa(fid)
}
