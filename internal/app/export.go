package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/Tricejer41/FirstLight/internal/storage"
)

// Export renders decision history as CSV and/or a PNG magnitude timeline.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openStore("")
	if err != nil {
		return err
	}
	defer store.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	decisions, err := store.ListDecisionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		a.Logger.Info().Msg("no decisions found for export window")
		return nil
	}

	downsampled := downsampleDecisions(decisions, opts.MaxPoints)
	a.Logger.Info().Int("total", len(decisions)).Int("exported", len(downsampled)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeDecisionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeDecisionsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDecisions(decisions []storage.DecisionRecord, max int) []storage.DecisionRecord {
	if max <= 0 || len(decisions) <= max {
		return decisions
	}

	result := make([]storage.DecisionRecord, 0, max)
	step := float64(len(decisions)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(decisions) {
			idx = len(decisions) - 1
		}
		result = append(result, decisions[idx])
	}
	return result
}

func writeDecisionsCSV(path string, decisions []storage.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"decided_utc", "object_id", "candid", "topic", "passed", "reason", "mag"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, d := range decisions {
		passed := "0"
		if d.Passed {
			passed = "1"
		}
		record := []string{
			d.DecidedAt.UTC().Format(time.RFC3339),
			d.ObjectID,
			d.Candid,
			d.Topic,
			passed,
			d.Reason,
			metricString(d.Metrics, "mag"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeDecisionsPNG charts the magnitude of passing candidates over time.
func writeDecisionsPNG(path string, decisions []storage.DecisionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var x []time.Time
	var mags []float64
	for _, d := range decisions {
		if !d.Passed {
			continue
		}
		mag, ok := decisionMag(d.Metrics)
		if !ok {
			continue
		}
		x = append(x, d.DecidedAt)
		mags = append(mags, mag)
	}
	if len(x) < 2 {
		return errors.New("not enough passing decisions with magnitudes to chart")
	}

	magFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Magnitude",
			ValueFormatter: magFormatter,
			// Brighter is numerically smaller; astronomers expect it on top.
			Range: invertedMagRange(mags),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Candidate mag",
				XValues: x,
				YValues: mags,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func invertedMagRange(mags []float64) chart.Range {
	minMag, maxMag := mags[0], mags[0]
	for _, m := range mags {
		if m < minMag {
			minMag = m
		}
		if m > maxMag {
			maxMag = m
		}
	}
	return &chart.ContinuousRange{Min: minMag - 0.5, Max: maxMag + 0.5, Descending: true}
}

func decisionMag(metrics json.RawMessage) (float64, bool) {
	var m struct {
		Mag *float64 `json:"mag"`
	}
	if err := json.Unmarshal(metrics, &m); err != nil || m.Mag == nil {
		return 0, false
	}
	return *m.Mag, true
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
