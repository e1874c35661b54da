package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent filter decisions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore("")
	if err != nil {
		return err
	}
	defer store.Close()

	decisions, err := store.ListRecentDecisions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Fprintln(os.Stdout, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tObject\tCandid\tTopic\tPassed\tReason\tMag")

	for _, d := range decisions {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			d.DecidedAt.UTC().Format(time.RFC3339),
			d.ObjectID,
			d.Candid,
			d.Topic,
			d.Passed,
			d.Reason,
			metricString(d.Metrics, "mag"),
		)
	}

	writer.Flush()
	return nil
}

// metricString pulls one value out of a decision's metrics snapshot.
func metricString(metrics json.RawMessage, key string) string {
	var m map[string]any
	if err := json.Unmarshal(metrics, &m); err != nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.3f", f)
	}
	return sanitizeInline(fmt.Sprint(v))
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
