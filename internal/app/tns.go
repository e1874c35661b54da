package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Tricejer41/FirstLight/internal/tns"
)

// Probe discovers working registry endpoints and prints what it found.
func (a *App) Probe(ctx context.Context) error {
	client := tns.NewClient(a.Config.TNS, a.Logger)
	if !client.Enabled() {
		return fmt.Errorf("registry not enabled; set TNS_BOT_ID, TNS_BOT_NAME, TNS_API_KEY, TNS_API_URL")
	}

	probe, err := client.ProbeEndpoints(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "submit_url: %s\n", orNone(probe.SubmitURL))
	fmt.Fprintf(os.Stdout, "status_url: %s\n", orNone(probe.StatusURL))
	fmt.Fprintln(os.Stdout, "notes:")
	for _, note := range probe.Notes {
		fmt.Fprintf(os.Stdout, " - %s\n", note)
	}
	return nil
}

// EnvCheck prints which registry credentials are configured, secrets masked.
func (a *App) EnvCheck(showUA bool) error {
	cfg := a.Config.TNS

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Setting\tValue")
	fmt.Fprintf(writer, "tns.bot_id\t%s\n", mask(cfg.BotID))
	fmt.Fprintf(writer, "tns.bot_name\t%s\n", orNone(cfg.BotName))
	fmt.Fprintf(writer, "tns.api_key\t%s\n", mask(cfg.APIKey))
	fmt.Fprintf(writer, "tns.api_url\t%s\n", orNone(cfg.APIURL))
	fmt.Fprintf(writer, "tns.reporter_name\t%s\n", orNone(cfg.ReporterName))
	fmt.Fprintf(writer, "tns.reporter_email\t%s\n", orNone(cfg.ReporterEmail))
	fmt.Fprintf(writer, "tns.reporter_institution\t%s\n", orNone(cfg.ReporterInstitution))
	fmt.Fprintf(writer, "enabled\t%t\n", cfg.Enabled())
	writer.Flush()

	if showUA {
		fmt.Fprintf(os.Stdout, "user-agent: %s\n", cfg.Marker())
	}
	return nil
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	const keep = 4
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
