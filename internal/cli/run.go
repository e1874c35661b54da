package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tricejer41/FirstLight/internal/app"
)

var (
	runTopics      []string
	runDBPath      string
	runDryRun      bool
	runPollTimeout int
	runFromDir     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the near-real-time alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(runTopics) == 0 && runFromDir == "" {
			return errors.New("--topics is required (or --from-dir for replay)")
		}

		opts := app.RunOptions{
			Topics:  runTopics,
			DBPath:  runDBPath,
			DryRun:  runDryRun,
			FromDir: runFromDir,
		}
		if runPollTimeout > 0 {
			opts.PollTimeout = time.Duration(runPollTimeout) * time.Second
		}

		return getApp().Run(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runTopics, "topics", nil, "Stream topics to subscribe to")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite audit log path (defaults to config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Do everything except registry submission")
	runCmd.Flags().IntVar(&runPollTimeout, "poll-timeout", 0, "Poll timeout in seconds (defaults to config)")
	runCmd.Flags().StringVar(&runFromDir, "from-dir", "", "Replay JSON alert files from a directory instead of a live stream")
}
