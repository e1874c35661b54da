package cli

import (
	"github.com/spf13/cobra"
)

var envcheckShowUA bool

var tnsCmd = &cobra.Command{
	Use:   "tns",
	Short: "Registry utilities",
}

var tnsProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe registry API endpoints and print what works",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context())
	},
}

var tnsEnvcheckCmd = &cobra.Command{
	Use:   "envcheck",
	Short: "Show which registry credentials are configured (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().EnvCheck(envcheckShowUA)
	},
}

func init() {
	tnsEnvcheckCmd.Flags().BoolVar(&envcheckShowUA, "show-ua", false, "Also print the full User-Agent marker")

	tnsCmd.AddCommand(tnsProbeCmd)
	tnsCmd.AddCommand(tnsEnvcheckCmd)
}
