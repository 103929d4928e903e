package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for ct1
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ct1",
		Short: "Production-test station orchestrator",
		Long: `CT1 drives one production-test station run for a unit under test:
fixture power sequencing over the UART control link, firmware flashing,
RF test-mode configuration, instrument measurements, and the on-device
ATP test with completion monitoring.

The station procedure is selected by --StationName; results land in the
station log directory together with a full run transcript.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewPortsCommand())

	return cmd
}
