package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/ct1/internal/uart"
)

// NewPortsCommand creates the ports command
func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Long: `List the serial ports visible on this machine, with USB details
where the enumerator can provide them. Use this to find the fixture's
COM port number for the run command's --comport flag.`,
		RunE: portsCommand,
	}
}

// portsCommand implements the ports command logic
func portsCommand(cmd *cobra.Command, args []string) error {
	ports, err := uart.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tUSB %s:%s %s\n", p.Name, p.VID, p.PID, p.SerialNumber)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.Name)
	}
	return nil
}
