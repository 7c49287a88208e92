package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/transport"
	"github.com/muurk/drilink/internal/ui"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports of this machine. USB adapters show their vendor
and product ids, which helps to tell several adapters apart.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	ports, err := transport.ListPorts()
	if err != nil {
		p.PrintFailure("Cannot list serial ports", err)
		return err
	}

	if len(ports) == 0 {
		p.PrintWarning("No serial ports found",
			ui.F("Hint", "plug in the USB serial adapter, or use drilink-sim"),
		)
		return nil
	}

	p.PrintHeader("Serial ports", "drilink ports")
	for _, port := range ports {
		line := "  " + port.Name
		if port.IsUSB {
			line += fmt.Sprintf("  USB %s:%s", port.VID, port.PID)
			if port.Product != "" {
				line += "  " + port.Product
			}
			if port.SerialNumber != "" {
				line += "  s/n " + port.SerialNumber
			}
		}
		p.Println(line)
	}
	return nil
}
