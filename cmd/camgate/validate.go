package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/core"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Parse and validate a camgate configuration file without binding any port.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  camgate validate -c configs/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  HTTP port:     %d\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval())
	fmt.Fprintf(out, "  Channels:      %d\n", len(cfg.Gateway.Channels))
	for _, spec := range cfg.ChannelSpecs() {
		fmt.Fprintf(out, "    - %s on port %d\n", spec.Type, spec.Port)
	}
	return nil
}
