// Package main is the entry point for the camgate CLI.
//
// Usage:
//
//	camgate serve -c configs/config.yaml    # gateway + HTTP API
//	camgate monitor --lpr 8088 --cnr 8087    # start channels and print results
//	camgate capture --ip 192.168.1.65 --type LPR
//	camgate validate -c configs/config.yaml
//	camgate version
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/core"
)

const defaultConfigPath = "configs/config.yaml"

// 빌드 시 ldflags로 주입
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "camgate",
	Short: "Camera channel gateway for LPR/CNR IP cameras",
	Long: `camgate receives push events from license-plate (LPR) and container-number (CNR)
IP cameras on per-channel TCP ports, keeps the latest result of each channel,
and performs on-demand ISAPI captures.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "camgate %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
		fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// loadConfig는 경로가 비어 있으면 기본 설정을 사용합니다
func loadConfig(path string) (*core.Config, error) {
	if path == "" {
		return core.DefaultConfig(), nil
	}
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
