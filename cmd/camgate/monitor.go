package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/gateway"
	"github.com/yourusername/camgate/pkg/logger"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start channels and print every result as it is polled",
	Long: `Start an LPR and a CNR channel (or the channels of a config file), poll each
one at a fixed interval and print every new result.

Example:
  camgate monitor --lpr 8088 --cnr 8087 --interval 500ms
  camgate monitor -c configs/config.yaml`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringP("config", "c", "", "config file; its channel list replaces --lpr/--cnr")
	monitorCmd.Flags().Int("lpr", 8088, "LPR channel port (0 to skip)")
	monitorCmd.Flags().Int("cnr", 8087, "CNR channel port (0 to skip)")
	monitorCmd.Flags().Duration("interval", 0, "poll interval (default from config, 500ms)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = config.PollInterval()
	}

	specs := config.ChannelSpecs()
	if configPath == "" {
		specs = specs[:0]
		for _, f := range []struct {
			flag string
			typ  decoder.Type
		}{{"lpr", decoder.LPR}, {"cnr", decoder.CNR}} {
			if port, _ := cmd.Flags().GetInt(f.flag); port > 0 {
				specs = append(specs, gateway.ChannelSpec{Port: port, Type: f.typ})
			}
		}
	}

	if err := logger.InitLogger(config.LogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	gw := gateway.New(config.GatewayConfig(logger.Named("gateway")))
	defer gw.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return monitor(ctx, cmd.OutOrStdout(), gw, specs, interval)
}

// monitor는 채널을 시작하고 ctx가 끝날 때까지 주기적으로 폴링합니다
func monitor(ctx context.Context, out io.Writer, gw *gateway.Gateway, specs []gateway.ChannelSpec, interval time.Duration) error {
	var live []gateway.ChannelSpec
	for _, r := range gw.StartChannels(specs) {
		if r.Err != nil {
			fmt.Fprintf(out, "[%s %d] failed to start: %v\n", r.Spec.Type, r.Spec.Port, r.Err)
			continue
		}
		fmt.Fprintf(out, "[%s %d] listening\n", r.Spec.Type, r.Spec.Port)
		live = append(live, r.Spec)
	}
	if len(live) == 0 {
		return fmt.Errorf("no channel could be started")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopping")
			return nil
		case <-ticker.C:
		}

		for _, spec := range live {
			text, ok, err := gw.Poll(spec.Port)
			if err != nil {
				logger.Warn("Poll failed", zap.Int("port", spec.Port), zap.Error(err))
				continue
			}
			if ok {
				fmt.Fprintf(out, "[%s %d] %s\n", spec.Type, spec.Port, text)
			}
		}
	}
}
