package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/gateway"
	"github.com/yourusername/camgate/pkg/logger"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Query a camera once and print the decoded result",
	Long: `Send one ISAPI query to a camera and print the plate or container number
it reports. Empty flags fall back to the per-type camera defaults of the
config file (or the built-in defaults).

Example:
  camgate capture --type LPR
  camgate capture --ip 10.0.0.5 --user admin --pass secret --type CNR --max 64`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringP("config", "c", "", "config file for camera defaults")
	captureCmd.Flags().String("ip", "", "camera address (host or host:port)")
	captureCmd.Flags().String("user", "", "username")
	captureCmd.Flags().String("pass", "", "password")
	captureCmd.Flags().String("isapi", "", "ISAPI path to query")
	captureCmd.Flags().String("type", "LPR", "channel type (LPR, CNR)")
	captureCmd.Flags().Int("max", 0, "maximum result size in bytes (default from config)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// CLI 출력과 섞이지 않도록 로그는 파일 설정일 때만 남김
	if config.Logging.Output == "file" {
		if err := logger.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Close()
	}

	maxResultSize, _ := cmd.Flags().GetInt("max")
	if maxResultSize <= 0 {
		maxResultSize = config.Capture.MaxResultSize
	}

	req := capture.Request{}
	req.IP, _ = cmd.Flags().GetString("ip")
	req.Username, _ = cmd.Flags().GetString("user")
	req.Password, _ = cmd.Flags().GetString("pass")
	req.ExtraParam, _ = cmd.Flags().GetString("isapi")
	typ, _ := cmd.Flags().GetString("type")
	req.Type = decoder.ParseType(typ)

	gw := gateway.New(config.GatewayConfig(logger.Named("gateway")))
	defer gw.Close()

	return printCapture(cmd, gw, req, maxResultSize)
}

func printCapture(cmd *cobra.Command, gw *gateway.Gateway, req capture.Request, maxResultSize int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := gw.Capture(ctx, req, maxResultSize)
	out := cmd.OutOrStdout()

	switch {
	case errors.Is(err, capture.ErrTruncated) && res.Length > 0:
		fmt.Fprintf(out, "[%s] %s (truncated to %d bytes)\n", req.Type, res.Text, res.Length)
		return nil
	case err != nil:
		return fmt.Errorf("capture failed (%s): %w", capture.Outcome(err), err)
	case res.Length == 0:
		fmt.Fprintf(out, "[%s] no data\n", req.Type)
	default:
		fmt.Fprintf(out, "[%s] %s\n", req.Type, res.Text)
	}
	return nil
}
