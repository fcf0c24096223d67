package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/api"
	"github.com/yourusername/camgate/internal/core"
	"github.com/yourusername/camgate/internal/gateway"
	"github.com/yourusername/camgate/internal/metrics"
	"github.com/yourusername/camgate/internal/watch"
	"github.com/yourusername/camgate/pkg/logger"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway and its HTTP API",
	Long: `Start every channel listed in the config file, serve the HTTP/WebSocket API
and reload the channel list when the config file changes.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  camgate serve -c configs/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", defaultConfigPath, "path to config file")
	serveCmd.Flags().Bool("watch", true, "reload channels when the config file changes")
}

// Application은 애플리케이션 컴포넌트들을 관리합니다
type Application struct {
	config    *core.Config
	gateway   *gateway.Gateway
	hub       *watch.Hub
	apiServer *api.Server
	watcher   *core.Watcher[*core.Config]
	started   time.Time
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	watchConfig, _ := cmd.Flags().GetBool("watch")

	config, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitLogger(config.LogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Info("Starting camera channel gateway",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Int("channels", len(config.Gateway.Channels)),
	)

	app := initializeApplication(config)
	defer app.cleanup()

	app.startChannels()

	if err := app.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	if watchConfig {
		app.watcher = core.NewWatcher(configPath, core.LoadConfig, logger.Named("config"))
		app.watcher.OnReload(app.reloadChannels)
		if err := app.watcher.Start(); err != nil {
			logger.Warn("Config watcher disabled", zap.Error(err))
			app.watcher = nil
		}
	}

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Gateway is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	return nil
}

// initializeApplication은 애플리케이션을 초기화합니다
func initializeApplication(config *core.Config) *Application {
	app := &Application{
		config:  config,
		started: time.Now(),
	}

	app.gateway = gateway.New(config.GatewayConfig(logger.Named("gateway")))

	app.hub = watch.NewHub(watch.HubConfig{
		Logger:   logger.Named("watch"),
		Poller:   app.gateway,
		Interval: config.PollInterval(),
	})

	serverConfig := api.ServerConfig{
		Port:             config.Server.HTTPPort,
		Production:       config.Server.Production,
		Logger:           logger.Named("api"),
		Gateway:          app.gateway,
		MaxResultSize:    config.Capture.MaxResultSize,
		HealthHandler:    app.health,
		WebSocketHandler: app.hub.HandleWebSocket,
	}
	if config.Metrics.Enabled {
		serverConfig.MetricsPath = config.Metrics.Path
		serverConfig.MetricsHandler = metrics.Handler()
	}
	app.apiServer = api.NewServer(serverConfig)

	return app
}

// startChannels는 설정된 채널을 시작합니다. 실패한 채널은 기록만 하고 계속합니다.
func (app *Application) startChannels() {
	for _, r := range app.gateway.StartChannels(app.config.ChannelSpecs()) {
		if r.Err != nil {
			logger.Error("Failed to start channel",
				zap.Int("port", r.Spec.Port),
				zap.String("channel_type", r.Spec.Type.String()),
				zap.Error(r.Err),
			)
		}
	}
}

// reloadChannels는 변경된 설정의 채널 목록으로 재조정합니다
func (app *Application) reloadChannels(config *core.Config) {
	logger.Info("Reconciling channels from config", zap.Int("channels", len(config.Gateway.Channels)))
	app.gateway.Reconcile(config.ChannelSpecs())
}

func (app *Application) health() map[string]interface{} {
	return map[string]interface{}{
		"status":            "ok",
		"time":              time.Now().UTC(),
		"uptime":            time.Since(app.started).Round(time.Second).String(),
		"channels":          len(app.gateway.Channels()),
		"websocket_clients": app.hub.ClientCount(),
		"version":           version,
	}
}

// cleanup은 애플리케이션 리소스를 정리합니다
func (app *Application) cleanup() {
	logger.Info("Cleaning up application resources")

	if app.watcher != nil {
		_ = app.watcher.Stop()
	}

	if app.apiServer != nil {
		if err := app.apiServer.Stop(); err != nil {
			logger.Warn("API server shutdown error", zap.Error(err))
		}
	}

	if app.hub != nil {
		app.hub.Close()
	}

	if app.gateway != nil {
		app.gateway.Close()
	}

	logger.Info("Cleanup completed")
}
