package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/gateway"
	"github.com/yourusername/camgate/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Capture  CaptureConfig  `yaml:"capture"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	HTTPPort   int  `yaml:"http_port"`
	Production bool `yaml:"production"`
}

type GatewayConfig struct {
	ListenHost     string          `yaml:"listen_host"`
	Channels       []ChannelConfig `yaml:"channels"`
	ReadTimeout    int             `yaml:"read_timeout"`    // 초
	MaxFrameBytes  int             `yaml:"max_frame_bytes"` // 0이면 10MiB
	MaxConnections int             `yaml:"max_connections"` // 채널당
	PollInterval   int             `yaml:"poll_interval"`   // 밀리초
}

type ChannelConfig struct {
	Port int    `yaml:"port"`
	Type string `yaml:"type"`
}

type CaptureConfig struct {
	Timeout          int                     `yaml:"timeout"` // 초
	MaxResponseBytes int64                   `yaml:"max_response_bytes"`
	MaxResultSize    int                     `yaml:"max_result_size"`
	DefaultISAPI     string                  `yaml:"default_isapi"`
	Cameras          map[string]CameraConfig `yaml:"cameras"` // 채널 타입별 기본 접속 정보
}

type CameraConfig struct {
	IP       string `yaml:"ip"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SnapshotConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig는 설정 파일이 비어 있을 때 사용되는 기본값입니다
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: 8080},
		Gateway: GatewayConfig{
			Channels: []ChannelConfig{
				{Port: 8088, Type: "LPR"},
				{Port: 8087, Type: "CNR"},
			},
			ReadTimeout:    60,
			MaxConnections: 64,
			PollInterval:   500,
		},
		Capture: CaptureConfig{
			Timeout:          10,
			MaxResponseBytes: capture.DefaultMaxResponseBytes,
			MaxResultSize:    1024,
			DefaultISAPI:     capture.DefaultPath,
			Cameras: map[string]CameraConfig{
				"LPR": {IP: "192.168.1.65", Username: "admin", Password: "abcd2468"},
				"CNR": {IP: "192.168.1.64", Username: "admin", Password: "abcd2468"},
			},
		},
		Snapshot: SnapshotConfig{Dir: "./snapshots"},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "logs/camgate.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다. 파일에 없는 항목은 기본값을 유지합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	seen := make(map[int]bool, len(c.Gateway.Channels))
	for _, ch := range c.Gateway.Channels {
		if ch.Port <= 0 || ch.Port > 65535 {
			return fmt.Errorf("invalid channel port: %d", ch.Port)
		}
		if ch.Port == c.Server.HTTPPort {
			return fmt.Errorf("channel port %d collides with http_port", ch.Port)
		}
		if seen[ch.Port] {
			return fmt.Errorf("duplicate channel port: %d", ch.Port)
		}
		seen[ch.Port] = true

		switch decoder.ParseType(ch.Type) {
		case decoder.LPR, decoder.CNR:
		default:
			return fmt.Errorf("unknown channel type %q on port %d", ch.Type, ch.Port)
		}
	}

	if c.Gateway.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	if c.Gateway.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if c.Gateway.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("capture timeout must be positive")
	}
	if c.Capture.MaxResultSize < 0 {
		return fmt.Errorf("max_result_size must not be negative")
	}
	if c.Capture.DefaultISAPI != "" && !strings.HasPrefix(c.Capture.DefaultISAPI, "/") {
		return fmt.Errorf("default_isapi must start with '/': %q", c.Capture.DefaultISAPI)
	}

	switch c.Logging.Output {
	case "", "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	return nil
}

// ChannelSpecs는 설정된 채널 목록을 게이트웨이 형식으로 변환합니다
func (c *Config) ChannelSpecs() []gateway.ChannelSpec {
	specs := make([]gateway.ChannelSpec, 0, len(c.Gateway.Channels))
	for _, ch := range c.Gateway.Channels {
		specs = append(specs, gateway.ChannelSpec{Port: ch.Port, Type: decoder.ParseType(ch.Type)})
	}
	return specs
}

// PollInterval은 CLI/웹소켓 폴링 주기를 반환합니다
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gateway.PollInterval) * time.Millisecond
}

// GatewayConfig는 게이트웨이 생성 설정을 만듭니다
func (c *Config) GatewayConfig(log *zap.Logger) gateway.Config {
	defaults := make(map[decoder.Type]capture.Credentials, len(c.Capture.Cameras))
	for typ, cam := range c.Capture.Cameras {
		defaults[decoder.ParseType(typ)] = capture.Credentials{
			IP:       cam.IP,
			Username: cam.Username,
			Password: cam.Password,
		}
	}

	return gateway.Config{
		Logger:             log,
		SnapshotDir:        c.Snapshot.Dir,
		ListenHost:         c.Gateway.ListenHost,
		ReadTimeout:        time.Duration(c.Gateway.ReadTimeout) * time.Second,
		MaxFrameBytes:      c.Gateway.MaxFrameBytes,
		MaxConnections:     c.Gateway.MaxConnections,
		CaptureTimeout:     time.Duration(c.Capture.Timeout) * time.Second,
		MaxResponseBytes:   c.Capture.MaxResponseBytes,
		DefaultCapturePath: c.Capture.DefaultISAPI,
		CaptureDefaults:    defaults,
	}
}

// LogConfig는 로거 초기화 설정을 반환합니다
func (c *Config) LogConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.Logging.Level,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
