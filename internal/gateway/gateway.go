// Package gateway is the single entry point the surrounding application uses:
// starting and stopping push channels, polling their latest result and
// issuing synchronous captures.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/channel"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/snapshot"
	"go.uber.org/zap"
)

// ChannelSpec pairs a listening port with the camera dialect pushed to it.
type ChannelSpec struct {
	Port int          `json:"port" yaml:"port"`
	Type decoder.Type `json:"type" yaml:"type"`
}

// StartResult is the outcome of starting one ChannelSpec.
type StartResult struct {
	Spec ChannelSpec
	Err  error
}

// Config holds the configuration for Gateway
type Config struct {
	Logger   *zap.Logger
	Decoders *decoder.Table
	// SnapshotDir receives the latest picture per (type, kind); empty disables saving.
	SnapshotDir string

	ListenHost     string
	ReadTimeout    time.Duration
	MaxFrameBytes  int
	MaxConnections int

	CaptureTimeout     time.Duration
	MaxResponseBytes   int64
	DefaultCapturePath string
	CaptureDefaults    map[decoder.Type]capture.Credentials
}

// Gateway owns the channel registry and the capture client. Build one with New
// at process start and Close it at process end.
type Gateway struct {
	logger   *zap.Logger
	registry *channel.Registry
	capture  *capture.Client

	// reconcileMu serialises Reconcile calls; single operations go straight to the registry.
	reconcileMu sync.Mutex
	closeOnce   sync.Once
}

// New creates a new gateway. No channel is started.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Decoders == nil {
		cfg.Decoders = decoder.Default()
	}

	snapshots := snapshot.NewStore(cfg.SnapshotDir, cfg.Logger.Named("snapshot"))

	return &Gateway{
		logger: cfg.Logger,
		registry: channel.NewRegistry(channel.RegistryConfig{
			Logger:         cfg.Logger.Named("channel"),
			Decoders:       cfg.Decoders,
			Snapshots:      snapshots,
			ListenHost:     cfg.ListenHost,
			ReadTimeout:    cfg.ReadTimeout,
			MaxFrameBytes:  cfg.MaxFrameBytes,
			MaxConnections: cfg.MaxConnections,
		}),
		capture: capture.NewClient(capture.Config{
			Timeout:          cfg.CaptureTimeout,
			MaxResponseBytes: cfg.MaxResponseBytes,
			DefaultPath:      cfg.DefaultCapturePath,
			Defaults:         cfg.CaptureDefaults,
			Decoders:         cfg.Decoders,
			Snapshots:        snapshots,
			Logger:           cfg.Logger.Named("capture"),
		}),
	}
}

// StartChannel binds port and starts ingesting typ events pushed to it.
func (g *Gateway) StartChannel(port int, typ decoder.Type) error {
	return g.registry.Start(port, decoder.ParseType(typ.String()))
}

// StartChannels starts every spec and reports each outcome in input order.
// Channels that started stay up even if others failed.
func (g *Gateway) StartChannels(specs []ChannelSpec) []StartResult {
	results := make([]StartResult, len(specs))
	for i, spec := range specs {
		results[i] = StartResult{Spec: spec, Err: g.StartChannel(spec.Port, spec.Type)}
	}
	return results
}

// StopChannel stops the channel on port and releases the port.
func (g *Gateway) StopChannel(port int) error {
	return g.registry.Stop(port)
}

// StopAll stops every channel. Safe to call when nothing, or only part of the
// configured set, was started.
func (g *Gateway) StopAll() {
	g.registry.StopAll()
}

// Poll returns and clears the latest event text of the channel on port.
// ok is false when nothing arrived since the previous poll. Poll never blocks
// on listener activity.
func (g *Gateway) Poll(port int) (text string, ok bool, err error) {
	return g.registry.Poll(port)
}

// Capture performs a synchronous query against a camera. It never touches the
// per-channel results.
func (g *Gateway) Capture(ctx context.Context, req capture.Request, maxResultSize int) (capture.Result, error) {
	return g.capture.Capture(ctx, req, maxResultSize)
}

// Channels returns a snapshot of the live channels ordered by port.
func (g *Gateway) Channels() []channel.Info {
	return g.registry.Channels()
}

// Reconcile makes the live channel set match specs: missing channels are
// started, channels not in specs are stopped and channels whose type changed
// are restarted. Per-spec start outcomes are returned; stops are logged.
func (g *Gateway) Reconcile(specs []ChannelSpec) []StartResult {
	g.reconcileMu.Lock()
	defer g.reconcileMu.Unlock()

	want := make(map[int]decoder.Type, len(specs))
	for _, spec := range specs {
		want[spec.Port] = decoder.ParseType(spec.Type.String())
	}

	var toStart []ChannelSpec
	for _, info := range g.registry.Channels() {
		typ, keep := want[info.Port]
		if keep && typ.String() == info.Type {
			delete(want, info.Port)
			continue
		}
		if err := g.registry.Stop(info.Port); err != nil && !errors.Is(err, channel.ErrNotFound) {
			g.logger.Warn("Failed to stop channel during reconcile", zap.Int("port", info.Port), zap.Error(err))
		}
	}

	for _, spec := range specs {
		if typ, ok := want[spec.Port]; ok {
			toStart = append(toStart, ChannelSpec{Port: spec.Port, Type: typ})
			delete(want, spec.Port)
		}
	}

	results := g.StartChannels(toStart)
	for _, r := range results {
		if r.Err != nil {
			g.logger.Warn("Failed to start channel during reconcile",
				zap.Int("port", r.Spec.Port),
				zap.String("channel_type", r.Spec.Type.String()),
				zap.Error(r.Err),
			)
		}
	}

	g.logger.Info("Channels reconciled",
		zap.Int("requested", len(specs)),
		zap.Int("started", len(results)),
		zap.Int("live", g.registry.Count()),
	)
	return results
}

// Close stops all channels. Later calls are no-ops.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.logger.Info("Closing gateway")
		g.registry.StopAll()
	})
}
