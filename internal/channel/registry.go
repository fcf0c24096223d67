package channel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/metrics"
	"github.com/yourusername/camgate/internal/snapshot"
	"go.uber.org/zap"
)

// Channel은 포트 하나와 카메라 타입 태그의 쌍입니다.
// Registry가 소유하며 리스너는 슬롯만 참조합니다.
type Channel struct {
	port      int
	typ       decoder.Type
	slot      *Slot
	listener  *Listener
	startedAt time.Time
	stopping  bool
}

// Info는 채널 상태 스냅샷입니다
type Info struct {
	Port           int       `json:"port"`
	Type           string    `json:"type"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	Connections    int       `json:"connections"`
	FramesReceived uint64    `json:"frames_received"`
	EventsStored   uint64    `json:"events_stored"`
	DecodeFailures uint64    `json:"decode_failures"`
	Pending        bool      `json:"pending"`
}

// RegistryConfig는 채널 레지스트리 설정
type RegistryConfig struct {
	Logger         *zap.Logger
	Decoders       *decoder.Table
	Snapshots      *snapshot.Store
	ListenHost     string
	ReadTimeout    time.Duration
	MaxFrameBytes  int
	MaxConnections int
}

// Registry는 활성 채널 (port → channel)을 관리합니다.
// 맵은 단일 락으로 보호되고 결과 슬롯은 채널마다 별도 락을 가집니다.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	channels map[int]*Channel
	mutex    sync.RWMutex
}

// NewRegistry는 새로운 채널 레지스트리를 생성합니다
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Decoders == nil {
		cfg.Decoders = decoder.Default()
	}

	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		channels: make(map[int]*Channel),
	}
}

// Start는 포트에 채널을 등록하고 푸시 리스너를 시작합니다
func (r *Registry) Start(port int, typ decoder.Type) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	decode, ok := r.cfg.Decoders.Lookup(typ)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, exists := r.channels[port]; exists {
		return fmt.Errorf("%w: port %d (%s)", ErrAlreadyBound, port, existing.typ)
	}

	slot := &Slot{}
	listener := NewListener(ListenerConfig{
		Host:           r.cfg.ListenHost,
		Port:           port,
		Type:           typ,
		Decode:         decode,
		Slot:           slot,
		Snapshots:      r.cfg.Snapshots,
		ReadTimeout:    r.cfg.ReadTimeout,
		MaxFrameBytes:  r.cfg.MaxFrameBytes,
		MaxConnections: r.cfg.MaxConnections,
		Logger:         r.logger,
	})

	if err := listener.Start(); err != nil {
		r.logger.Error("Failed to start channel",
			zap.Int("port", port),
			zap.String("channel_type", typ.String()),
			zap.Error(err),
		)
		return err
	}

	r.channels[port] = &Channel{
		port:      port,
		typ:       typ,
		slot:      slot,
		listener:  listener,
		startedAt: time.Now(),
	}
	metrics.ChannelStarted()

	r.logger.Info("Channel started",
		zap.Int("port", port),
		zap.String("channel_type", typ.String()),
		zap.Int("total_channels", len(r.channels)),
	)
	return nil
}

// Stop은 채널의 리스너를 종료하고 레지스트리에서 제거합니다.
// 반환 시점에 포트는 해제되어 있습니다.
func (r *Registry) Stop(port int) error {
	r.mutex.Lock()
	ch, exists := r.channels[port]
	if !exists || ch.stopping {
		r.mutex.Unlock()
		return fmt.Errorf("%w: port %d", ErrNotFound, port)
	}
	ch.stopping = true
	r.mutex.Unlock()

	// 리스너 종료는 연결 고루틴을 기다리므로 레지스트리 락 밖에서 수행
	ch.listener.Stop()

	r.mutex.Lock()
	delete(r.channels, port)
	remaining := len(r.channels)
	r.mutex.Unlock()

	metrics.ChannelStopped(port)

	r.logger.Info("Channel stopped",
		zap.Int("port", port),
		zap.String("channel_type", ch.typ.String()),
		zap.Int("total_channels", remaining),
	)
	return nil
}

// StopAll은 등록된 모든 채널을 종료합니다. 동시 Stop과의 경합으로 생기는
// ErrNotFound는 무시합니다.
func (r *Registry) StopAll() {
	r.mutex.RLock()
	ports := make([]int, 0, len(r.channels))
	for port := range r.channels {
		ports = append(ports, port)
	}
	r.mutex.RUnlock()

	if len(ports) == 0 {
		return
	}

	r.logger.Info("Stopping all channels", zap.Int("count", len(ports)))

	var wg sync.WaitGroup
	for _, port := range ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			_ = r.Stop(port)
		}(port)
	}
	wg.Wait()
}

// Poll은 채널의 최신 결과를 읽고 비웁니다. 리스너 활동에 의해 블로킹되지 않습니다.
func (r *Registry) Poll(port int) (string, bool, error) {
	r.mutex.RLock()
	ch, exists := r.channels[port]
	r.mutex.RUnlock()

	if !exists {
		return "", false, fmt.Errorf("%w: port %d", ErrNotFound, port)
	}

	text, ok := ch.slot.Take()
	metrics.Polled(port, ok)
	return text, ok, nil
}

// Type은 채널의 타입 태그를 반환합니다
func (r *Registry) Type(port int) (decoder.Type, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ch, exists := r.channels[port]
	if !exists {
		return "", false
	}
	return ch.typ, true
}

// Channels는 포트 순으로 정렬된 채널 상태 목록을 반환합니다
func (r *Registry) Channels() []Info {
	r.mutex.RLock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mutex.RUnlock()

	infos := make([]Info, 0, len(channels))
	for _, ch := range channels {
		frames, events, failures := ch.listener.GetStats()
		infos = append(infos, Info{
			Port:           ch.port,
			Type:           ch.typ.String(),
			State:          ch.listener.State().String(),
			StartedAt:      ch.startedAt,
			Connections:    ch.listener.ConnectionCount(),
			FramesReceived: frames,
			EventsStored:   events,
			DecodeFailures: failures,
			Pending:        ch.slot.Pending(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Port < infos[j].Port })
	return infos
}

// Count는 등록된 채널 수를 반환합니다
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.channels)
}
