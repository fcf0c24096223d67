package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/metrics"
	"github.com/yourusername/camgate/internal/snapshot"
	"go.uber.org/zap"
)

const (
	readBufferSize         = 64 * 1024
	defaultReadTimeout     = 60 * time.Second
	defaultMaxConnections  = 64
	acceptErrorBackoff     = time.Second
	receiveBufferSizeBytes = 10 * 1024 * 1024
)

// State는 푸시 리스너의 생명주기 상태입니다
type State int32

const (
	StateStarting State = iota
	StateListening
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ListenerConfig는 푸시 리스너 설정
type ListenerConfig struct {
	Host           string
	Port           int
	Type           decoder.Type
	Decode         decoder.Func
	Slot           *Slot
	Snapshots      *snapshot.Store
	ReadTimeout    time.Duration
	MaxFrameBytes  int
	MaxConnections int
	Logger         *zap.Logger
}

// Listener는 채널 하나의 TCP 포트를 점유하고 카메라 푸시 연결을 받아
// 디코딩된 결과를 슬롯에 기록합니다. 연결마다 별도 고루틴이 실행됩니다.
type Listener struct {
	cfg    ListenerConfig
	logger *zap.Logger

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	conns  map[string]net.Conn
	connMu sync.Mutex
	wg     sync.WaitGroup

	// 통계
	framesReceived atomic.Uint64
	eventsStored   atomic.Uint64
	decodeFailures atomic.Uint64
}

// NewListener는 새로운 푸시 리스너를 생성합니다 (아직 바인드하지 않음)
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.Slot == nil {
		cfg.Slot = &Slot{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Listener{
		cfg: cfg,
		logger: cfg.Logger.With(
			zap.Int("port", cfg.Port),
			zap.String("channel_type", cfg.Type.String()),
		),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]net.Conn),
	}
	l.state.Store(int32(StateStarting))
	return l
}

// Start는 포트를 바인드하고 accept 루프를 시작합니다
func (l *Listener) Start() error {
	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		l.cancel()
		l.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %s: %v", ErrBindFailed, addr, err)
	}
	l.ln = ln
	l.state.Store(int32(StateListening))

	l.wg.Add(1)
	go l.acceptLoop()

	l.logger.Info("Push listener started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop은 accept와 진행 중인 모든 연결 읽기를 중단시키고 포트를 해제합니다.
// 모든 고루틴이 종료된 뒤 반환하며 여러 번 호출해도 안전합니다.
func (l *Listener) Stop() {
	if !l.state.CompareAndSwap(int32(StateListening), int32(StateStopping)) {
		// 이미 중지 중이거나 시작되지 않음
		l.wg.Wait()
		return
	}

	l.logger.Info("Stopping push listener")
	l.cancel()

	if l.ln != nil {
		_ = l.ln.Close()
	}

	l.connMu.Lock()
	for id, conn := range l.conns {
		_ = conn.Close()
		delete(l.conns, id)
	}
	l.connMu.Unlock()

	l.wg.Wait()
	l.state.Store(int32(StateStopped))

	l.logger.Info("Push listener stopped",
		zap.Uint64("frames_received", l.framesReceived.Load()),
		zap.Uint64("events_stored", l.eventsStored.Load()),
	)
}

// State는 현재 상태를 반환합니다
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Addr는 바인드된 주소를 반환합니다 (바인드 전에는 nil)
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// ConnectionCount는 열려 있는 카메라 연결 수를 반환합니다
func (l *Listener) ConnectionCount() int {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return len(l.conns)
}

// GetStats는 통계 정보를 반환합니다
func (l *Listener) GetStats() (framesReceived, eventsStored, decodeFailures uint64) {
	return l.framesReceived.Load(), l.eventsStored.Load(), l.decodeFailures.Load()
}

// acceptLoop는 리스너가 닫힐 때까지 연결을 받습니다
func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			// fd 고갈 등: 새 연결만 잠시 거부하고 기존 연결은 유지
			l.logger.Warn("Accept failed, backing off", zap.Error(err))
			select {
			case <-time.After(acceptErrorBackoff):
				continue
			case <-l.ctx.Done():
				return
			}
		}

		id, ok := l.track(conn)
		if !ok {
			continue
		}

		l.wg.Add(1)
		go l.serve(id, conn)
	}
}

// track은 연결을 등록합니다. 용량 초과 또는 중지 중이면 연결을 닫고 false를 반환합니다.
func (l *Listener) track(conn net.Conn) (string, bool) {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.ctx.Err() != nil {
		_ = conn.Close()
		return "", false
	}

	if len(l.conns) >= l.cfg.MaxConnections {
		l.logger.Warn("Connection limit reached, rejecting camera",
			zap.String("remote_addr", conn.RemoteAddr().String()),
			zap.Int("max_connections", l.cfg.MaxConnections),
		)
		metrics.ConnectionRejected(l.cfg.Port)
		_ = conn.Close()
		return "", false
	}

	id := uuid.NewString()
	l.conns[id] = conn
	return id, true
}

func (l *Listener) untrack(id string) {
	l.connMu.Lock()
	delete(l.conns, id)
	l.connMu.Unlock()
}

// serve는 연결 하나에서 프레임을 읽고 디코딩합니다.
// I/O 에러, 프레이밍 에러와 디코딩 에러는 이 연결만 종료시키며 리스너는 계속 동작합니다.
func (l *Listener) serve(id string, conn net.Conn) {
	logger := l.logger.With(
		zap.String("conn_id", id),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)
	started := time.Now()

	metrics.ConnectionOpened(l.cfg.Port)
	defer func() {
		_ = conn.Close()
		l.untrack(id)
		metrics.ConnectionClosed(l.cfg.Port)
		logger.Info("Camera disconnected", zap.Duration("duration", time.Since(started)))
		l.wg.Done()
	}()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetReadBuffer(receiveBufferSizeBytes)
	}

	logger.Info("Camera connected")

	fr := newFramer(l.cfg.MaxFrameBytes)
	buf := make([]byte, readBufferSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))

		n, err := conn.Read(buf)
		if n > 0 {
			logger.Debug("Received bytes", zap.Int("bytes", n))

			frames, ferr := fr.feed(buf[:n])
			for _, f := range frames {
				if !l.handleFrame(logger, conn, f) {
					return
				}
			}
			if ferr != nil {
				reason := "malformed"
				if errors.Is(ferr, errFrameTooLarge) {
					reason = "overflow"
				}
				logger.Warn("Dropping camera connection", zap.String("reason", reason), zap.Error(ferr))
				metrics.ConnectionError(l.cfg.Port, reason)
				return
			}
		}

		if err != nil {
			l.logReadError(logger, err, fr.buffered())
			return
		}
	}
}

// handleFrame은 프레임을 디코딩하여 슬롯에 기록하고 응답합니다.
// false를 반환하면 연결을 종료해야 합니다.
func (l *Listener) handleFrame(logger *zap.Logger, conn net.Conn, f frame) bool {
	l.framesReceived.Add(1)
	metrics.FrameReceived(l.cfg.Port)

	if len(f.body) > 0 {
		logger.Debug("Frame received",
			zap.String("method", f.method),
			zap.String("path", f.path),
			zap.String("content_type", f.contentType),
			zap.Int("body_bytes", len(f.body)),
		)
	}

	res, err := l.cfg.Decode(decoder.Payload{ContentType: f.contentType, Body: f.body})
	if err != nil {
		l.decodeFailures.Add(1)
		metrics.DecodeFailed(l.cfg.Port, l.cfg.Type.String())
		metrics.ConnectionError(l.cfg.Port, "decode")
		logger.Warn("Failed to decode frame, dropping connection",
			zap.Int("body_bytes", len(f.body)),
			zap.Error(err),
		)
		// 카메라가 같은 프레임을 재전송하지 않도록 수신 확인 후 종료
		l.ack(logger, conn)
		return false
	}

	if res.Empty() {
		// 하트비트 등 번호 없는 알림: 응답만 하고 연결 유지
		logger.Debug("Frame carried no event", zap.String("path", f.path))
		return l.ack(logger, conn)
	}

	for _, text := range res.Texts() {
		l.cfg.Slot.Store(text)
		l.eventsStored.Add(1)
		metrics.EventStored(l.cfg.Port, l.cfg.Type.String())
		logger.Info("Camera event stored", zap.String("text", text))
	}

	l.saveImages(logger, res.Images)
	return l.ack(logger, conn)
}

func (l *Listener) ack(logger *zap.Logger, conn net.Conn) bool {
	if _, err := conn.Write(ackResponse); err != nil {
		logger.Debug("Failed to acknowledge frame", zap.Error(err))
		return false
	}
	return true
}

func (l *Listener) saveImages(logger *zap.Logger, images []decoder.Image) {
	if !l.cfg.Snapshots.Enabled() {
		return
	}
	for _, img := range images {
		path, err := l.cfg.Snapshots.Save(l.cfg.Type.String(), img.Kind, img.Data)
		if err != nil {
			logger.Warn("Failed to save picture", zap.String("kind", img.Kind), zap.Error(err))
			continue
		}
		logger.Debug("Picture saved", zap.String("kind", img.Kind), zap.String("path", path))
	}
}

func (l *Listener) logReadError(logger *zap.Logger, err error, pending int) {
	switch {
	case l.ctx.Err() != nil:
		// Stop에 의한 종료
	case errors.Is(err, io.EOF):
		if pending > 0 {
			logger.Debug("Camera closed with partial frame", zap.Int("pending_bytes", pending))
		}
	case errors.Is(err, os.ErrDeadlineExceeded):
		metrics.ConnectionError(l.cfg.Port, "timeout")
		logger.Info("Camera connection idle, closing", zap.Duration("read_timeout", l.cfg.ReadTimeout))
	default:
		metrics.ConnectionError(l.cfg.Port, "io")
		logger.Warn("Camera connection error", zap.Error(err))
	}
}
