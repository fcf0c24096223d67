// Package capture performs on-demand snapshot queries against a camera's ISAPI endpoint.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/icholy/digest"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/metrics"
	"github.com/yourusername/camgate/internal/snapshot"
	"go.uber.org/zap"
)

const (
	DefaultPath             = "/ISAPI/Traffic/MNPR/channels/1"
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 16 * 1024 * 1024
)

// Credentials are the per-type fallbacks used when a request leaves a field empty.
type Credentials struct {
	IP       string
	Username string
	Password string
}

// Request describes one capture call. It is built per call and never stored.
type Request struct {
	IP       string
	Username string
	Password string
	// ExtraParam is the ISAPI path to query; empty selects the configured default.
	ExtraParam string
	Type       decoder.Type
}

// Result is the decoded capture text. Length is the byte length of Text; 0 means
// the camera had nothing to report.
type Result struct {
	Text      string `json:"text"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated"`
}

// Config holds the configuration for Client
type Config struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	DefaultPath      string
	Defaults         map[decoder.Type]Credentials
	Decoders         *decoder.Table
	Snapshots        *snapshot.Store
	Logger           *zap.Logger
}

// Client issues capture requests. It holds no per-call state and is safe for concurrent use.
type Client struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient creates a new capture client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = DefaultPath
	}
	if cfg.Decoders == nil {
		cfg.Decoders = decoder.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Capture queries the camera and decodes its answer. The call is bounded by the
// configured timeout (and by ctx). maxResultSize caps the returned text in bytes;
// a longer text is cut at a rune boundary and returned together with ErrTruncated.
// maxResultSize <= 0 means no cap.
func (c *Client) Capture(ctx context.Context, req Request, maxResultSize int) (Result, error) {
	req = c.withDefaults(req)
	started := time.Now()
	requestID := uuid.NewString()

	logger := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("ip", req.IP),
		zap.String("channel_type", req.Type.String()),
		zap.String("path", req.ExtraParam),
	)

	res, err := c.capture(ctx, logger, req, maxResultSize)
	metrics.CaptureDone(req.Type.String(), Outcome(err), time.Since(started))

	if err != nil && !errors.Is(err, ErrTruncated) {
		logger.Warn("Capture failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
	} else {
		logger.Info("Capture completed",
			zap.Duration("elapsed", time.Since(started)),
			zap.Int("length", res.Length),
			zap.Bool("truncated", res.Truncated),
		)
	}
	return res, err
}

func (c *Client) capture(ctx context.Context, logger *zap.Logger, req Request, maxResultSize int) (Result, error) {
	decode, ok := c.cfg.Decoders.Lookup(req.Type)
	if !ok {
		return Result{}, &Error{Kind: ErrDecodeFailed, IP: req.IP, Err: fmt.Errorf("no decoder for channel type %q", req.Type)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	// 연결 수립 전 실패는 타임아웃이라도 연결 실패로 분류
	var connected atomic.Bool
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	})

	url := "http://" + req.IP + req.ExtraParam
	resp, err := c.get(ctx, url, req)
	if err != nil {
		return Result{}, c.transportError(req.IP, err, connected.Load())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, &Error{Kind: ErrAuthFailed, IP: req.IP, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{}, &Error{Kind: ErrUnexpectedStatus, IP: req.IP, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return Result{}, c.transportError(req.IP, err, true)
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return Result{Truncated: true}, &Error{Kind: ErrTruncated, IP: req.IP,
			Err: fmt.Errorf("response exceeds %d bytes", c.cfg.MaxResponseBytes)}
	}

	logger.Debug("Capture response received",
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int("bytes", len(body)),
	)

	decoded, err := decode(decoder.Payload{ContentType: resp.Header.Get("Content-Type"), Body: body})
	if err != nil {
		// 해석할 수 없는 응답도 에러가 아닌 빈 결과
		logger.Debug("Capture response could not be decoded", zap.Error(err))
		return Result{}, nil
	}

	c.saveImages(logger, req.Type, decoded.Images)

	text := decoded.Plate
	if text == "" {
		text = decoded.Container
	}
	return truncate(text, maxResultSize, req.IP)
}

// get sends the GET, answering a Digest or Basic challenge once.
func (c *Client) get(ctx context.Context, url string, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || req.Username == "" {
		return resp, err
	}

	retry := httpReq.Clone(ctx)
	if chal, cerr := digest.FindChallenge(resp.Header); cerr == nil {
		cred, derr := digest.Digest(chal, digest.Options{
			Method:   retry.Method,
			URI:      retry.URL.RequestURI(),
			Count:    1,
			Username: req.Username,
			Password: req.Password,
		})
		if derr != nil {
			return resp, nil
		}
		retry.Header.Set("Authorization", cred.String())
	} else if hasBasicChallenge(resp.Header) {
		retry.SetBasicAuth(req.Username, req.Password)
	} else {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return c.httpClient.Do(retry)
}

func hasBasicChallenge(h http.Header) bool {
	for _, v := range h.Values("WWW-Authenticate") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "basic") {
			return true
		}
	}
	return false
}

// transportError classifies a transport failure. Anything before a connection
// was established means the camera is unreachable; only waits on an open
// connection count as timeouts.
func (c *Client) transportError(ip string, err error, connected bool) error {
	if !connected {
		return &Error{Kind: ErrConnectionFailed, IP: ip, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: ErrTimeout, IP: ip, Err: err}
	}
	return &Error{Kind: ErrConnectionFailed, IP: ip, Err: err}
}

func (c *Client) withDefaults(req Request) Request {
	req.Type = decoder.ParseType(req.Type.String())

	def := c.cfg.Defaults[req.Type]
	if req.IP == "" {
		req.IP = def.IP
	}
	if req.Username == "" {
		req.Username = def.Username
	}
	if req.Password == "" {
		req.Password = def.Password
	}
	if req.ExtraParam == "" {
		req.ExtraParam = c.cfg.DefaultPath
	}
	if !strings.HasPrefix(req.ExtraParam, "/") {
		req.ExtraParam = "/" + req.ExtraParam
	}
	return req
}

func (c *Client) saveImages(logger *zap.Logger, typ decoder.Type, images []decoder.Image) {
	if !c.cfg.Snapshots.Enabled() {
		return
	}
	for _, img := range images {
		if _, err := c.cfg.Snapshots.Save(typ.String(), img.Kind, img.Data); err != nil {
			logger.Warn("Failed to save capture picture", zap.String("kind", img.Kind), zap.Error(err))
		}
	}
}

// truncate cuts text to at most max bytes without splitting a UTF-8 sequence.
func truncate(text string, max int, ip string) (Result, error) {
	if max <= 0 || len(text) <= max {
		return Result{Text: text, Length: len(text)}, nil
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	partial := text[:cut]
	return Result{Text: partial, Length: len(partial), Truncated: true},
		&Error{Kind: ErrTruncated, IP: ip, Err: fmt.Errorf("%d byte result, buffer holds %d", len(text), max)}
}
