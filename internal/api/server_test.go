package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/channel"
	"github.com/yourusername/camgate/internal/decoder"
	"github.com/yourusername/camgate/internal/gateway"
)

// fakeGateway는 Gateway 인터페이스의 메모리 구현입니다
type fakeGateway struct {
	channels map[int]decoder.Type
	pending  map[int]string

	captureReq    capture.Request
	captureMax    int
	captureResult capture.Result
	captureErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		channels: make(map[int]decoder.Type),
		pending:  make(map[int]string),
	}
}

func (g *fakeGateway) StartChannels(specs []gateway.ChannelSpec) []gateway.StartResult {
	results := make([]gateway.StartResult, len(specs))
	for i, spec := range specs {
		results[i].Spec = spec
		switch {
		case spec.Port < 1 || spec.Port > 65535:
			results[i].Err = fmt.Errorf("%w: %d", channel.ErrInvalidPort, spec.Port)
		case g.channels[spec.Port] != "":
			results[i].Err = fmt.Errorf("%w: port %d", channel.ErrAlreadyBound, spec.Port)
		default:
			g.channels[spec.Port] = spec.Type
		}
	}
	return results
}

func (g *fakeGateway) StopChannel(port int) error {
	if _, ok := g.channels[port]; !ok {
		return fmt.Errorf("%w: port %d", channel.ErrNotFound, port)
	}
	delete(g.channels, port)
	return nil
}

func (g *fakeGateway) Poll(port int) (string, bool, error) {
	if _, ok := g.channels[port]; !ok {
		return "", false, fmt.Errorf("%w: port %d", channel.ErrNotFound, port)
	}
	text, ok := g.pending[port]
	delete(g.pending, port)
	return text, ok, nil
}

func (g *fakeGateway) Capture(_ context.Context, req capture.Request, maxResultSize int) (capture.Result, error) {
	g.captureReq = req
	g.captureMax = maxResultSize
	return g.captureResult, g.captureErr
}

func (g *fakeGateway) Channels() []channel.Info {
	infos := make([]channel.Info, 0, len(g.channels))
	for port, typ := range g.channels {
		infos = append(infos, channel.Info{Port: port, Type: typ.String(), State: "listening"})
	}
	return infos
}

func newTestServer(gw *fakeGateway) *Server {
	return NewServer(ServerConfig{
		Production:    true,
		Gateway:       gw,
		MaxResultSize: 256,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(newFakeGateway()), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON(t, rec)["status"])
}

func TestStartChannels(t *testing.T) {
	gw := newFakeGateway()
	s := newTestServer(gw)

	rec := do(t, s, http.MethodPost, "/api/v1/channels", `{"port": 8088, "type": "lpr"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, decoder.LPR, gw.channels[8088])

	rec = do(t, s, http.MethodPost, "/api/v1/channels",
		`{"channels": [{"port": 8087, "type": "CNR"}, {"port": 8088, "type": "LPR"}, {"port": 0}]}`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)

	var out struct {
		Results []startResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 3)
	assert.Equal(t, "started", out.Results[0].Status)
	assert.Equal(t, "already_bound", out.Results[1].Status)
	assert.Equal(t, "invalid_port", out.Results[2].Status)
	assert.Equal(t, "LPR", out.Results[2].Type)

	rec = do(t, s, http.MethodPost, "/api/v1/channels", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/channels", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndStopChannels(t *testing.T) {
	gw := newFakeGateway()
	gw.channels[8088] = decoder.LPR
	s := newTestServer(gw)

	rec := do(t, s, http.MethodGet, "/api/v1/channels", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON(t, rec)["channels"], 1)

	rec = do(t, s, http.MethodDelete, "/api/v1/channels/8088", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/channels/8088", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/channels/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollLatest(t *testing.T) {
	gw := newFakeGateway()
	gw.channels[8088] = decoder.LPR
	gw.pending[8088] = "Plate ABC123 detected"
	s := newTestServer(gw)

	rec := do(t, s, http.MethodGet, "/api/v1/channels/8088/latest", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Plate ABC123 detected", decodeJSON(t, rec)["text"])

	rec = do(t, s, http.MethodGet, "/api/v1/channels/8088/latest", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/channels/9999/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCapture(t *testing.T) {
	gw := newFakeGateway()
	gw.captureResult = capture.Result{Text: "ABC123", Length: 6}
	s := newTestServer(gw)

	rec := do(t, s, http.MethodPost, "/api/v1/capture",
		`{"ip": "10.0.0.5", "username": "admin", "password": "pw", "type": "CNR"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC123", decodeJSON(t, rec)["text"])
	assert.Equal(t, "10.0.0.5", gw.captureReq.IP)
	assert.Equal(t, decoder.Type("CNR"), gw.captureReq.Type)
	assert.Equal(t, 256, gw.captureMax)
}

func TestCapture_ErrorKinds(t *testing.T) {
	tests := []struct {
		kind   error
		status int
		label  string
	}{
		{capture.ErrAuthFailed, http.StatusBadGateway, "auth_failed"},
		{capture.ErrConnectionFailed, http.StatusBadGateway, "connection_failed"},
		{capture.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
		{capture.ErrDecodeFailed, http.StatusUnprocessableEntity, "decode_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			gw := newFakeGateway()
			gw.captureErr = &capture.Error{Kind: tt.kind, IP: "10.0.0.5"}
			s := newTestServer(gw)

			rec := do(t, s, http.MethodPost, "/api/v1/capture", `{"ip": "10.0.0.5", "max_result_size": 64}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.label, decodeJSON(t, rec)["kind"])
			assert.Equal(t, 64, gw.captureMax)
		})
	}
}

func TestCapture_TruncatedReturnsPartialText(t *testing.T) {
	gw := newFakeGateway()
	gw.captureResult = capture.Result{Text: "ABC", Length: 3, Truncated: true}
	gw.captureErr = &capture.Error{Kind: capture.ErrTruncated}
	s := newTestServer(gw)

	rec := do(t, s, http.MethodPost, "/api/v1/capture", `{"ip": "10.0.0.5", "max_result_size": 3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	out := decodeJSON(t, rec)
	assert.Equal(t, "ABC", out["text"])
	assert.Equal(t, true, out["truncated"])
}

func TestMetricsRoute(t *testing.T) {
	rec := do(t, newTestServer(newFakeGateway()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestWebSocketRoute_UnknownChannel(t *testing.T) {
	var called bool
	s := NewServer(ServerConfig{
		Production: true,
		Gateway:    newFakeGateway(),
		WebSocketHandler: func(http.ResponseWriter, *http.Request, int) {
			called = true
		},
	})

	rec := do(t, s, http.MethodGet, "/ws/channels/8088", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, called)
}
