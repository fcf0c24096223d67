package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/camgate/internal/api"
	"github.com/yourusername/camgate/internal/gateway"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// newTestAPI는 실제 게이트웨이를 붙인 API 서버를 띄웁니다
func newTestAPI(t *testing.T) *APIClient {
	t.Helper()

	gw := gateway.New(gateway.Config{ListenHost: "127.0.0.1", CaptureTimeout: time.Second})
	t.Cleanup(gw.Close)

	server := api.NewServer(api.ServerConfig{Production: true, Gateway: gw, MaxResultSize: 64})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return NewAPIClient(srv.URL + "/")
}

func pushPlate(t *testing.T, port int, plate string) {
	t.Helper()
	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/alarm", port), "application/xml",
		strings.NewReader("<ANPR><licensePlate>"+plate+"</licensePlate></ANPR>"))
	require.NoError(t, err)
	resp.Body.Close()
}

func TestAPIClient_ChannelLifecycle(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	lpr, cnr := freePort(t), freePort(t)

	results, err := c.StartChannels(ctx, []ChannelSpec{{Port: lpr, Type: "LPR"}, {Port: cnr, Type: "CNR"}, {Port: lpr, Type: "LPR"}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "started", results[0].Status)
	assert.Equal(t, "started", results[1].Status)
	assert.Equal(t, "already_bound", results[2].Status)

	channels, err := c.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "listening", channels[0].State)

	_, ok, err := c.Latest(ctx, lpr)
	require.NoError(t, err)
	assert.False(t, ok)

	pushPlate(t, lpr, "ABC123")

	text, ok, err := c.Latest(ctx, lpr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC123", text)

	require.NoError(t, c.StopChannel(ctx, cnr))

	err = c.StopChannel(ctx, cnr)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "not found")
}

func TestAPIClient_CaptureErrorKind(t *testing.T) {
	c := newTestAPI(t)

	_, err := c.Capture(context.Background(), CaptureRequest{IP: fmt.Sprintf("127.0.0.1:%d", freePort(t)), Type: "LPR"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "connection_failed", apiErr.Kind)
}

func TestAPIClient_Capture(t *testing.T) {
	camera := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<ANPR><licensePlate>XYZ789</licensePlate></ANPR>"))
	}))
	defer camera.Close()

	c := newTestAPI(t)
	res, err := c.Capture(context.Background(), CaptureRequest{IP: strings.TrimPrefix(camera.URL, "http://")})
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", res.Text)
	assert.Equal(t, 6, res.Length)
}
