package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/channel"
	"github.com/yourusername/camgate/internal/decoder"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(Config{ListenHost: "127.0.0.1", CaptureTimeout: 2 * time.Second})
	t.Cleanup(g.Close)
	return g
}

// pushEvent는 카메라처럼 알람 XML을 채널 포트로 POST 합니다
func pushEvent(t *testing.T, port int, xml string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://127.0.0.1:%d/alarm", port), "application/xml", strings.NewReader(xml))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func plateAlert(plate string) string {
	return `<EventNotificationAlert><eventType>ANPR</eventType><ANPR><licensePlate>` + plate + `</licensePlate></ANPR></EventNotificationAlert>`
}

func TestGateway_PushAndPoll(t *testing.T) {
	g := newTestGateway(t)
	lprPort, cnrPort := freePort(t), freePort(t)

	results := g.StartChannels([]ChannelSpec{
		{Port: lprPort, Type: decoder.LPR},
		{Port: cnrPort, Type: decoder.CNR},
	})
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	_, ok, err := g.Poll(lprPort)
	require.NoError(t, err)
	assert.False(t, ok)

	pushEvent(t, lprPort, plateAlert("ABC123"))

	text, ok, err := g.Poll(lprPort)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC123", text)

	_, ok, err = g.Poll(cnrPort)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.Poll(lprPort)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateway_StartChannelsReportsEachOutcome(t *testing.T) {
	g := newTestGateway(t)
	port := freePort(t)

	results := g.StartChannels([]ChannelSpec{
		{Port: port, Type: decoder.LPR},
		{Port: port, Type: decoder.CNR},
		{Port: 0, Type: decoder.LPR},
		{Port: freePort(t), Type: "RADAR"},
	})

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, channel.ErrAlreadyBound)
	assert.ErrorIs(t, results[2].Err, channel.ErrInvalidPort)
	assert.ErrorIs(t, results[3].Err, channel.ErrUnknownType)

	// 부분 실패 시 롤백하지 않음
	infos := g.Channels()
	require.Len(t, infos, 1)
	assert.Equal(t, port, infos[0].Port)
	assert.Equal(t, "LPR", infos[0].Type)
}

func TestGateway_StopAndRestart(t *testing.T) {
	g := newTestGateway(t)
	port := freePort(t)

	require.NoError(t, g.StartChannel(port, "lpr"))
	require.NoError(t, g.StopChannel(port))
	assert.ErrorIs(t, g.StopChannel(port), channel.ErrNotFound)

	_, _, err := g.Poll(port)
	assert.ErrorIs(t, err, channel.ErrNotFound)

	require.NoError(t, g.StartChannel(port, decoder.CNR))
}

func TestGateway_StopAllWithoutChannels(t *testing.T) {
	g := newTestGateway(t)
	g.StopAll()
	g.Close()
	g.Close()
	assert.Empty(t, g.Channels())
}

func TestGateway_Reconcile(t *testing.T) {
	g := newTestGateway(t)
	keep, retype, drop, add := freePort(t), freePort(t), freePort(t), freePort(t)

	for _, r := range g.StartChannels([]ChannelSpec{
		{Port: keep, Type: decoder.LPR},
		{Port: retype, Type: decoder.LPR},
		{Port: drop, Type: decoder.CNR},
	}) {
		require.NoError(t, r.Err)
	}

	// 유지되는 채널의 대기 결과는 재조정 후에도 남아 있어야 함
	pushEvent(t, keep, plateAlert("KEEP01"))

	results := g.Reconcile([]ChannelSpec{
		{Port: keep, Type: "lpr"},
		{Port: retype, Type: decoder.CNR},
		{Port: add, Type: decoder.LPR},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	got := make(map[int]string)
	for _, info := range g.Channels() {
		got[info.Port] = info.Type
	}
	assert.Equal(t, map[int]string{keep: "LPR", retype: "CNR", add: "LPR"}, got)

	text, ok, err := g.Poll(keep)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "KEEP01", text)

	_, _, err = g.Poll(drop)
	assert.ErrorIs(t, err, channel.ErrNotFound)
}

func TestGateway_CaptureBypassesChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "abcd2468" {
			w.Header().Set("WWW-Authenticate", `Basic realm="camera"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(plateAlert("CAP777")))
	}))
	defer srv.Close()

	g := newTestGateway(t)
	port := freePort(t)
	require.NoError(t, g.StartChannel(port, decoder.LPR))

	res, err := g.Capture(context.Background(), capture.Request{
		IP:       strings.TrimPrefix(srv.URL, "http://"),
		Username: "admin",
		Password: "abcd2468",
		Type:     decoder.LPR,
	}, 1024)
	require.NoError(t, err)
	assert.Equal(t, "CAP777", res.Text)

	_, ok, err := g.Poll(port)
	require.NoError(t, err)
	assert.False(t, ok)
}
