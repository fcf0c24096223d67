package watch

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePoller는 큐에 넣은 결과를 한 번씩 돌려주는 Poller입니다
type fakePoller struct {
	mu      sync.Mutex
	pending []string
	err     error
}

func (p *fakePoller) push(text string) {
	p.mu.Lock()
	p.pending = append(p.pending, text)
	p.mu.Unlock()
}

func (p *fakePoller) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePoller) Poll(port int) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", false, p.err
	}
	if len(p.pending) == 0 {
		return "", false, nil
	}
	text := p.pending[0]
	p.pending = p.pending[1:]
	return text, true, nil
}

func dialHub(t *testing.T, poller Poller) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(HubConfig{Poller: poller, Interval: 10 * time.Millisecond})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, 8088)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_StreamsEvents(t *testing.T) {
	poller := &fakePoller{}
	hub, conn := dialHub(t, poller)

	poller.push("ABC123")
	msg := readMessage(t, conn)
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, 8088, msg.Port)
	assert.Equal(t, "ABC123", msg.Text)

	poller.push("XYZ789")
	msg = readMessage(t, conn)
	assert.Equal(t, "XYZ789", msg.Text)

	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_ChannelGoneClosesStream(t *testing.T) {
	poller := &fakePoller{}
	hub, conn := dialHub(t, poller)

	poller.fail(errors.New("channel not found: port 8088"))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Text, "not found")

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, conn := dialHub(t, &fakePoller{})

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
