package websocket

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	return hub
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := startHub(t)

	a := &Client{ID: "a", Hub: hub, Send: make(chan []byte, 1)}
	b := &Client{ID: "b", Hub: hub, Send: make(chan []byte, 1)}
	require.True(t, hub.Register(a))
	require.True(t, hub.Register(b))

	require.True(t, hub.Broadcast([]byte(`{"type":"extraction"}`)))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.Send:
			assert.Equal(t, `{"type":"extraction"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("client %s got no message", c.ID)
		}
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)

	c := &Client{ID: "c", Hub: hub, Send: make(chan []byte, 1)}
	require.True(t, hub.Register(c))
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	// Not running, so nothing drains the queue
	hub := NewHub(quietLogger())

	for i := 0; i < cap(hub.broadcast); i++ {
		require.True(t, hub.Broadcast([]byte("x")))
	}
	assert.False(t, hub.Broadcast([]byte("overflow")))
}

func TestHub_RegisterAfterStop(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	assert.False(t, hub.Register(&Client{ID: "late", Hub: hub, Send: make(chan []byte, 1)}))
}

func TestWebSocketHandler_DeliversBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t)

	r := gin.New()
	r.GET("/ws", WebSocketHandler(hub, quietLogger()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast([]byte(`{"type":"extraction","count":2}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"extraction","count":2}`, string(msg))
}
