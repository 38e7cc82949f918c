package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHub(t *testing.T, h *Hub, opts ...ClientOption) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		h.Serve(c, opts...)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return fmt.Sprintf("ws://%s/ws", ln.Addr().String())
}

func runHub(t *testing.T, h *Hub) {
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := New("events", nil)
	runHub(t, h)

	assert.NotPanics(t, func() {
		h.BroadcastBinary([]byte{1, 2, 3})
		require.NoError(t, h.BroadcastEvent("state", map[string]string{"state": "listening"}))
	})
	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, "events", h.Name())
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	h := New("events", nil)
	// Not running: the queue fills and further messages are dropped.
	for i := 0; i < 300; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	assert.Equal(t, int64(300-256), h.Dropped())
}

func TestHub_GreetingThenBroadcast(t *testing.T) {
	h := New("events", nil)
	runHub(t, h)

	hello, err := NewEvent("snapshot", map[string]string{"state": "inactive"}).Encode()
	require.NoError(t, err)
	url := serveHub(t, h, WithGreeting(hello))

	ws := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var first Event
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, "snapshot", first.Type)

	require.NoError(t, h.BroadcastEvent("state", map[string]string{"state": "listening"}))
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"listening"`)

	h.BroadcastBinary([]byte{0xff, 0xd8})
	msgType, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorilla.BinaryMessage, msgType)
	assert.Equal(t, []byte{0xff, 0xd8}, data)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_Inbound(t *testing.T) {
	h := New("frames", nil)
	runHub(t, h)

	var mu sync.Mutex
	var got [][]byte
	url := serveHub(t, h, WithInbound(func(_ string, msgType int, data []byte) {
		if msgType != websocket.BinaryMessage {
			return
		}
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	}))

	ws := dial(t, url)
	require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, []byte("jpeg-1")))
	require.NoError(t, ws.WriteMessage(gorilla.TextMessage, []byte("ignored")))
	require.NoError(t, ws.WriteMessage(gorilla.BinaryMessage, []byte("jpeg-2")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("jpeg-1"), got[0])
	assert.Equal(t, []byte("jpeg-2"), got[1])
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	h := New("events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)

	ws := dial(t, serveHub(t, h))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !h.IsRunning() }, 2*time.Second, 5*time.Millisecond)

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, h.ClientCount())
}
