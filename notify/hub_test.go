package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.Attach))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients, have %d", n, h.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	h.Broadcast(map[string]string{"type": "classification_complete"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	assert.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "classification_complete", got["type"])
}

func TestHubCountNotBlockedByBroadcast(t *testing.T) {
	h := NewHub()
	dialHub(t, h)
	waitForClients(t, h, 1)

	// Broadcast is fire-and-forget; the registry must stay available to
	// Attach/Count while the send goroutine is writing.
	for i := 0; i < 10; i++ {
		h.Broadcast(map[string]int{"seq": i})
	}

	done := make(chan int, 1)
	go func() { done <- h.Count() }()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("Count blocked while broadcasts were in flight")
	}
}

func TestHubDropsClosedClient(t *testing.T) {
	h := NewHub()
	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	_ = conn.Close()
	waitForClients(t, h, 0)
}
