package websocket

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"basket_swap/pkg/logging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ReceivesAndReconnects(t *testing.T) {
	var dials atomic.Int32
	var sawKey atomic.Bool
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "k1" {
			sawKey.Store(true)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"snapshot","n":`+strconv.Itoa(int(n))+`}`))
		// drop the first connection to force a redial
		if n == 1 {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
		conn.Close()
	}))
	defer srv.Close()

	got := make(chan string, 8)
	header := http.Header{}
	header.Set("x-api-key", "k1")
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), func(msg []byte) { got <- string(msg) },
		logging.NopLogger{}, WithHeader(header), WithReconnectWait(10*time.Millisecond))
	c.Start()
	defer c.Stop()

	for _, want := range []string{`"n":1`, `"n":2`} {
		select {
		case msg := <-got:
			assert.Contains(t, msg, want)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing message %s", want)
		}
	}
	assert.True(t, sawKey.Load())
	require.GreaterOrEqual(t, dials.Load(), int32(2))
}

func TestClient_StopWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", nil, logging.NopLogger{}, WithReconnectWait(time.Hour))
	c.Start()

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
