package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// wsServer runs handler for every accepted connection and returns the
// ws:// base URL of the server.
func wsServer(t *testing.T, handler func(conn *websocket.Conn, connNum int64)) string {
	t.Helper()
	var conns atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, conns.Add(1))
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testManager(t *testing.T, url string) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		URL:            url,
		ReconnectDelay: 20 * time.Millisecond,
		ReadTimeout:    5 * time.Second,
		PingInterval:   time.Second,
	}, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.CloseAll(ctx)
	})
	return m
}

func collectOne(ch chan json.RawMessage, timeout time.Duration) (json.RawMessage, bool) {
	select {
	case msg := <-ch:
		return msg, true
	case <-time.After(timeout):
		return nil, false
	}
}

func TestManager(t *testing.T) {
	t.Run("every observer receives every message", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, _ int64) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","p":"100"}`))
			// Hold the connection open until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		first := make(chan json.RawMessage, 1)
		second := make(chan json.RawMessage, 1)
		recv := func(ch chan json.RawMessage) Observer {
			return ObserverFunc(func(_ context.Context, _ string, data json.RawMessage) error {
				select {
				case ch <- data:
				default:
				}
				return nil
			})
		}

		if _, err := m.Subscribe("btcusdt@trade", recv(first)); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		if _, err := m.Subscribe("btcusdt@trade", recv(second)); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}

		for name, ch := range map[string]chan json.RawMessage{"first": first, "second": second} {
			msg, ok := collectOne(ch, 2*time.Second)
			if !ok {
				t.Fatalf("%s observer received nothing", name)
			}
			var parsed map[string]any
			if err := json.Unmarshal(msg, &parsed); err != nil {
				t.Errorf("%s observer got invalid JSON: %v", name, err)
			}
		}
	})

	t.Run("malformed messages are skipped", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, _ int64) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"ok":true}`))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		got := make(chan json.RawMessage, 1)
		m.Subscribe("ethusdt@ticker", ObserverFunc(func(_ context.Context, _ string, data json.RawMessage) error {
			select {
			case got <- data:
			default:
			}
			return nil
		}))

		msg, ok := collectOne(got, 2*time.Second)
		if !ok {
			t.Fatal("valid message after a malformed one was not delivered")
		}
		if string(msg) != `{"ok":true}` {
			t.Errorf("delivered = %s, want the valid message only", msg)
		}
	})

	t.Run("observer failure is isolated", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, _ int64) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"n":1}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"n":2}`))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		var delivered atomic.Int64
		m.Subscribe("bnbusdt@depth", ObserverFunc(func(_ context.Context, _ string, _ json.RawMessage) error {
			panic("observer bug")
		}))
		m.Subscribe("bnbusdt@depth", ObserverFunc(func(_ context.Context, _ string, _ json.RawMessage) error {
			delivered.Add(1)
			return errors.New("handler failed")
		}))

		deadline := time.Now().Add(2 * time.Second)
		for delivered.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if delivered.Load() < 2 {
			t.Errorf("healthy observer delivered %d messages, want 2", delivered.Load())
		}
	})

	t.Run("reconnects after transport drop keeping observers", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, connNum int64) {
			if connNum == 1 {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"conn":1}`))
				return // drop the first connection
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"conn":2}`))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		msgs := make(chan json.RawMessage, 4)
		m.Subscribe("btcusdt@kline_1m", ObserverFunc(func(_ context.Context, _ string, data json.RawMessage) error {
			msgs <- data
			return nil
		}))

		var seenSecond bool
		deadline := time.Now().Add(3 * time.Second)
		for !seenSecond && time.Now().Before(deadline) {
			if msg, ok := collectOne(msgs, 200*time.Millisecond); ok {
				if strings.Contains(string(msg), `"conn":2`) {
					seenSecond = true
				}
			}
		}
		if !seenSecond {
			t.Fatal("observer did not receive messages after reconnect")
		}
		if st := m.State("btcusdt@kline_1m"); st != StateConnected {
			t.Errorf("state = %v after recovery, want connected", st)
		}
	})

	t.Run("unsubscribing the last observer tears the channel down", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, _ int64) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		h, err := m.Subscribe("solusdt@trade", ObserverFunc(func(context.Context, string, json.RawMessage) error {
			return nil
		}))
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}

		m.Unsubscribe(h)
		if st := m.State("solusdt@trade"); st != StateDisconnected {
			t.Errorf("state = %v after unsubscribe, want disconnected", st)
		}
	})

	t.Run("close all stops loops and rejects new subscriptions", func(t *testing.T) {
		url := wsServer(t, func(conn *websocket.Conn, _ int64) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		m := testManager(t, url)

		m.Subscribe("a@trade", ObserverFunc(func(context.Context, string, json.RawMessage) error { return nil }))
		m.Subscribe("b@trade", ObserverFunc(func(context.Context, string, json.RawMessage) error { return nil }))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.CloseAll(ctx); err != nil {
			t.Fatalf("CloseAll() error = %v", err)
		}

		if _, err := m.Subscribe("c@trade", ObserverFunc(func(context.Context, string, json.RawMessage) error {
			return nil
		})); !errors.Is(err, ErrClosed) {
			t.Errorf("Subscribe() after close error = %v, want ErrClosed", err)
		}
	})
}
