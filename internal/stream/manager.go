// Package stream manages WebSocket subscriptions: one connection per
// active channel, indefinite reconnect, and fan-out to observers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iskelet/bxgate/internal/metrics"
)

// ErrClosed is returned by Subscribe after CloseAll.
var ErrClosed = errors.New("stream manager is closed")

// TransportError reports a streaming connection failure.
type TransportError struct {
	Channel string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Channel, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Observer receives every decoded message on a channel. Implementations
// are treated as untrusted: an error or panic in one observer never
// blocks delivery to others or kills the connection.
type Observer interface {
	OnMessage(ctx context.Context, channel string, data json.RawMessage) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, channel string, data json.RawMessage) error

// OnMessage calls f.
func (f ObserverFunc) OnMessage(ctx context.Context, channel string, data json.RawMessage) error {
	return f(ctx, channel, data)
}

// Handle identifies one observer registration.
type Handle struct {
	id      uuid.UUID
	channel string
}

// Channel returns the channel this handle is registered on.
func (h Handle) Channel() string { return h.channel }

// ManagerConfig configures the stream manager.
type ManagerConfig struct {
	// URL is the WebSocket base, e.g. wss://stream.binance.com:9443.
	URL string

	// Header carries extra dial headers such as the API-key header
	// for user-data streams.
	Header http.Header

	ReconnectDelay   time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

func (cfg *ManagerConfig) applyDefaults() {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
}

// Manager owns one connection goroutine per subscribed channel and
// fans decoded messages out to that channel's observers. Connection
// handles never escape the manager.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	clock   clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

// NewManager creates a stream manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, collector *metrics.Collector) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		clock:   clock.New(),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*subscription),
	}
}

// Subscribe registers observer on channel, lazily starting the
// channel's connection loop on the first subscriber.
func (m *Manager) Subscribe(channel string, observer Observer) (Handle, error) {
	if channel == "" {
		return Handle{}, errors.New("channel is required")
	}
	if observer == nil {
		return Handle{}, errors.New("observer is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Handle{}, ErrClosed
	}

	sub, ok := m.subs[channel]
	if !ok {
		subCtx, subCancel := context.WithCancel(m.ctx)
		sub = &subscription{
			channel:   channel,
			observers: make(map[uuid.UUID]Observer),
			cancel:    subCancel,
		}
		m.subs[channel] = sub

		m.wg.Add(1)
		go m.run(subCtx, sub)
	}

	h := Handle{id: uuid.New(), channel: channel}
	sub.addObserver(h.id, observer)
	return h, nil
}

// Unsubscribe removes the handle's observer. The last observer on a
// channel tears the channel's connection down.
func (m *Manager) Unsubscribe(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[h.channel]
	if !ok {
		return
	}
	if sub.removeObserver(h.id) == 0 {
		sub.cancel()
		delete(m.subs, h.channel)
	}
}

// State returns the channel's connection state, or StateDisconnected
// for an unknown channel.
func (m *Manager) State(channel string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[channel]; ok {
		return sub.state()
	}
	return StateDisconnected
}

// CloseAll stops every loop, closes every connection, and waits for
// the per-channel goroutines until ctx expires.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close streams: %w", ctx.Err())
	}
}

// run is the per-channel connection loop: dial, read until error,
// back off a fixed delay, dial again. There is no reconnect ceiling;
// unattended operation rides out long outages.
func (m *Manager) run(ctx context.Context, sub *subscription) {
	defer m.wg.Done()
	defer sub.setState(StateClosed)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		sub.setState(StateConnecting)
		conn, err := m.dial(ctx, sub.channel)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			sub.setState(StateReconnecting)
			m.metrics.RecordStreamReconnect(sub.channel)
			m.logger.Warn("stream dial failed",
				"channel", sub.channel, "attempt", attempt,
				"error", &TransportError{Channel: sub.channel, Cause: err})
			if !m.sleep(ctx, m.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		sub.setState(StateConnected)
		attempt = 0
		m.metrics.RecordStreamConnect(sub.channel)
		m.logger.Debug("stream connected", "channel", sub.channel)

		readErr := m.readLoop(ctx, sub, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		sub.setState(StateReconnecting)
		m.metrics.RecordStreamReconnect(sub.channel)
		m.logger.Warn("stream disconnected, reconnecting",
			"channel", sub.channel, "error", readErr)
		if !m.sleep(ctx, m.cfg.ReconnectDelay) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context, channel string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, m.channelURL(channel), m.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (m *Manager) channelURL(channel string) string {
	return m.cfg.URL + "/ws/" + channel
}

// readLoop reads until the connection errors or ctx is cancelled.
// Malformed messages are logged and skipped; they never kill the loop.
func (m *Manager) readLoop(ctx context.Context, sub *subscription, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Closing the connection on cancellation unblocks ReadMessage.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-pingDone:
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second))
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))

		if !json.Valid(data) {
			m.metrics.RecordDecodeError(sub.channel)
			m.logger.Warn("malformed stream message skipped",
				"channel", sub.channel, "bytes", len(data))
			continue
		}

		m.metrics.RecordStreamMessage(sub.channel)
		m.dispatch(ctx, sub, json.RawMessage(data))
	}
}

// dispatch delivers one message to every observer, isolating failures.
func (m *Manager) dispatch(ctx context.Context, sub *subscription, data json.RawMessage) {
	for id, obs := range sub.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("observer panicked",
						"channel", sub.channel, "observer", id, "panic", r)
				}
			}()
			if err := obs.OnMessage(ctx, sub.channel, data); err != nil {
				m.logger.Warn("observer error",
					"channel", sub.channel, "observer", id, "error", err)
			}
		}()
	}
}

// sleep waits d on the injected clock, returning false on cancellation.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := m.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
