package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a channel's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// subscription tracks one channel: its observers and the state of the
// connection goroutine that exclusively owns the transport handle.
type subscription struct {
	channel string
	cancel  context.CancelFunc

	mu        sync.RWMutex
	observers map[uuid.UUID]Observer

	connState atomic.Int32
}

func (s *subscription) addObserver(id uuid.UUID, obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[id] = obs
}

// removeObserver deletes id and returns the remaining observer count.
func (s *subscription) removeObserver(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
	return len(s.observers)
}

// snapshot copies the observer set so dispatch never holds the lock
// while invoking untrusted callbacks.
func (s *subscription) snapshot() map[uuid.UUID]Observer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]Observer, len(s.observers))
	for id, obs := range s.observers {
		out[id] = obs
	}
	return out
}

func (s *subscription) setState(st State) {
	s.connState.Store(int32(st))
}

func (s *subscription) state() State {
	return State(s.connState.Load())
}
