package merge

import (
	"sync"
	"time"
)

// SessionState is one client connection's place in its lifecycle.
type SessionState uint8

const (
	// StateConnected: handshake done, no batch traffic yet.
	StateConnected SessionState = iota
	// StateActive: exchanging batches or heartbeats.
	StateActive
	// StateIdle: no traffic for the idle timeout; about to be closed.
	StateIdle
	// StateClosed: terminal. Closing never invalidates committed records.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session tracks one client connection. The state machine is driven from
// two sides: Touch on every received frame, and Observe from the reaper.
// Keeping the transitions here, away from the network loop, makes the
// Idle/Closed path testable without a connection.
type session struct {
	id       string
	maxBatch uint32

	// out carries frames queued for the client; the stream handler drains
	// it. done is closed exactly once to force the handler to return.
	out  chan []byte
	done chan struct{}

	mu       sync.Mutex
	state    SessionState
	lastSeen time.Time
	closing  sync.Once
}

func newSession(id string, maxBatch uint32, now time.Time) *session {
	return &session{
		id:       id,
		maxBatch: maxBatch,
		out:      make(chan []byte, 16),
		done:     make(chan struct{}),
		state:    StateConnected,
		lastSeen: now,
	}
}

// Touch records traffic from the client. Connected and Idle sessions become
// Active again; a Closed session stays closed (the reaper won).
func (s *session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateActive
	s.lastSeen = now
}

// Observe advances the timeout side of the machine and returns the state
// after the step: a session quiet for longer than timeout becomes Idle.
// The caller decides to Close an Idle session; Observe itself never closes.
func (s *session) Observe(now time.Time, timeout time.Duration) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected, StateActive:
		if now.Sub(s.lastSeen) > timeout {
			s.state = StateIdle
		}
	}
	return s.state
}

// Close transitions to Closed and releases the stream handler. Idempotent.
func (s *session) Close() {
	s.closing.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
	})
}

// State reports the current state.
func (s *session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// send queues a frame for the client without ever blocking the caller. A
// session too slow to drain its queue misses broadcasts; the solved frame is
// re-offered by the heartbeat path, so nothing is lost permanently.
func (s *session) send(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}
