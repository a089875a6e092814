package callstack

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionTTL bounds how long an idle session may keep its stack.
const DefaultSessionTTL = 10 * time.Minute

// Sessions is a TTL-bounded registry of live stacks keyed by session id.
// Transports that hold one stack per client session register here; a
// janitor releases stacks whose sessions went idle, so a crashed client
// cannot leak frames. Touching a session through Get slides its deadline.
type Sessions struct {
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
	closed  bool

	done chan struct{}
}

type sessionEntry struct {
	stack    *Stack
	deadline time.Time
}

// NewSessions starts a registry whose idle sessions expire after ttl. A
// non-positive ttl selects DefaultSessionTTL.
func NewSessions(ttl time.Duration, logger *zap.Logger) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Sessions{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*sessionEntry),
		done:    make(chan struct{}),
	}
	go s.janitor(sweepInterval(ttl))
	return s
}

func sweepInterval(ttl time.Duration) time.Duration {
	iv := ttl / 4
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	if iv > 30*time.Second {
		iv = 30 * time.Second
	}
	return iv
}

// Create registers a fresh session and returns its id and stack.
func (s *Sessions) Create() (string, *Stack) {
	id := uuid.NewString()
	st := NewStack()
	s.mu.Lock()
	s.entries[id] = &sessionEntry{stack: st, deadline: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return id, st
}

// Get returns the stack for id and slides its deadline. Unknown and
// expired sessions report false; an expired session is released on the
// spot rather than waiting for the janitor.
func (s *Sessions) Get(id string) (*Stack, bool) {
	now := time.Now()
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if now.After(e.deadline) {
		delete(s.entries, id)
		s.mu.Unlock()
		e.stack.clear()
		return nil, false
	}
	e.deadline = now.Add(s.ttl)
	s.mu.Unlock()
	return e.stack, true
}

// End removes the session and releases any frames still on its stack.
func (s *Sessions) End(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		e.stack.clear()
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the janitor and releases every live session.
func (s *Sessions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	entries := s.entries
	s.entries = make(map[string]*sessionEntry)
	s.mu.Unlock()
	for _, e := range entries {
		e.stack.clear()
	}
}

func (s *Sessions) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Sessions) sweep(now time.Time) {
	var expired []*Stack
	s.mu.Lock()
	for id, e := range s.entries {
		if now.After(e.deadline) {
			delete(s.entries, id)
			expired = append(expired, e.stack)
		}
	}
	s.mu.Unlock()
	for _, st := range expired {
		if n := st.clear(); n > 0 {
			s.logger.Warn("expired session held live frames", zap.Int("frames", n))
		}
	}
}
