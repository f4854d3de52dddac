package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultTimeout = 60 * time.Second

// EvictReason tells why a session left the registry.
type EvictReason string

const (
	// EvictClosed follows an explicit Close event.
	EvictClosed EvictReason = "closed"
	// EvictExpired follows an inactivity timeout.
	EvictExpired EvictReason = "expired"
	// EvictRenderFailed follows a failed message edit.
	EvictRenderFailed EvictReason = "render_failed"
	// EvictShutdown follows Registry.Shutdown.
	EvictShutdown EvictReason = "shutdown"
)

// EvictHook observes sessions leaving the registry. It runs after the
// session lock is released and may perform I/O.
type EvictHook func(session *Session, reason EvictReason)

// RegistryOption configures NewRegistry.
type RegistryOption func(*Registry)

// WithTimeout sets the inactivity timeout of tracked sessions.
func WithTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithClock sets the clock driving expiry timers.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEvictHook appends an eviction observer.
func WithEvictHook(hook EvictHook) RegistryOption {
	return func(r *Registry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// Registry maps posted messages to live sessions and owns their expiry
// timers. The map lock only guards map access; transitions lock the session.
type Registry struct {
	timeout time.Duration
	clock   Clock
	logger  *slog.Logger
	hooks   []EvictHook

	mu       sync.RWMutex
	sessions map[MessageKey]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	registry := &Registry{
		timeout:  defaultTimeout,
		clock:    SystemClock(),
		logger:   slog.Default(),
		sessions: make(map[MessageKey]*Session),
	}
	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Timeout returns the inactivity timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Track binds session to key and arms its expiry timer.
func (r *Registry) Track(key MessageKey, session *Session) error {
	if session == nil {
		return fmt.Errorf("track %s: nil session", key)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.closed {
		return fmt.Errorf("track %s: %w", key, ErrSessionClosed)
	}

	r.mu.Lock()
	if _, exists := r.sessions[key]; exists {
		r.mu.Unlock()
		return fmt.Errorf("track %s: %w", key, ErrSessionTracked)
	}
	r.sessions[key] = session
	r.mu.Unlock()

	session.key = key
	session.registry = r
	r.arm(session)

	return nil
}

// Lookup returns the live session bound to key.
func (r *Registry) Lookup(key MessageKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[key]
	return session, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Apply runs event against the session bound to key.
//
// Accepted transitions reschedule expiry. When the page changed, render is
// called with the session still locked so edits land in transition order. A
// render error evicts the session unless it wraps ErrRenderDeferred.
func (r *Registry) Apply(key MessageKey, event Event, render func(Page) error) (Transition, error) {
	session, ok := r.Lookup(key)
	if !ok {
		return Transition{Action: event.Action}, ErrUnknownSession
	}

	return r.applyTo(session, event, render)
}

func (r *Registry) applyTo(session *Session, event Event, render func(Page) error) (Transition, error) {
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return Transition{Action: event.Action}, ErrUnknownSession
	}

	transition := session.apply(event)
	switch {
	case transition.Closed:
		r.release(session)
		session.mu.Unlock()
		r.notify(session, EvictClosed)
		return transition, nil
	case !transition.Accepted:
		session.mu.Unlock()
		return transition, nil
	}

	r.arm(session)
	if !transition.Changed || render == nil {
		session.mu.Unlock()
		return transition, nil
	}

	renderErr := render(transition.Page)
	if renderErr == nil {
		session.mu.Unlock()
		return transition, nil
	}
	if errors.Is(renderErr, ErrRenderDeferred) {
		session.mu.Unlock()
		return transition, renderErr
	}

	session.closed = true
	r.release(session)
	session.mu.Unlock()
	r.notify(session, EvictRenderFailed)

	return transition, fmt.Errorf("%w: %w", ErrRenderFailed, renderErr)
}

// Close ends the session bound to key as if a Close event arrived.
func (r *Registry) Close(key MessageKey) bool {
	_, err := r.Apply(key, Event{Action: ActionClose}, nil)
	return err == nil
}

// Shutdown closes every live session and cancels every timer.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.mu.Lock()
		if session.closed {
			session.mu.Unlock()
			continue
		}
		session.closed = true
		r.release(session)
		session.mu.Unlock()
		r.notify(session, EvictShutdown)
	}
}

// arm reschedules the session expiry; requires session.mu.
func (r *Registry) arm(session *Session) {
	if session.timer != nil {
		session.timer.Stop()
	}
	session.generation++
	generation := session.generation
	session.expiresAt = r.clock.Now().Add(r.timeout)
	session.timer = r.clock.AfterFunc(r.timeout, func() {
		r.expire(session, generation)
	})
}

// expire closes the session unless a newer timer or a close superseded the
// firing one.
func (r *Registry) expire(session *Session, generation uint64) {
	session.mu.Lock()
	if session.closed || session.generation != generation {
		session.mu.Unlock()
		return
	}
	session.closed = true
	r.release(session)
	session.mu.Unlock()

	r.logger.Debug("navigation session expired",
		"session", session.id,
		"message", session.key.String(),
	)
	r.notify(session, EvictExpired)
}

// release stops the timer and drops the map entry; requires session.mu.
func (r *Registry) release(session *Session) {
	if session.timer != nil {
		session.timer.Stop()
		session.timer = nil
	}
	session.generation++

	r.mu.Lock()
	if current, ok := r.sessions[session.key]; ok && current == session {
		delete(r.sessions, session.key)
	}
	r.mu.Unlock()
}

func (r *Registry) notify(session *Session, reason EvictReason) {
	for _, hook := range r.hooks {
		hook(session, reason)
	}
}
