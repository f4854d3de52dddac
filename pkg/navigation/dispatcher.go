package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultDebounce     = 300 * time.Millisecond
	debouncePruneLength = 1024
)

// Poster publishes the first page of a session and returns the message key
// subsequent edits target.
type Poster interface {
	Post(ctx context.Context, page Page) (MessageKey, error)
}

// Editor replaces the content of a tracked message.
type Editor interface {
	Edit(ctx context.Context, key MessageKey, page Page) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, page Page) (MessageKey, error)

// Post calls f.
func (f PosterFunc) Post(ctx context.Context, page Page) (MessageKey, error) {
	return f(ctx, page)
}

// EditorFunc adapts a function to Editor.
type EditorFunc func(ctx context.Context, key MessageKey, page Page) error

// Edit calls f.
func (f EditorFunc) Edit(ctx context.Context, key MessageKey, page Page) error {
	return f(ctx, key, page)
}

// ControlEvent is one control symbol applied to a tracked message.
type ControlEvent struct {
	Key    MessageKey
	Actor  string
	Symbol string
}

// Outcome classifies how the dispatcher handled a control event.
type Outcome string

const (
	// OutcomeUntracked means no live session is bound to the message.
	OutcomeUntracked Outcome = "untracked"
	// OutcomeUnrecognized means the symbol maps to no control.
	OutcomeUnrecognized Outcome = "unrecognized"
	// OutcomeForbidden means the actor does not own the session.
	OutcomeForbidden Outcome = "forbidden"
	// OutcomeDebounced means an identical event arrived inside the window.
	OutcomeDebounced Outcome = "debounced"
	// OutcomeOutOfRange means the provider had no page for the move.
	OutcomeOutOfRange Outcome = "out_of_range"
	// OutcomeUnchanged means the move was accepted onto the current page.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeRendered means the message was edited.
	OutcomeRendered Outcome = "rendered"
	// OutcomeDeferred means the edit failed transiently; the session lives.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeRenderFailed means the edit failed and the session was evicted.
	OutcomeRenderFailed Outcome = "render_failed"
	// OutcomeClosed means the session was closed.
	OutcomeClosed Outcome = "closed"
)

// DispatcherOption configures NewDispatcher.
type DispatcherOption func(*Dispatcher)

// WithControls sets the control symbol set.
func WithControls(controls Controls) DispatcherOption {
	return func(d *Dispatcher) {
		d.controls = controls
	}
}

// WithOwnerOnly restricts navigation to the actor that opened a session.
func WithOwnerOnly(ownerOnly bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.ownerOnly = ownerOnly
	}
}

// WithDebounce sets the window inside which identical events from one actor
// collapse into one. Zero disables debouncing.
func WithDebounce(window time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if window >= 0 {
			d.debounce = window
		}
	}
}

// WithDispatcherClock sets the clock used for debouncing and new sessions.
func WithDispatcherClock(clock Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSessionProbeLimit bounds page probing for sessions opened through
// the dispatcher.
func WithSessionProbeLimit(limit int) DispatcherOption {
	return func(d *Dispatcher) {
		if limit > 0 {
			d.probeLimit = limit
		}
	}
}

// WithDeferredRender marks edit errors for which the session survives, such
// as rate limits. The committed page is shown by the next accepted move.
func WithDeferredRender(deferred func(error) bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.deferred = deferred
	}
}

// Dispatcher applies control events to registered sessions.
type Dispatcher struct {
	registry   *Registry
	editor     Editor
	controls   Controls
	ownerOnly  bool
	debounce   time.Duration
	clock      Clock
	logger     *slog.Logger
	probeLimit int
	deferred   func(error) bool

	recentMu sync.Mutex
	recent   map[debounceKey]time.Time
}

type debounceKey struct {
	message MessageKey
	actor   string
	symbol  string
}

// NewDispatcher creates a dispatcher editing messages through editor.
func NewDispatcher(registry *Registry, editor Editor, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("new dispatcher: nil registry")
	}
	if editor == nil {
		return nil, fmt.Errorf("new dispatcher: nil editor")
	}

	dispatcher := &Dispatcher{
		registry:   registry,
		editor:     editor,
		controls:   DefaultControls(),
		ownerOnly:  true,
		debounce:   defaultDebounce,
		clock:      SystemClock(),
		logger:     slog.Default(),
		probeLimit: defaultProbeLimit,
		recent:     make(map[debounceKey]time.Time),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	if err := dispatcher.controls.Validate(); err != nil {
		return nil, fmt.Errorf("new dispatcher: %w", err)
	}

	return dispatcher, nil
}

// Controls returns the configured control set.
func (d *Dispatcher) Controls() Controls {
	return d.controls
}

// Registry returns the registry the dispatcher drives.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Open builds a session, posts its first page and starts tracking it.
func (d *Dispatcher) Open(
	ctx context.Context,
	poster Poster,
	owner string,
	bookmarks []Bookmark,
	start Start,
) (*Session, error) {
	if poster == nil {
		return nil, fmt.Errorf("open session: nil poster")
	}
	for _, bookmark := range bookmarks {
		if bookmark.Symbol == "" {
			continue
		}
		if _, taken := d.controls.Resolve(bookmark.Symbol, nil); taken {
			return nil, fmt.Errorf("open session: %w: bookmark %q symbol %q shadows a control",
				ErrInvalidControls, bookmark.Name, bookmark.Symbol)
		}
	}

	session, err := NewSession(bookmarks, start,
		WithOwner(owner),
		WithProbeLimit(d.probeLimit),
		WithSessionLogger(d.logger),
		WithSessionClock(d.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	key, err := poster.Post(ctx, session.Current())
	if err != nil {
		return nil, fmt.Errorf("open session post: %w", err)
	}
	if err := d.registry.Track(key, session); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	d.logger.DebugContext(ctx, "navigation session opened",
		"session", session.ID(),
		"message", key.String(),
		"bookmarks", len(bookmarks),
		"pages", session.TotalPages(),
	)

	return session, nil
}

// Handle applies one control event. It never reports failures to the
// actor; the outcome exists for logs, traces and tests.
func (d *Dispatcher) Handle(ctx context.Context, control ControlEvent) Outcome {
	session, ok := d.registry.Lookup(control.Key)
	if !ok {
		return OutcomeUntracked
	}

	event, ok := d.controls.Resolve(control.Symbol, session.bookmarks)
	if !ok {
		return OutcomeUnrecognized
	}
	if d.ownerOnly && session.owner != "" && control.Actor != session.owner {
		return OutcomeForbidden
	}
	if d.debounced(control) {
		return OutcomeDebounced
	}
	event.Actor = control.Actor

	transition, err := d.registry.Apply(control.Key, event, func(page Page) error {
		editErr := d.editor.Edit(ctx, control.Key, page)
		if editErr != nil && d.deferred != nil && d.deferred(editErr) {
			return fmt.Errorf("%w: %w", ErrRenderDeferred, editErr)
		}
		return editErr
	})

	switch {
	case errors.Is(err, ErrUnknownSession):
		return OutcomeUntracked
	case errors.Is(err, ErrRenderDeferred):
		d.logger.WarnContext(ctx, "navigation render deferred",
			"session", session.ID(),
			"message", control.Key.String(),
			"action", event.Action.String(),
			"error", err,
		)
		return OutcomeDeferred
	case err != nil:
		d.logger.WarnContext(ctx, "navigation render failed, session evicted",
			"session", session.ID(),
			"message", control.Key.String(),
			"action", event.Action.String(),
			"error", err,
		)
		return OutcomeRenderFailed
	case transition.Closed:
		return OutcomeClosed
	case !transition.Accepted:
		return OutcomeOutOfRange
	case !transition.Changed:
		return OutcomeUnchanged
	default:
		return OutcomeRendered
	}
}

func (d *Dispatcher) debounced(control ControlEvent) bool {
	if d.debounce <= 0 {
		return false
	}

	now := d.clock.Now()
	key := debounceKey{message: control.Key, actor: control.Actor, symbol: normalizeSymbol(control.Symbol)}

	d.recentMu.Lock()
	defer d.recentMu.Unlock()

	if last, seen := d.recent[key]; seen && now.Sub(last) < d.debounce {
		return true
	}
	d.recent[key] = now

	if len(d.recent) > debouncePruneLength {
		for candidate, last := range d.recent {
			if now.Sub(last) >= d.debounce {
				delete(d.recent, candidate)
			}
		}
	}

	return false
}
