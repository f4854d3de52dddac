package navigation

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultProbeLimit = 500

// Action enumerates navigation transitions.
type Action int

const (
	// ActionFirst moves to page zero of the active bookmark.
	ActionFirst Action = iota + 1
	// ActionPrev moves one page back.
	ActionPrev
	// ActionNext moves one page forward.
	ActionNext
	// ActionLast moves to the last page of the active bookmark.
	ActionLast
	// ActionJump activates another bookmark at its stored cursor.
	ActionJump
	// ActionClose ends the session.
	ActionClose
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionFirst:
		return "first"
	case ActionPrev:
		return "prev"
	case ActionNext:
		return "next"
	case ActionLast:
		return "last"
	case ActionJump:
		return "jump"
	case ActionClose:
		return "close"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Event is one navigation request.
type Event struct {
	Action Action
	// Bookmark names the jump target for ActionJump.
	Bookmark string
	// Actor identifies who triggered the event.
	Actor string
}

// Transition reports the effect of one event on a session.
type Transition struct {
	Action Action
	// Accepted is true when the provider served the candidate page and the
	// cursor was committed.
	Accepted bool
	// Changed is true when the accepted page differs from the previous one
	// and the message needs an edit.
	Changed bool
	// Closed is true when the event closed the session.
	Closed bool
	// Page is the session page after the event.
	Page Page
}

// MessageKey identifies the posted message a session is bound to.
type MessageKey struct {
	// Scope distinguishes transports or bot accounts.
	Scope        string
	Conversation string
	Message      string
}

// String renders the key for logs.
func (k MessageKey) String() string {
	return k.Scope + "/" + k.Conversation + "/" + k.Message
}

// Start selects the first page of a new session.
type Start struct {
	kind     startKind
	page     int
	bookmark string
	key      SectionKey
	index    SectionIndex
}

type startKind int

const (
	startAbsolute startKind = iota
	startBookmark
	startSection
)

// StartPage starts at an absolute page across all bookmarks.
func StartPage(page int) Start {
	return Start{kind: startAbsolute, page: page}
}

// StartBookmark starts at the first page of the named bookmark.
func StartBookmark(name string) Start {
	return Start{kind: startBookmark, bookmark: name}
}

// StartSection starts at the absolute offset index assigns to key.
func StartSection(index SectionIndex, key SectionKey) Start {
	return Start{kind: startSection, key: key, index: index}
}

// SessionOption configures NewSession.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	owner      string
	probeLimit int
	logger     *slog.Logger
	clock      Clock
}

// WithOwner records the actor allowed to drive the session.
func WithOwner(actor string) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.owner = actor
	}
}

// WithProbeLimit bounds how many pages are probed for bookmarks without a
// known page count.
func WithProbeLimit(limit int) SessionOption {
	return func(cfg *sessionConfig) {
		if limit > 0 {
			cfg.probeLimit = limit
		}
	}
}

// WithSessionLogger sets the logger used for provider failures.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSessionClock sets the clock stamping session creation.
func WithSessionClock(clock Clock) SessionOption {
	return func(cfg *sessionConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Session is the navigation state of one posted message.
//
// All state is guarded by mu. A Registry takes the same lock for transitions
// and expiry, so events for one session are applied one at a time.
type Session struct {
	id        string
	owner     string
	bookmarks []Bookmark
	bases     []int
	counts    []int
	total     int
	logger    *slog.Logger
	createdAt time.Time

	mu         sync.Mutex
	registry   *Registry
	key        MessageKey
	active     int
	cursors    []int
	current    Page
	closed     bool
	expiresAt  time.Time
	timer      Timer
	generation uint64
}

// NewSession builds an active session and resolves its first page.
func NewSession(bookmarks []Bookmark, start Start, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{
		probeLimit: defaultProbeLimit,
		logger:     slog.Default(),
		clock:      SystemClock(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(bookmarks) == 0 {
		return nil, ErrNoBookmarks
	}
	names := make(map[string]struct{}, len(bookmarks))
	for _, bookmark := range bookmarks {
		if err := bookmark.validate(); err != nil {
			return nil, err
		}
		if _, exists := names[bookmark.Name]; exists {
			return nil, fmt.Errorf("%w %q: duplicate name", ErrInvalidBookmark, bookmark.Name)
		}
		names[bookmark.Name] = struct{}{}
	}

	session := &Session{
		id:        uuid.NewString(),
		owner:     cfg.owner,
		bookmarks: slices.Clone(bookmarks),
		bases:     make([]int, len(bookmarks)),
		counts:    make([]int, len(bookmarks)),
		cursors:   make([]int, len(bookmarks)),
		logger:    cfg.logger,
		createdAt: cfg.clock.Now(),
	}
	for index, bookmark := range session.bookmarks {
		count := bookmark.PageCount
		if count == 0 {
			count = session.probe(index, cfg.probeLimit)
		}
		session.bases[index] = session.total
		session.counts[index] = count
		session.total += count
	}

	bookmark, page, err := session.resolve(start)
	if err != nil {
		return nil, err
	}
	content, err := session.fetch(bookmark, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoContent, err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: bookmark %q page %d", ErrNoContent, session.bookmarks[bookmark].Name, page)
	}

	session.active = bookmark
	session.cursors[bookmark] = page
	session.current = session.pageOf(bookmark, page, *content)

	return session, nil
}

// ID returns the random session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Owner returns the actor recorded with WithOwner.
func (s *Session) Owner() string {
	return s.owner
}

// CreatedAt returns when the session was built.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Bookmarks returns the session bookmarks.
func (s *Session) Bookmarks() []Bookmark {
	return slices.Clone(s.bookmarks)
}

// TotalPages returns the sum of every bookmark page count.
func (s *Session) TotalPages() int {
	return s.total
}

// Key returns the message the session is bound to, if tracked.
func (s *Session) Key() MessageKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.key
}

// Current returns the page last rendered by the session.
func (s *Session) Current() Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Cursor returns the stored cursor of the named bookmark.
func (s *Session) Cursor(bookmark string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.indexOf(bookmark)
	if !ok {
		return 0, false
	}
	return s.cursors[index], true
}

// Closed reports whether the session reached its terminal state.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// ExpiresAt returns the expiry deadline; zero until tracked by a Registry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expiresAt
}

// Apply runs one event through the state machine. Once a Registry tracks
// the session the event goes through that registry, so a close releases the
// message and accepted moves reschedule expiry.
func (s *Session) Apply(event Event) Transition {
	s.mu.Lock()
	registry := s.registry
	if registry == nil || s.closed {
		defer s.mu.Unlock()
		return s.apply(event)
	}
	s.mu.Unlock()

	transition, _ := registry.applyTo(s, event, nil)
	return transition
}

// apply requires s.mu.
func (s *Session) apply(event Event) Transition {
	if s.closed {
		return Transition{Action: event.Action, Page: s.current}
	}

	switch event.Action {
	case ActionClose:
		s.closed = true
		return Transition{Action: event.Action, Closed: true, Page: s.current}
	case ActionFirst:
		return s.move(event.Action, s.active, 0)
	case ActionPrev:
		return s.move(event.Action, s.active, s.cursors[s.active]-1)
	case ActionNext:
		return s.move(event.Action, s.active, s.cursors[s.active]+1)
	case ActionLast:
		return s.move(event.Action, s.active, s.counts[s.active]-1)
	case ActionJump:
		target, ok := s.indexOf(event.Bookmark)
		if !ok {
			return Transition{Action: event.Action, Page: s.current}
		}
		return s.move(event.Action, target, s.cursors[target])
	default:
		return Transition{Action: event.Action, Page: s.current}
	}
}

// move commits candidate only when the provider serves it.
func (s *Session) move(action Action, bookmark int, candidate int) Transition {
	rejected := Transition{Action: action, Page: s.current}
	if candidate < 0 {
		return rejected
	}

	content, err := s.fetch(bookmark, candidate)
	if err != nil {
		s.logger.Warn("navigation provider failed",
			"session", s.id,
			"bookmark", s.bookmarks[bookmark].Name,
			"page", candidate,
			"action", action.String(),
			"error", err,
		)
		return rejected
	}
	if content == nil {
		return rejected
	}

	changed := bookmark != s.active || candidate != s.cursors[bookmark]
	s.active = bookmark
	s.cursors[bookmark] = candidate
	s.current = s.pageOf(bookmark, candidate, *content)

	return Transition{Action: action, Accepted: true, Changed: changed, Page: s.current}
}

// fetch calls a provider, turning panics into errors.
func (s *Session) fetch(bookmark int, page int) (content *Content, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			content = nil
			err = fmt.Errorf("provider %q panic: %v", s.bookmarks[bookmark].Name, recovered)
		}
	}()

	return s.bookmarks[bookmark].Provider(page)
}

func (s *Session) probe(bookmark int, limit int) int {
	for page := 0; page < limit; page++ {
		content, err := s.fetch(bookmark, page)
		if err != nil || content == nil {
			return page
		}
	}

	return limit
}

func (s *Session) resolve(start Start) (int, int, error) {
	switch start.kind {
	case startBookmark:
		index, ok := s.indexOf(start.bookmark)
		if !ok {
			return 0, 0, fmt.Errorf("%w %q", ErrUnknownBookmark, start.bookmark)
		}
		return index, 0, nil
	case startSection:
		offset, ok := start.index.Offset(start.key)
		if !ok {
			return 0, 0, fmt.Errorf("%w %q", ErrUnknownSection, start.key)
		}
		return s.locate(offset)
	default:
		return s.locate(start.page)
	}
}

// locate maps an absolute page to (bookmark, relative page).
func (s *Session) locate(absolute int) (int, int, error) {
	for index := range s.bookmarks {
		if absolute >= s.bases[index] && absolute < s.bases[index]+s.counts[index] {
			return index, absolute - s.bases[index], nil
		}
	}

	return 0, 0, fmt.Errorf("%w: absolute page %d of %d", ErrNoContent, absolute, s.total)
}

func (s *Session) indexOf(name string) (int, bool) {
	for index, bookmark := range s.bookmarks {
		if bookmark.Name == name {
			return index, true
		}
	}

	return 0, false
}

func (s *Session) pageOf(bookmark int, relative int, content Content) Page {
	return Page{
		Content:  content,
		Bookmark: s.bookmarks[bookmark].Name,
		Relative: relative,
		Absolute: s.bases[bookmark] + relative,
		Total:    s.total,
	}
}
