// Package navigator turns reactions on bot messages into page navigation.
// It owns the session registry and registers itself as paimon.Navigator so
// command modules can open paginated replies.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	moduleName = "navigator"
	tracerName = "ex-paimon/modules/navigator"

	// finalEditTimeout bounds the hint-less edit sent after close or expiry.
	finalEditTimeout = 5 * time.Second
)

// Config tunes session lifetime and control handling.
type Config struct {
	// Timeout is the inactivity window after which a session expires.
	Timeout time.Duration
	// Debounce drops repeated identical controls inside the window.
	Debounce time.Duration
	// OwnerOnly restricts controls to the actor who opened the session.
	OwnerOnly bool
	// TriggerOnRemove also treats removed reactions as controls, which lets
	// users toggle a reaction to press it again.
	TriggerOnRemove bool
	// ProbeLimit caps page discovery for bookmarks of unknown length.
	ProbeLimit int
	Controls   navigation.Controls
	// Usable reports whether users can react with a symbol. Navigate
	// rejects bookmarks whose symbol fails it. Nil accepts every symbol.
	Usable func(symbol string) bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		Debounce:        300 * time.Millisecond,
		OwnerOnly:       true,
		TriggerOnRemove: true,
		ProbeLimit:      500,
		Controls:        navigation.DefaultControls(),
	}
}

// Option mutates module dependencies.
type Option func(*Module)

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the clock driving expiry and debounce.
func WithClock(clock navigation.Clock) Option {
	return func(m *Module) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(m *Module) {
		if provider != nil {
			m.tracer = provider.Tracer(tracerName)
		}
	}
}

// tracked is what the module remembers about a live session message.
type tracked struct {
	target paimon.OutboundTarget
	hint   []string
}

// Module hosts the navigation dispatcher inside the kernel.
type Module struct {
	cfg    Config
	logger *slog.Logger
	clock  navigation.Clock
	tracer trace.Tracer

	sink       paimon.SinkDispatcher
	registry   *navigation.Registry
	dispatcher *navigation.Dispatcher

	mu       sync.Mutex
	messages map[navigation.MessageKey]tracked
}

// New creates a navigator module.
func New(cfg Config, options ...Option) *Module {
	module := &Module{
		cfg:      cfg,
		logger:   slog.Default(),
		clock:    navigation.SystemClock(),
		tracer:   otel.Tracer(tracerName),
		messages: make(map[navigation.MessageKey]tracked),
	}
	for _, option := range options {
		option(module)
	}
	module.logger = module.logger.With("module", moduleName)

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return moduleName
}

// Spec subscribes to reactions, the only input that drives sessions.
func (m *Module) Spec() paimon.ModuleSpec {
	kinds := []paimon.EventKind{paimon.EventKindReactionAdded}
	if m.cfg.TriggerOnRemove {
		kinds = append(kinds, paimon.EventKindReactionRemoved)
	}

	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "navigation-controls",
					Description: "applies reaction controls to paginated messages",
					Interest: paimon.InterestSet{
						Kinds:           kinds,
						RequireReaction: true,
					},
					RequiredServices: []string{paimon.ServiceSinkDispatcher},
				},
				Subscription: reactionSubscription(),
				Handler:      m.handleReaction,
			},
		},
	}
}

// reactionSubscription runs a single worker so controls reach each session
// in arrival order.
func reactionSubscription() paimon.SubscriptionSpec {
	spec := paimon.NewDefaultSubscriptionSpec("navigation-reactions")
	spec.Workers = 1

	return spec
}

// OnRegister builds the registry and dispatcher and publishes the module as
// paimon.ServiceNavigator.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	sink, err := paimon.ResolveAs[paimon.SinkDispatcher](runtime.Services(), paimon.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("navigator resolve outbound dispatcher: %w", err)
	}
	m.sink = sink

	m.registry = navigation.NewRegistry(
		navigation.WithTimeout(m.cfg.Timeout),
		navigation.WithClock(m.clock),
		navigation.WithRegistryLogger(m.logger),
		navigation.WithEvictHook(m.onEvict),
	)
	dispatcher, err := navigation.NewDispatcher(m.registry, navigation.EditorFunc(m.edit),
		navigation.WithControls(m.cfg.Controls),
		navigation.WithOwnerOnly(m.cfg.OwnerOnly),
		navigation.WithDebounce(m.cfg.Debounce),
		navigation.WithDispatcherClock(m.clock),
		navigation.WithDispatcherLogger(m.logger),
		navigation.WithSessionProbeLimit(m.cfg.ProbeLimit),
		navigation.WithDeferredRender(isRateLimited),
	)
	if err != nil {
		return fmt.Errorf("navigator new dispatcher: %w", err)
	}
	m.dispatcher = dispatcher

	if err := runtime.Services().Register(paimon.ServiceNavigator, paimon.Navigator(m)); err != nil {
		return fmt.Errorf("navigator register service: %w", err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown closes every live session without touching their messages.
func (m *Module) OnShutdown(_ context.Context) error {
	if m.registry != nil {
		m.registry.Shutdown()
	}

	return nil
}

// Navigate implements paimon.Navigator.
func (m *Module) Navigate(ctx context.Context, request paimon.NavigateRequest) (navigation.MessageKey, error) {
	if err := request.Validate(); err != nil {
		return navigation.MessageKey{}, err
	}
	if m.dispatcher == nil {
		return navigation.MessageKey{}, fmt.Errorf("navigate: module not registered")
	}
	if m.cfg.Usable != nil {
		for _, bookmark := range request.Bookmarks {
			if bookmark.Symbol != "" && !m.cfg.Usable(bookmark.Symbol) {
				return navigation.MessageKey{}, fmt.Errorf("navigate: %w: %s symbol %q is not a usable reaction",
					navigation.ErrInvalidBookmark, bookmark.Name, bookmark.Symbol)
			}
		}
	}

	target, err := paimon.OutboundTargetFromEvent(request.Source)
	if err != nil {
		return navigation.MessageKey{}, fmt.Errorf("navigate: %w", err)
	}
	replyTo := ""
	if request.Source.Message != nil {
		replyTo = request.Source.Message.ID
	}
	hint := m.dispatcher.Controls().Legend(request.Bookmarks)

	var posted navigation.MessageKey
	poster := navigation.PosterFunc(func(ctx context.Context, page navigation.Page) (navigation.MessageKey, error) {
		text, entities := renderPage(page, hint)
		message, err := m.sink.SendMessage(ctx, paimon.SendMessageRequest{
			Target:             target,
			Text:               text,
			Entities:           entities,
			ReplyToMessageID:   replyTo,
			DisableLinkPreview: page.Content.ImageURL == "",
		})
		if err != nil {
			return navigation.MessageKey{}, err
		}

		posted = navigation.MessageKey{
			Scope:        scopeOf(request.Source.Source),
			Conversation: target.Conversation.ID,
			Message:      message.ID,
		}
		m.remember(posted, tracked{target: target, hint: hint})
		return posted, nil
	})

	session, err := m.dispatcher.Open(ctx, poster, request.Source.Actor.ID, request.Bookmarks, request.Start)
	if err != nil {
		if posted != (navigation.MessageKey{}) {
			m.forget(posted)
		}
		return navigation.MessageKey{}, fmt.Errorf("navigate: %w", err)
	}

	m.logger.InfoContext(ctx, "navigation session opened",
		"session", session.ID(),
		"conversation", posted.Conversation,
		"message", posted.Message,
		"actor", session.Owner(),
		"pages", session.TotalPages(),
	)

	return posted, nil
}

// handleReaction never returns an error: navigation failures stay silent to
// the actor and only reach logs and traces.
func (m *Module) handleReaction(ctx context.Context, event *paimon.Event) error {
	if event == nil || event.Reaction == nil || m.dispatcher == nil {
		return nil
	}
	if event.Kind == paimon.EventKindReactionRemoved && !m.cfg.TriggerOnRemove {
		return nil
	}
	if event.Actor.IsBot {
		return nil
	}
	// Switching reactions removes the old one in the same breath. Pressing
	// it as well would undo the new control.
	if event.Reaction.Superseded {
		return nil
	}

	control := navigation.ControlEvent{
		Key: navigation.MessageKey{
			Scope:        scopeOf(event.Source),
			Conversation: event.Conversation.ID,
			Message:      event.Reaction.MessageID,
		},
		Actor:  event.Actor.ID,
		Symbol: event.Reaction.Emoji,
	}

	ctx, span := m.tracer.Start(ctx, "navigation.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("navigation.message", control.Key.String()),
			attribute.String("navigation.symbol", control.Symbol),
			attribute.String("navigation.reaction", string(event.Reaction.Action)),
		),
	)
	defer span.End()

	if action, ok := m.dispatcher.Controls().Resolve(control.Symbol, m.bookmarksOf(control.Key)); ok {
		span.SetAttributes(attribute.String("navigation.action", action.Action.String()))
	}
	outcome := m.dispatcher.Handle(ctx, control)
	span.SetAttributes(attribute.String("navigation.outcome", string(outcome)))
	if outcome == navigation.OutcomeRenderFailed {
		span.SetStatus(codes.Error, "render failed")
	}

	m.logger.DebugContext(ctx, "navigation control handled",
		"conversation", control.Key.Conversation,
		"message", control.Key.Message,
		"actor", control.Actor,
		"symbol", control.Symbol,
		"outcome", string(outcome),
	)

	return nil
}

func (m *Module) bookmarksOf(key navigation.MessageKey) []navigation.Bookmark {
	session, ok := m.registry.Lookup(key)
	if !ok {
		return nil
	}

	return session.Bookmarks()
}

// edit renders page onto the tracked message with the control hint.
func (m *Module) edit(ctx context.Context, key navigation.MessageKey, page navigation.Page) error {
	message, ok := m.lookup(key)
	if !ok {
		return fmt.Errorf("edit %s: untracked message", key)
	}

	return m.editMessage(ctx, key, message.target, page, message.hint)
}

func (m *Module) editMessage(
	ctx context.Context,
	key navigation.MessageKey,
	target paimon.OutboundTarget,
	page navigation.Page,
	hint []string,
) error {
	text, entities := renderPage(page, hint)

	return m.sink.EditMessage(ctx, paimon.EditMessageRequest{
		Target:             target,
		MessageID:          key.Message,
		Text:               text,
		Entities:           entities,
		DisableLinkPreview: page.Content.ImageURL == "",
	})
}

// onEvict drops the message record and, when the session ended normally,
// re-renders the last page without the control hint.
func (m *Module) onEvict(session *navigation.Session, reason navigation.EvictReason) {
	key := session.Key()
	message, ok := m.take(key)
	if !ok {
		return
	}
	if reason != navigation.EvictClosed && reason != navigation.EvictExpired {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalEditTimeout)
	defer cancel()

	if err := m.editMessage(ctx, key, message.target, session.Current(), nil); err != nil {
		m.logger.DebugContext(ctx, "navigation final edit failed",
			"session", session.ID(),
			"message", key.String(),
			"reason", string(reason),
			"error", err,
		)
	}
}

func (m *Module) remember(key navigation.MessageKey, message tracked) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[key] = message
}

func (m *Module) lookup(key navigation.MessageKey) (tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	message, ok := m.messages[key]
	return message, ok
}

func (m *Module) take(key navigation.MessageKey) (tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	message, ok := m.messages[key]
	delete(m.messages, key)
	return message, ok
}

func (m *Module) forget(key navigation.MessageKey) {
	m.take(key)
}

// Sessions returns the number of live sessions.
func (m *Module) Sessions() int {
	if m.registry == nil {
		return 0
	}

	return m.registry.Len()
}

// scopeOf names the driver a message belongs to.
func scopeOf(source paimon.EventSource) string {
	if source.ID != "" {
		return source.ID
	}

	return string(source.Platform)
}

func isRateLimited(err error) bool {
	_, limited := paimon.AsOutboundRateLimit(err)
	return limited || errors.Is(err, context.DeadlineExceeded)
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
	_ paimon.Navigator       = (*Module)(nil)
)
