// Package ask answers /ask questions with a configured LLM agent and pages
// through the answer.
package ask

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"ex-paimon/pkg/llm/config"
	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	commandName = "ask"

	// pageBudget is the rune budget of one answer page.
	pageBudget = 1000
	// titleRunes caps the question echoed as page title.
	titleRunes = 80
	// replyGrace is the handler time left for replying after generation.
	replyGrace = 10 * time.Second
)

// Option mutates module configuration.
type Option func(*Module)

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNow replaces the clock rendered into the system prompt.
func WithNow(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// Module asks one LLM agent and opens a navigation session on the answer.
type Module struct {
	agent  config.Agent
	logger *slog.Logger
	now    func() time.Time

	navigator paimon.Navigator
	sink      paimon.SinkDispatcher
	provider  paimon.LLMProvider
}

// New creates an ask module for agent.
func New(agent config.Agent, options ...Option) *Module {
	module := &Module{
		agent:  agent,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "ask"
}

// Spec declares the /ask command.
func (m *Module) Spec() paimon.ModuleSpec {
	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "ask-command-handler",
					Description: "answers /ask questions with the configured llm agent",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						paimon.ServiceNavigator,
						paimon.ServiceSinkDispatcher,
						paimon.ServiceLLMProviderRegistry,
					},
				},
				Subscription: m.subscription(),
				Handler:      m.handleCommand,
			},
		},
		Commands: []paimon.CommandSpec{
			{
				Name:        commandName,
				Description: "ask Paimon anything: /ask <question>",
			},
		},
	}
}

// subscription outlives the generation timeout so a slow answer is still
// delivered.
func (m *Module) subscription() paimon.SubscriptionSpec {
	spec := paimon.NewDefaultSubscriptionSpec("ask-commands")
	spec.Workers = 2
	if m.agent.RequestTimeout > 0 {
		spec.HandlerTimeout = m.agent.RequestTimeout + replyGrace
	}

	return spec
}

// OnRegister resolves the navigator, the outbound dispatcher and the agent
// provider.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	navigator, err := paimon.ResolveAs[paimon.Navigator](runtime.Services(), paimon.ServiceNavigator)
	if err != nil {
		return fmt.Errorf("ask resolve navigator: %w", err)
	}
	sink, err := paimon.ResolveAs[paimon.SinkDispatcher](runtime.Services(), paimon.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("ask resolve outbound dispatcher: %w", err)
	}
	registry, err := paimon.ResolveAs[paimon.LLMProviderRegistry](
		runtime.Services(),
		paimon.ServiceLLMProviderRegistry,
	)
	if err != nil {
		return fmt.Errorf("ask resolve llm provider registry: %w", err)
	}
	provider, err := registry.Resolve(m.agent.Provider)
	if err != nil {
		return fmt.Errorf("ask resolve provider %s: %w", m.agent.Provider, err)
	}

	m.navigator = navigator
	m.sink = sink
	m.provider = provider

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *paimon.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if !strings.EqualFold(event.Command.Name, commandName) {
		return nil
	}
	if m.navigator == nil || m.sink == nil || m.provider == nil {
		return fmt.Errorf("ask handle command: module not registered")
	}

	question := strings.TrimSpace(event.Command.Value)
	if question == "" {
		return m.reply(ctx, event, "Ask me something: "+paimon.CommandPrefix+commandName+" <question>")
	}

	request, err := m.buildGenerateRequest(event, question)
	if err != nil {
		return fmt.Errorf("ask build request: %w", err)
	}

	generateCtx := ctx
	if m.agent.RequestTimeout > 0 {
		var cancel context.CancelFunc
		generateCtx, cancel = context.WithTimeout(ctx, m.agent.RequestTimeout)
		defer cancel()
	}
	answer, err := m.provider.Generate(generateCtx, request)
	if err != nil {
		m.logger.WarnContext(ctx, "ask generation failed",
			"provider", m.agent.Provider,
			"model", m.agent.Model,
			"conversation", event.Conversation.ID,
			"error", err,
		)
		return m.reply(ctx, event, "Paimon couldn't come up with an answer right now. Try again later!")
	}

	pages := answerPages(answer)
	if len(pages) == 0 {
		return m.reply(ctx, event, "Paimon has nothing to say about that.")
	}

	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source: event,
		Bookmarks: []navigation.Bookmark{{
			Name:      "answer",
			Provider:  navigation.TextPages(questionTitle(question), pages),
			PageCount: len(pages),
		}},
		Start: navigation.StartPage(0),
	}); err != nil {
		return fmt.Errorf("ask navigate answer: %w", err)
	}

	return nil
}

func (m *Module) buildGenerateRequest(event *paimon.Event, question string) (paimon.LLMGenerateRequest, error) {
	system, err := m.agent.SystemPrompt(map[string]string{
		"ActorName":         actorName(event.Actor),
		"ActorID":           event.Actor.ID,
		"ConversationID":    event.Conversation.ID,
		"ConversationTitle": event.Conversation.Title,
		"DateUTC":           m.now().UTC().Format("2006-01-02"),
	})
	if err != nil {
		return paimon.LLMGenerateRequest{}, fmt.Errorf("render system prompt: %w", err)
	}

	request := paimon.LLMGenerateRequest{
		Model: m.agent.Model,
		Messages: []paimon.LLMMessage{
			{Role: paimon.LLMMessageRoleSystem, Content: system},
			{Role: paimon.LLMMessageRoleUser, Content: question},
		},
		MaxOutputTokens: m.agent.MaxOutputTokens,
		Temperature:     m.agent.Temperature,
	}
	if err := request.Validate(); err != nil {
		return paimon.LLMGenerateRequest{}, err
	}

	return request, nil
}

func actorName(actor paimon.Actor) string {
	for _, name := range []string{actor.DisplayName, actor.Username, actor.ID} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}

	return "Traveler"
}

// answerPages packs answer paragraphs into pages; paragraphs are never
// split across pages.
func answerPages(answer string) []string {
	var paragraphs []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(answer, "\r\n", "\n"), "\n\n") {
		if trimmed := strings.TrimSpace(paragraph); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return navigation.PartitionWith(paragraphs, pageBudget, "\n\n")
}

func questionTitle(question string) string {
	question = strings.Join(strings.Fields(question), " ")
	if utf8.RuneCountInString(question) <= titleRunes {
		return question
	}

	return string([]rune(question)[:titleRunes-1]) + "…"
}

func (m *Module) reply(ctx context.Context, event *paimon.Event, text string) error {
	target, err := paimon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("ask derive outbound target: %w", err)
	}
	if _, err := m.sink.SendMessage(ctx, paimon.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.Message.ID,
	}); err != nil {
		return fmt.Errorf("ask send reply: %w", err)
	}

	return nil
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
)
