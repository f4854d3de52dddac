// Package characters answers /character with paged character sheets.
package characters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	commandName = "character"

	// defaultListBudget is the rune budget of one roster page.
	defaultListBudget = 1000
)

// Option mutates module configuration.
type Option func(*Module)

// WithListBudget sets the rune budget of roster pages.
func WithListBudget(budget int) Option {
	return func(m *Module) {
		if budget > 0 {
			m.listBudget = budget
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Module serves the character roster and character sheets.
type Module struct {
	store      *gamedata.Store
	listBudget int
	logger     *slog.Logger

	navigator paimon.Navigator
	sink      paimon.SinkDispatcher
}

// New creates a characters module reading from store.
func New(store *gamedata.Store, options ...Option) *Module {
	module := &Module{
		store:      store,
		listBudget: defaultListBudget,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "characters"
}

// Spec declares the /character command.
func (m *Module) Spec() paimon.ModuleSpec {
	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "character-command-handler",
					Description: "pages through character sheets for /character",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						paimon.ServiceNavigator,
						paimon.ServiceSinkDispatcher,
					},
				},
				Subscription: paimon.NewDefaultSubscriptionSpec("character-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []paimon.CommandSpec{
			{
				Name:        commandName,
				Description: "list characters, or show one character sheet",
				Options: []paimon.CommandOptionSpec{
					{Name: "low", Alias: "l", Description: "show talent levels 1 to 6 and open on upgrade costs"},
					{Name: "info", Alias: "i", Description: "open on the profile"},
					{Name: "stats", Description: "open on ascension stats"},
					{Name: "books", Alias: "b", Description: "open on talent books"},
					{Name: "skills", Alias: "s", Description: "open on the skills"},
					{Name: "const", Alias: "c", Description: "open on the constellations"},
					{Name: "art", Alias: "a", Description: "open on the gallery"},
					{Name: "element", Alias: "e", HasValue: true, Description: "open on the skills of one element"},
				},
			},
		},
	}
}

// OnRegister resolves the navigator and the outbound dispatcher.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	if m.store == nil {
		return fmt.Errorf("characters register: nil game data store")
	}
	navigator, err := paimon.ResolveAs[paimon.Navigator](runtime.Services(), paimon.ServiceNavigator)
	if err != nil {
		return fmt.Errorf("characters resolve navigator: %w", err)
	}
	sink, err := paimon.ResolveAs[paimon.SinkDispatcher](runtime.Services(), paimon.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("characters resolve outbound dispatcher: %w", err)
	}

	m.navigator = navigator
	m.sink = sink

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
	if m.navigator == nil || m.sink == nil {
		return fmt.Errorf("characters handle command: module not registered")
	}

	query := strings.TrimSpace(event.Command.Value)
	if query == "" {
		return m.sendRoster(ctx, event)
	}

	character, ok := m.store.Character(query)
	if !ok {
		m.logger.DebugContext(ctx, "character lookup missed", "module", m.Name(), "query", query)
		return m.reply(ctx, event, fmt.Sprintf("No character matches %q.", query))
	}

	session := buildCharacterSession(m.store, character, event.Command.HasOption("low"))
	start, problem := selectStart(event.Command, character, session)
	if problem != "" {
		return m.reply(ctx, event, problem)
	}

	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source:    event,
		Bookmarks: session.bookmarks(),
		Start:     start,
	}); err != nil {
		return fmt.Errorf("characters navigate %s: %w", character.Name, err)
	}

	return nil
}

func (m *Module) sendRoster(ctx context.Context, event *paimon.Event) error {
	characters := m.store.Characters()
	if len(characters) == 0 {
		return m.reply(ctx, event, "No characters available.")
	}

	pages := listPages(m.store, characters, m.listBudget)
	title := fmt.Sprintf("Characters (%d)", len(characters))
	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source: event,
		Bookmarks: []navigation.Bookmark{{
			Name:      "roster",
			Provider:  navigation.TextPages(title, pages),
			PageCount: len(pages),
		}},
		Start: navigation.StartPage(0),
	}); err != nil {
		return fmt.Errorf("characters navigate roster: %w", err)
	}

	return nil
}

// selectStart maps the command flags to the first page. The first matching
// flag in declaration order wins.
func selectStart(
	command *paimon.CommandInvocation,
	character gamedata.Character,
	session characterSession,
) (navigation.Start, string) {
	if element, ok := command.OptionValue("element"); ok {
		matched, found := gamedata.FindFuzzy(character.Elements(), element)
		if !found {
			return navigation.Start{}, fmt.Sprintf("%s has no %s skills.", character.Name, element)
		}
		return navigation.StartSection(session.index, session.elements[strings.ToLower(matched)]), ""
	}

	switch {
	case command.HasOption("low"), command.HasOption("books"):
		return navigation.StartPage(pageTalentCosts), ""
	case command.HasOption("info"):
		return navigation.StartPage(pageProfile), ""
	case command.HasOption("stats"):
		return navigation.StartSection(session.index, sectionAscension), ""
	case command.HasOption("skills") && len(character.Skills) > 0:
		return navigation.StartPage(skillsBase), ""
	case command.HasOption("const") && session.constCount > 0:
		return navigation.StartPage(session.constPage), ""
	case command.HasOption("art") && len(character.Images) > 0:
		return navigation.StartSection(session.index, sectionGallery), ""
	default:
		return navigation.StartSection(session.index, sectionOverview), ""
	}
}

func (m *Module) reply(ctx context.Context, event *paimon.Event, text string) error {
	target, err := paimon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("characters derive outbound target: %w", err)
	}
	if _, err := m.sink.SendMessage(ctx, paimon.SendMessageRequest{
		Target:           target,
		Text:             text,
		ReplyToMessageID: event.Message.ID,
	}); err != nil {
		return fmt.Errorf("characters send reply: %w", err)
	}

	return nil
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
)
