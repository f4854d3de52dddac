// Package events answers /events with the current event calendar.
package events

import (
	"context"
	"fmt"
	"strings"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const commandName = "events"

// Bookmark names of an events session.
const (
	bookmarkOngoing  = "Ongoing"
	bookmarkSummary  = "Summary"
	bookmarkUpcoming = "Upcoming"
)

// Option mutates module configuration.
type Option func(*Module)

// WithClock replaces the clock deciding which events are running.
func WithClock(clock navigation.Clock) Option {
	return func(m *Module) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// Module serves the event calendar.
type Module struct {
	store *gamedata.Store
	clock navigation.Clock

	navigator paimon.Navigator
}

// New creates an events module reading from store.
func New(store *gamedata.Store, options ...Option) *Module {
	module := &Module{store: store, clock: navigation.SystemClock()}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "events"
}

// Spec declares the /events command.
func (m *Module) Spec() paimon.ModuleSpec {
	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "events-command-handler",
					Description: "pages through ongoing and upcoming events for /events",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{paimon.ServiceNavigator},
				},
				Subscription: paimon.NewDefaultSubscriptionSpec("events-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []paimon.CommandSpec{
			{
				Name:        commandName,
				Description: "list ongoing and upcoming events",
			},
		},
	}
}

// OnRegister resolves the navigator.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	if m.store == nil {
		return fmt.Errorf("events register: nil game data store")
	}
	navigator, err := paimon.ResolveAs[paimon.Navigator](runtime.Services(), paimon.ServiceNavigator)
	if err != nil {
		return fmt.Errorf("events resolve navigator: %w", err)
	}
	m.navigator = navigator

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
	if event == nil || event.Command == nil {
		return nil
	}
	if !strings.EqualFold(event.Command.Name, commandName) {
		return nil
	}
	if m.navigator == nil {
		return fmt.Errorf("events handle command: navigator not configured")
	}

	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source:    event,
		Bookmarks: m.bookmarks(),
		Start:     navigation.StartBookmark(bookmarkSummary),
	}); err != nil {
		return fmt.Errorf("events navigate: %w", err)
	}

	return nil
}

// bookmarks snapshots the calendar at the current time. Empty lists keep
// their bookmark out of the session.
func (m *Module) bookmarks() []navigation.Bookmark {
	plan := buildSchedule(m.store.Events(), m.clock.Now())

	bookmarks := make([]navigation.Bookmark, 0, 3)
	if len(plan.ongoing) > 0 {
		bookmarks = append(bookmarks, navigation.Bookmark{
			Name:      bookmarkOngoing,
			Symbol:    "🔥",
			Provider:  ongoingProvider(plan.ongoing),
			PageCount: len(plan.ongoing),
		})
	}
	summary := summaryPages(plan)
	bookmarks = append(bookmarks, navigation.Bookmark{
		Name:      bookmarkSummary,
		Symbol:    "✍",
		Provider:  navigation.StaticPages(summary...),
		PageCount: len(summary),
	})
	if len(plan.upcoming) > 0 {
		bookmarks = append(bookmarks, navigation.Bookmark{
			Name:      bookmarkUpcoming,
			Symbol:    "👀",
			Provider:  upcomingProvider(plan.upcoming),
			PageCount: len(plan.upcoming),
		})
	}

	return bookmarks
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
)
