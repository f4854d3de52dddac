package navigator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/navigation/navigationtest"
	"ex-paimon/pkg/paimon"
	"ex-paimon/pkg/paimon/paimontest"
)

type fixture struct {
	module *Module
	sink   *paimontest.Sink
	clock  *navigationtest.Clock
	key    navigation.MessageKey
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Debounce = 0
	if mutate != nil {
		mutate(&cfg)
	}

	clock := navigationtest.NewClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	sink := &paimontest.Sink{}
	module := New(cfg,
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	services := paimontest.NewServices(map[string]any{paimon.ServiceSinkDispatcher: sink})
	if err := module.OnRegister(context.Background(), paimontest.Runtime{Registry: services}); err != nil {
		t.Fatalf("OnRegister failed: %v", err)
	}

	navigator, err := paimon.ResolveAs[paimon.Navigator](services, paimon.ServiceNavigator)
	if err != nil {
		t.Fatalf("resolve navigator: %v", err)
	}
	key, err := navigator.Navigate(context.Background(), paimon.NavigateRequest{
		Source: paimontest.CommandEvent("events", ""),
		Bookmarks: []navigation.Bookmark{{
			Name: "pages",
			Provider: navigation.StaticPages(
				navigation.Content{Title: "First", Body: "one"},
				navigation.Content{Title: "Second", Body: "two"},
				navigation.Content{Title: "Third", Body: "three"},
			),
			PageCount: 3,
		}},
		Start: navigation.StartPage(0),
	})
	if err != nil {
		t.Fatalf("navigate failed: %v", err)
	}

	return &fixture{module: module, sink: sink, clock: clock, key: key}
}

func (f *fixture) react(t *testing.T, kind paimon.EventKind, actor string, emoji string) {
	t.Helper()
	f.deliver(t, kind, actor, emoji, false)
}

// swap replaces actor's reaction from with to, the way Telegram reports it.
func (f *fixture) swap(t *testing.T, actor string, from string, to string) {
	t.Helper()
	f.deliver(t, paimon.EventKindReactionAdded, actor, to, false)
	f.deliver(t, paimon.EventKindReactionRemoved, actor, from, true)
}

func (f *fixture) deliver(t *testing.T, kind paimon.EventKind, actor string, emoji string, superseded bool) {
	t.Helper()

	action := paimon.ReactionActionAdd
	if kind == paimon.EventKindReactionRemoved {
		action = paimon.ReactionActionRemove
	}
	event := &paimon.Event{
		ID:           "reaction",
		Kind:         kind,
		OccurredAt:   f.clock.Now(),
		Source:       paimon.EventSource{Platform: paimon.PlatformTelegram, ID: "tg-main"},
		Conversation: paimon.Conversation{ID: f.key.Conversation, Type: paimon.ConversationTypeGroup},
		Actor:        paimon.Actor{ID: actor},
		Reaction: &paimon.Reaction{
			MessageID:  f.key.Message,
			Emoji:      emoji,
			Action:     action,
			Superseded: superseded,
		},
	}
	if err := f.module.handleReaction(context.Background(), event); err != nil {
		t.Fatalf("handleReaction returned error: %v", err)
	}
}

func (f *fixture) lastEdit(t *testing.T) paimon.EditMessageRequest {
	t.Helper()

	edits := f.sink.Edits()
	if len(edits) == 0 {
		t.Fatal("expected an edit")
	}
	return edits[len(edits)-1]
}

func TestNavigatePostsFirstPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	want := navigation.MessageKey{Scope: "tg-main", Conversation: "chat-1", Message: "1"}
	if f.key != want {
		t.Fatalf("key = %+v, want %+v", f.key, want)
	}
	sends := f.sink.Sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	sent := sends[0]
	if sent.ReplyToMessageID != "100" {
		t.Fatalf("reply_to = %q, want 100", sent.ReplyToMessageID)
	}
	if sent.Target.Sink == nil || sent.Target.Sink.ID != "tg-main" {
		t.Fatalf("target sink = %+v, want tg-main", sent.Target.Sink)
	}
	for _, fragment := range []string{"First", "one", "page 1 / 3", "🙈 first · 👎 prev · 👍 next · 🏆 last · 😴 close"} {
		if !strings.Contains(sent.Text, fragment) {
			t.Fatalf("text %q missing %q", sent.Text, fragment)
		}
	}
	if f.module.Sessions() != 1 {
		t.Fatalf("sessions = %d, want 1", f.module.Sessions())
	}
}

func TestNavigateRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	tests := []struct {
		name    string
		request paimon.NavigateRequest
		wantErr error
	}{
		{
			name:    "no bookmarks",
			request: paimon.NavigateRequest{Source: paimontest.CommandEvent("news", "")},
			wantErr: navigation.ErrNoBookmarks,
		},
		{
			name: "empty start page",
			request: paimon.NavigateRequest{
				Source: paimontest.CommandEvent("news", ""),
				Bookmarks: []navigation.Bookmark{{
					Name:     "empty",
					Provider: func(int) (*navigation.Content, error) { return nil, nil },
				}},
			},
			wantErr: navigation.ErrNoContent,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.module.Navigate(context.Background(), testCase.request)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("error = %v, want %v", err, testCase.wantErr)
			}
		})
	}
}

func TestReactionsMoveTheSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	f.react(t, paimon.EventKindReactionAdded, "user-1", "👍\ufe0f")
	edit := f.lastEdit(t)
	if edit.MessageID != f.key.Message || !strings.Contains(edit.Text, "page 2 / 3") {
		t.Fatalf("edit = %+v, want page 2 on message %s", edit, f.key.Message)
	}

	f.react(t, paimon.EventKindReactionAdded, "user-2", "👍")
	if got := len(f.sink.Edits()); got != 1 {
		t.Fatalf("edits after foreign actor = %d, want 1", got)
	}

	f.react(t, paimon.EventKindReactionRemoved, "user-1", "👍")
	if !strings.Contains(f.lastEdit(t).Text, "page 3 / 3") {
		t.Fatalf("removed reaction did not advance: %q", f.lastEdit(t).Text)
	}

	f.react(t, paimon.EventKindReactionAdded, "user-1", "🤡")
	f.react(t, paimon.EventKindReactionAdded, "user-1", "👍")
	if got := len(f.sink.Edits()); got != 2 {
		t.Fatalf("edits after unknown symbol and last-page next = %d, want 2", got)
	}
}

func TestSwappedReactionPressesOnlyTheNewControl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	f.react(t, paimon.EventKindReactionAdded, "user-1", "👍")
	if !strings.Contains(f.lastEdit(t).Text, "page 2 / 3") {
		t.Fatalf("next did not advance: %q", f.lastEdit(t).Text)
	}

	f.swap(t, "user-1", "👍", "👎")
	if got := len(f.sink.Edits()); got != 2 {
		t.Fatalf("edits = %d, want 2", got)
	}
	if !strings.Contains(f.lastEdit(t).Text, "page 1 / 3") {
		t.Fatalf("swap to prev = %q, want page 1 / 3", f.lastEdit(t).Text)
	}

	// A plain removal still toggles the control.
	f.react(t, paimon.EventKindReactionRemoved, "user-1", "👍")
	if !strings.Contains(f.lastEdit(t).Text, "page 2 / 3") {
		t.Fatalf("removal = %q, want page 2 / 3", f.lastEdit(t).Text)
	}
}

func TestReactionSubscriptionIsSerial(t *testing.T) {
	t.Parallel()

	spec := New(DefaultConfig()).Spec()
	if got := spec.Handlers[0].Subscription.Workers; got != 1 {
		t.Fatalf("workers = %d, want 1", got)
	}
	if spec.Handlers[0].Subscription.Name != "navigation-reactions" {
		t.Fatalf("subscription name = %q", spec.Handlers[0].Subscription.Name)
	}
}

func TestNavigateRejectsUnusableSymbols(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config) {
		cfg.Usable = func(symbol string) bool { return symbol != "🎨" }
	})

	request := func(symbol string) paimon.NavigateRequest {
		return paimon.NavigateRequest{
			Source: paimontest.CommandEvent("character", "Amber"),
			Bookmarks: []navigation.Bookmark{{
				Name:      "gallery",
				Symbol:    symbol,
				Provider:  navigation.StaticPages(navigation.Content{Title: "Art"}),
				PageCount: 1,
			}},
			Start: navigation.StartPage(0),
		}
	}

	if _, err := f.module.Navigate(context.Background(), request("🎨")); !errors.Is(err, navigation.ErrInvalidBookmark) {
		t.Fatalf("error = %v, want ErrInvalidBookmark", err)
	}
	if got := len(f.sink.Sends()); got != 1 {
		t.Fatalf("sends = %d, want only the fixture message", got)
	}
	if _, err := f.module.Navigate(context.Background(), request("😍")); err != nil {
		t.Fatalf("usable symbol rejected: %v", err)
	}
}

func TestReactionRemovalIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config) { cfg.TriggerOnRemove = false })

	f.react(t, paimon.EventKindReactionRemoved, "user-1", "👍")
	if got := len(f.sink.Edits()); got != 0 {
		t.Fatalf("edits = %d, want 0", got)
	}
	for _, kind := range f.module.Spec().Handlers[0].Capability.Interest.Kinds {
		if kind == paimon.EventKindReactionRemoved {
			t.Fatal("interest still includes reaction.removed")
		}
	}
}

func TestCloseRendersWithoutHint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	f.react(t, paimon.EventKindReactionAdded, "user-1", "😴")
	edit := f.lastEdit(t)
	if strings.Contains(edit.Text, "🙈") {
		t.Fatalf("final edit still shows controls: %q", edit.Text)
	}
	if !strings.Contains(edit.Text, "page 1 / 3") {
		t.Fatalf("final edit lost the page: %q", edit.Text)
	}
	if f.module.Sessions() != 0 {
		t.Fatalf("sessions = %d, want 0", f.module.Sessions())
	}

	f.react(t, paimon.EventKindReactionAdded, "user-1", "👍")
	if got := len(f.sink.Edits()); got != 1 {
		t.Fatalf("edits after close = %d, want 1", got)
	}
}

func TestExpiryRendersWithoutHint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	f.clock.Advance(59 * time.Second)
	f.react(t, paimon.EventKindReactionAdded, "user-1", "🏆")
	f.clock.Advance(59 * time.Second)
	if f.module.Sessions() != 1 {
		t.Fatal("accepted control did not postpone expiry")
	}

	f.clock.Advance(time.Second)
	if f.module.Sessions() != 0 {
		t.Fatalf("sessions = %d, want 0 after expiry", f.module.Sessions())
	}
	edit := f.lastEdit(t)
	if strings.Contains(edit.Text, "🙈") || !strings.Contains(edit.Text, "page 3 / 3") {
		t.Fatalf("final edit = %q, want last page without controls", edit.Text)
	}
}

func TestRenderFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		wantSessions int
	}{
		{
			name:         "rate limit keeps the session",
			err:          &paimon.OutboundError{Kind: paimon.OutboundErrorKindRateLimited, RetryAfter: time.Second},
			wantSessions: 1,
		},
		{
			name:         "permanent failure evicts",
			err:          &paimon.OutboundError{Kind: paimon.OutboundErrorKindNotFound},
			wantSessions: 0,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			f.sink.FailEdits(testCase.err)
			f.react(t, paimon.EventKindReactionAdded, "user-1", "👍")

			if got := f.module.Sessions(); got != testCase.wantSessions {
				t.Fatalf("sessions = %d, want %d", got, testCase.wantSessions)
			}
		})
	}
}

func TestShutdownLeavesMessagesUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.module.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown failed: %v", err)
	}
	if f.module.Sessions() != 0 {
		t.Fatalf("sessions = %d, want 0", f.module.Sessions())
	}
	if got := len(f.sink.Edits()); got != 0 {
		t.Fatalf("edits = %d, want 0", got)
	}
	if f.clock.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", f.clock.Pending())
	}
}

func TestOnRegisterRequiresSink(t *testing.T) {
	t.Parallel()

	module := New(DefaultConfig())
	err := module.OnRegister(context.Background(), paimontest.Runtime{Registry: paimontest.NewServices(nil)})
	if !errors.Is(err, paimon.ErrServiceNotFound) {
		t.Fatalf("error = %v, want ErrServiceNotFound", err)
	}
}

func TestRenderPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		page         navigation.Page
		hint         []string
		wantText     string
		wantEntities []paimon.TextEntity
	}{
		{
			name: "title body and hint",
			page: navigation.Page{
				Content: navigation.Content{Title: "Amber", Body: "Outrider"},
				Total:   2,
			},
			hint:     []string{"👎 prev", "👍 next"},
			wantText: "Amber\n\nOutrider\n\npage 1 / 2\n👎 prev · 👍 next",
			wantEntities: []paimon.TextEntity{
				{Type: paimon.TextEntityTypeBold, Offset: 0, Length: 5},
				{Type: paimon.TextEntityTypeItalic, Offset: 17, Length: 10},
			},
		},
		{
			name: "fields and image",
			page: navigation.Page{
				Content: navigation.Content{
					Fields: []navigation.Field{
						{Name: "HP", Value: "793", Inline: true},
						{Name: "ATK", Value: "19", Inline: true},
						{Name: "Bio", Value: "Pyro"},
					},
					ImageURL: "https://example.net/a.png",
				},
				Absolute: 1,
				Total:    2,
			},
			wantText: "HP: 793\nATK: 19\n\nBio\nPyro\n\n🖼 Image\n\npage 2 / 2",
			wantEntities: []paimon.TextEntity{
				{Type: paimon.TextEntityTypeBold, Offset: 0, Length: 2},
				{Type: paimon.TextEntityTypeBold, Offset: 8, Length: 3},
				{Type: paimon.TextEntityTypeBold, Offset: 17, Length: 3},
				{Type: paimon.TextEntityTypeTextURL, Offset: 27, Length: 7, URL: "https://example.net/a.png"},
				{Type: paimon.TextEntityTypeItalic, Offset: 36, Length: 10},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			text, entities := renderPage(testCase.page, testCase.hint)
			if text != testCase.wantText {
				t.Fatalf("text = %q, want %q", text, testCase.wantText)
			}
			if len(entities) != len(testCase.wantEntities) {
				t.Fatalf("entities = %+v, want %+v", entities, testCase.wantEntities)
			}
			for index := range entities {
				if entities[index] != testCase.wantEntities[index] {
					t.Fatalf("entity[%d] = %+v, want %+v", index, entities[index], testCase.wantEntities[index])
				}
			}
			if err := paimon.ValidateTextEntities(text, entities); err != nil {
				t.Fatalf("entities invalid: %v", err)
			}
		})
	}
}
