package kernel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ex-paimon/pkg/paimon"
)

func TestRegisterModuleRequiresServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		registerService bool
		wantErr         bool
	}{
		{name: "missing service", wantErr: true},
		{name: "present service", registerService: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			k := New()
			if testCase.registerService {
				if err := k.RegisterService(paimon.ServiceNavigator, struct{}{}); err != nil {
					t.Fatalf("register service failed: %v", err)
				}
			}
			module := &stubModule{
				name: "events",
				spec: paimon.ModuleSpec{AdditionalCapabilities: []paimon.Capability{
					{Name: "navigate", RequiredServices: []string{paimon.ServiceNavigator}},
				}},
			}

			err := k.RegisterModule(context.Background(), module)
			if testCase.wantErr != (err != nil) {
				t.Fatalf("RegisterModule error = %v, wantErr %v", err, testCase.wantErr)
			}
			if err != nil && !errors.Is(err, paimon.ErrServiceNotFound) {
				t.Fatalf("error = %v, want ErrServiceNotFound", err)
			}
		})
	}
}

func TestRegisterModuleRejectsDuplicates(t *testing.T) {
	t.Parallel()

	k := New()
	if err := k.RegisterModule(context.Background(), &stubModule{name: "help"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := k.RegisterModule(context.Background(), &stubModule{name: "help"})
	if !errors.Is(err, paimon.ErrModuleAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrModuleAlreadyRegistered", err)
	}

	if err := k.RegisterDriver(&stubDriver{name: "tg"}); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}
	if err := k.RegisterDriver(&stubDriver{name: "tg"}); !errors.Is(err, paimon.ErrDriverAlreadyRegistered) {
		t.Fatalf("error = %v, want ErrDriverAlreadyRegistered", err)
	}
}

func TestRegisterModuleCommandConflictRollsBack(t *testing.T) {
	t.Parallel()

	k := New()
	first := &stubModule{name: "characters", spec: paimon.ModuleSpec{
		Commands: []paimon.CommandSpec{{Name: "character"}},
	}}
	if err := k.RegisterModule(context.Background(), first); err != nil {
		t.Fatalf("register first failed: %v", err)
	}

	second := &stubModule{name: "copycat", spec: paimon.ModuleSpec{
		Commands: []paimon.CommandSpec{{Name: "Character"}},
	}}
	err := k.RegisterModule(context.Background(), second)
	if err == nil || !strings.Contains(err.Error(), "already registered by module characters") {
		t.Fatalf("error = %v, want command conflict", err)
	}

	// The failed module must not linger and can be registered once fixed.
	second.spec.Commands = []paimon.CommandSpec{{Name: "copy"}}
	if err := k.RegisterModule(context.Background(), second); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
}

func TestRegisterModuleOnRegisterFailureRollsBack(t *testing.T) {
	t.Parallel()

	k := New()
	module := &stubModule{
		name: "broken",
		spec: paimon.ModuleSpec{Commands: []paimon.CommandSpec{{Name: "broken"}}},
		register: func(context.Context, paimon.ModuleRuntime) error {
			panic("bad wiring")
		},
	}
	err := k.RegisterModule(context.Background(), module)
	if err == nil || !strings.Contains(err.Error(), "panic recovered") {
		t.Fatalf("error = %v, want recovered panic", err)
	}
	if _, ok := k.lookupCommand("broken"); ok {
		t.Fatal("command of failed module is still registered")
	}
}

func TestModuleRuntimeSubscribeChecksCapabilities(t *testing.T) {
	t.Parallel()

	k := New()
	t.Cleanup(func() { _ = k.EventBus().Close(context.Background()) })

	var subscribeErr error
	module := &stubModule{
		name: "navigator",
		spec: paimon.ModuleSpec{AdditionalCapabilities: []paimon.Capability{{
			Name:     "reactions",
			Interest: paimon.InterestSet{Kinds: []paimon.EventKind{paimon.EventKindReactionAdded}, RequireReaction: true},
		}}},
		register: func(ctx context.Context, runtime paimon.ModuleRuntime) error {
			_, subscribeErr = runtime.Subscribe(ctx,
				paimon.InterestSet{Kinds: []paimon.EventKind{paimon.EventKindMessageCreated}},
				paimon.SubscriptionSpec{},
				func(context.Context, *paimon.Event) error { return nil },
			)
			_, err := runtime.Subscribe(ctx,
				paimon.InterestSet{Kinds: []paimon.EventKind{paimon.EventKindReactionAdded}, RequireReaction: true},
				paimon.SubscriptionSpec{Name: "reactions"},
				func(context.Context, *paimon.Event) error { return nil },
			)
			return err
		},
	}
	if err := k.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !errors.Is(subscribeErr, paimon.ErrInvalidSubscription) {
		t.Fatalf("uncovered subscribe error = %v, want ErrInvalidSubscription", subscribeErr)
	}
}

func TestKernelRunLifecycle(t *testing.T) {
	t.Parallel()

	k := New(WithShutdownTimeout(time.Second))
	module := &stubModule{name: "lifecycle"}
	if err := k.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}
	if err := k.RegisterDriver(&stubDriver{name: "tg"}); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	eventually(t, time.Second, func() bool {
		started, _ := module.counts()
		return started == 1
	})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if started, stopped := module.counts(); started != 1 || stopped != 1 {
		t.Fatalf("lifecycle = (%d, %d), want (1, 1)", started, stopped)
	}
}

func TestKernelRunReturnsDriverFailure(t *testing.T) {
	t.Parallel()

	k := New(WithShutdownTimeout(time.Second))
	driverErr := errors.New("auth rejected")
	if err := k.RegisterDriver(&stubDriver{name: "tg", err: driverErr}); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	err := k.Run(context.Background())
	if !errors.Is(err, driverErr) {
		t.Fatalf("Run error = %v, want %v", err, driverErr)
	}
}

func TestKernelDerivesCommandEvents(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	k := New(WithShutdownTimeout(time.Second))
	if err := k.RegisterService(paimon.ServiceSinkDispatcher, dispatcher); err != nil {
		t.Fatalf("register dispatcher failed: %v", err)
	}

	var (
		mu       sync.Mutex
		commands []*paimon.Event
	)
	module := &stubModule{
		name: "characters",
		spec: paimon.ModuleSpec{
			Handlers: []paimon.ModuleHandler{{
				Capability: paimon.Capability{
					Name: "character-command",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{"character"},
					},
				},
				Handler: func(_ context.Context, event *paimon.Event) error {
					mu.Lock()
					commands = append(commands, event)
					mu.Unlock()
					return nil
				},
			}},
			Commands: []paimon.CommandSpec{{
				Name:    "character",
				Options: []paimon.CommandOptionSpec{{Name: "element", Alias: "e", HasValue: true}},
			}},
		},
	}
	if err := k.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	foreign := newTestMessage("m3", "/character@OtherBot klee")
	foreign.Metadata = map[string]string{paimon.MetadataBotUsername: "PaimonBot"}
	driver := &stubDriver{
		name: "tg",
		events: []*paimon.Event{
			newTestMessage("m1", "/character traveler -e geo"),
			newTestMessage("m2", "/character --element"),
			foreign,
			newTestMessage("m4", "/unknown command"),
		},
		published: make(chan error, 4),
	}
	if err := k.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	for range driver.events {
		if err := <-driver.published; err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commands) == 1
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	mu.Lock()
	command := commands[0]
	mu.Unlock()
	if command.Command.Value != "traveler" {
		t.Fatalf("value = %q, want traveler", command.Command.Value)
	}
	if element, _ := command.Command.OptionValue("element"); element != "geo" {
		t.Fatalf("element = %q, want geo", element)
	}
	if command.Command.SourceEventID != "m1" || command.ID == "m1" {
		t.Fatalf("ids = (%s, source %s), want fresh id from m1", command.ID, command.Command.SourceEventID)
	}

	sent := dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("usage replies = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "usage: /character [--element, -e <value>]") {
		t.Fatalf("usage reply = %q", sent[0].Text)
	}
	if sent[0].ReplyToMessageID != "msg-1" {
		t.Fatalf("reply to = %q, want msg-1", sent[0].ReplyToMessageID)
	}
}

func TestCommandCatalogListsSorted(t *testing.T) {
	t.Parallel()

	k := New()
	for _, module := range []*stubModule{
		{name: "news", spec: paimon.ModuleSpec{Commands: []paimon.CommandSpec{{Name: "news"}}}},
		{name: "events", spec: paimon.ModuleSpec{Commands: []paimon.CommandSpec{{Name: "events"}}}},
		{name: "help", spec: paimon.ModuleSpec{Commands: []paimon.CommandSpec{{Name: "Help"}}}},
	} {
		if err := k.RegisterModule(context.Background(), module); err != nil {
			t.Fatalf("register %s failed: %v", module.name, err)
		}
	}

	catalog, err := paimon.ResolveAs[paimon.CommandCatalog](k.Services(), paimon.ServiceCommandCatalog)
	if err != nil {
		t.Fatalf("resolve catalog failed: %v", err)
	}
	commands, err := catalog.ListCommands(context.Background())
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}

	var names []string
	for _, command := range commands {
		names = append(names, command.Command.Name)
	}
	if strings.Join(names, ",") != "events,help,news" {
		t.Fatalf("names = %v, want events,help,news", names)
	}
}

func TestServiceRegistry(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	if err := registry.Register("svc", 1); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.Register("svc", 2); !errors.Is(err, paimon.ErrServiceAlreadyRegistered) {
		t.Fatalf("duplicate error = %v, want ErrServiceAlreadyRegistered", err)
	}
	if err := registry.Register("nil", nil); err == nil {
		t.Fatal("expected nil service error")
	}
	if _, err := registry.Resolve("missing"); !errors.Is(err, paimon.ErrServiceNotFound) {
		t.Fatalf("resolve error = %v, want ErrServiceNotFound", err)
	}
	value, err := registry.Resolve("svc")
	if err != nil || value != 1 {
		t.Fatalf("Resolve = (%v, %v), want 1", value, err)
	}
}
