package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"ex-paimon/pkg/paimon"
)

func newTestEvent(id string, kind paimon.EventKind) *paimon.Event {
	event := &paimon.Event{
		ID:           id,
		Kind:         kind,
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Source:       paimon.EventSource{Platform: paimon.PlatformTelegram, ID: "tg-main"},
		Conversation: paimon.Conversation{ID: "chat-1", Type: paimon.ConversationTypeGroup},
		Actor:        paimon.Actor{ID: "user-1"},
	}

	switch kind {
	case paimon.EventKindMessageCreated:
		event.Message = &paimon.Message{ID: "msg-1", Text: "hello"}
	case paimon.EventKindReactionAdded:
		event.Reaction = &paimon.Reaction{MessageID: "msg-1", Emoji: "👍", Action: paimon.ReactionActionAdd}
	case paimon.EventKindReactionRemoved:
		event.Reaction = &paimon.Reaction{MessageID: "msg-1", Emoji: "👍", Action: paimon.ReactionActionRemove}
	}

	return event
}

func newTestMessage(id string, text string) *paimon.Event {
	event := newTestEvent(id, paimon.EventKindMessageCreated)
	event.Message.Text = text
	return event
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}

type stubModule struct {
	name     string
	spec     paimon.ModuleSpec
	register func(ctx context.Context, runtime paimon.ModuleRuntime) error

	mu       sync.Mutex
	started  int
	shutdown int
}

func (m *stubModule) Name() string { return m.name }

func (m *stubModule) Spec() paimon.ModuleSpec { return m.spec }

func (m *stubModule) OnRegister(ctx context.Context, runtime paimon.ModuleRuntime) error {
	if m.register == nil {
		return nil
	}
	return m.register(ctx, runtime)
}

func (m *stubModule) OnStart(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return nil
}

func (m *stubModule) OnShutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown++
	return nil
}

func (m *stubModule) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.shutdown
}

// stubDriver publishes its events once started and then waits for cancel.
type stubDriver struct {
	name   string
	events []*paimon.Event
	err    error

	published chan error
}

func (d *stubDriver) Name() string { return d.name }

func (d *stubDriver) Start(ctx context.Context, publisher paimon.EventPublisher) error {
	for _, event := range d.events {
		err := publisher.Publish(ctx, event)
		if d.published != nil {
			d.published <- err
		}
	}
	if d.err != nil {
		return d.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *stubDriver) Shutdown(context.Context) error { return nil }

type recordingDispatcher struct {
	mu    sync.Mutex
	sends []paimon.SendMessageRequest
}

func (d *recordingDispatcher) SendMessage(_ context.Context, request paimon.SendMessageRequest) (*paimon.OutboundMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, request)
	return &paimon.OutboundMessage{ID: "reply", Target: request.Target}, nil
}

func (d *recordingDispatcher) EditMessage(context.Context, paimon.EditMessageRequest) error {
	return nil
}

func (d *recordingDispatcher) sent() []paimon.SendMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]paimon.SendMessageRequest(nil), d.sends...)
}
