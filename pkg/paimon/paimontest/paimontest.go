// Package paimontest provides in-memory fakes of the protocol services for
// module tests.
package paimontest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

// Services is a map-backed paimon.ServiceRegistry.
type Services struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewServices returns a registry preloaded with values.
func NewServices(values map[string]any) *Services {
	services := &Services{values: make(map[string]any, len(values))}
	for name, value := range values {
		services.values[name] = value
	}

	return services
}

// Register implements paimon.ServiceRegistry.
func (s *Services) Register(name string, service any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[name]; exists {
		return fmt.Errorf("register %s: %w", name, paimon.ErrServiceAlreadyRegistered)
	}
	s.values[name] = service
	return nil
}

// Resolve implements paimon.ServiceRegistry.
func (s *Services) Resolve(name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[name]
	if !exists {
		return nil, fmt.Errorf("resolve %s: %w", name, paimon.ErrServiceNotFound)
	}
	return value, nil
}

// Runtime is a paimon.ModuleRuntime backed by Services. Subscribe is not
// supported.
type Runtime struct {
	Registry *Services
}

// Services implements paimon.ModuleRuntime.
func (r Runtime) Services() paimon.ServiceRegistry {
	return r.Registry
}

// Subscribe implements paimon.ModuleRuntime.
func (Runtime) Subscribe(
	context.Context,
	paimon.InterestSet,
	paimon.SubscriptionSpec,
	paimon.EventHandler,
) (paimon.Subscription, error) {
	return nil, fmt.Errorf("paimontest runtime: subscribe not supported")
}

// Sink records outbound operations and assigns increasing message IDs.
type Sink struct {
	mu      sync.Mutex
	next    int
	sends   []paimon.SendMessageRequest
	edits   []paimon.EditMessageRequest
	sendErr error
	editErr error
}

// SendMessage implements paimon.SinkDispatcher.
func (s *Sink) SendMessage(_ context.Context, request paimon.SendMessageRequest) (*paimon.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	s.next++
	s.sends = append(s.sends, request)
	return &paimon.OutboundMessage{ID: strconv.Itoa(s.next), Target: request.Target}, nil
}

// EditMessage implements paimon.SinkDispatcher.
func (s *Sink) EditMessage(_ context.Context, request paimon.EditMessageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editErr != nil {
		return s.editErr
	}
	if err := request.Validate(); err != nil {
		return err
	}
	s.edits = append(s.edits, request)
	return nil
}

// FailSends makes every following send return err.
func (s *Sink) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sendErr = err
}

// FailEdits makes every following edit return err.
func (s *Sink) FailEdits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.editErr = err
}

// Sends returns the recorded sends.
func (s *Sink) Sends() []paimon.SendMessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]paimon.SendMessageRequest(nil), s.sends...)
}

// Edits returns the recorded edits.
func (s *Sink) Edits() []paimon.EditMessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]paimon.EditMessageRequest(nil), s.edits...)
}

// Navigator records navigate requests.
type Navigator struct {
	mu       sync.Mutex
	requests []paimon.NavigateRequest
	err      error
}

// Navigate implements paimon.Navigator.
func (n *Navigator) Navigate(_ context.Context, request paimon.NavigateRequest) (navigation.MessageKey, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return navigation.MessageKey{}, n.err
	}
	if err := request.Validate(); err != nil {
		return navigation.MessageKey{}, err
	}
	n.requests = append(n.requests, request)
	return navigation.MessageKey{
		Scope:        request.Source.Source.ID,
		Conversation: request.Source.Conversation.ID,
		Message:      strconv.Itoa(len(n.requests)),
	}, nil
}

// Fail makes every following navigate call return err.
func (n *Navigator) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.err = err
}

// Requests returns the recorded requests.
func (n *Navigator) Requests() []paimon.NavigateRequest {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]paimon.NavigateRequest(nil), n.requests...)
}

// Last returns the most recent request.
func (n *Navigator) Last() (paimon.NavigateRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.requests) == 0 {
		return paimon.NavigateRequest{}, false
	}
	return n.requests[len(n.requests)-1], true
}

// Pages renders every page of a request in absolute order by walking its
// bookmarks.
func Pages(request paimon.NavigateRequest) ([]navigation.Content, error) {
	var pages []navigation.Content
	for _, bookmark := range request.Bookmarks {
		for page := 0; bookmark.PageCount == 0 || page < bookmark.PageCount; page++ {
			content, err := bookmark.Provider(page)
			if err != nil {
				return nil, fmt.Errorf("bookmark %s page %d: %w", bookmark.Name, page, err)
			}
			if content == nil {
				if bookmark.PageCount != 0 {
					return nil, fmt.Errorf("bookmark %s page %d: missing content", bookmark.Name, page)
				}
				break
			}
			pages = append(pages, *content)
		}
	}

	return pages, nil
}

// CommandEvent builds a command.received event from tg-main in conversation
// "chat-1", sent by actor "user-1" as message "100".
func CommandEvent(name string, value string, options ...paimon.CommandOption) *paimon.Event {
	raw := paimon.CommandPrefix + name
	if value != "" {
		raw += " " + value
	}

	return &paimon.Event{
		ID:           "evt-" + name,
		Kind:         paimon.EventKindCommandReceived,
		OccurredAt:   time.Unix(1_700_000_000, 0).UTC(),
		Source:       paimon.EventSource{Platform: paimon.PlatformTelegram, ID: "tg-main"},
		Conversation: paimon.Conversation{ID: "chat-1", Type: paimon.ConversationTypeGroup},
		Actor:        paimon.Actor{ID: "user-1", DisplayName: "Traveler"},
		Message:      &paimon.Message{ID: "100", Text: raw},
		Command: &paimon.CommandInvocation{
			Name:            name,
			Value:           value,
			Options:         options,
			SourceEventID:   "evt-message",
			SourceEventKind: paimon.EventKindMessageCreated,
			RawInput:        raw,
		},
	}
}

// Flag returns a valueless option.
func Flag(name string) paimon.CommandOption {
	return paimon.CommandOption{Name: name}
}

// Option returns a value-carrying option.
func Option(name string, value string) paimon.CommandOption {
	return paimon.CommandOption{Name: name, Value: value, HasValue: true}
}
