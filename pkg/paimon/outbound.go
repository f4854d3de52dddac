package paimon

import (
	"context"
	"fmt"
)

// ServiceSinkDispatcher is the service registry key for outbound messaging.
const ServiceSinkDispatcher = "paimon.sink_dispatcher"

// SinkDispatcher delivers outbound operations to the driver that owns the
// target conversation.
type SinkDispatcher interface {
	// SendMessage posts a new message.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	// EditMessage replaces the text of a message the bot posted.
	EditMessage(ctx context.Context, request EditMessageRequest) error
}

// OutboundTarget identifies where an outbound operation is delivered.
type OutboundTarget struct {
	Conversation Conversation
	// Sink pins delivery to one driver; nil lets the dispatcher pick.
	Sink *EventSink
}

// Validate checks the routing fields.
func (t OutboundTarget) Validate() error {
	if t.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	}
	if t.Sink != nil && t.Sink.Platform == "" && t.Sink.ID == "" {
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent replies into the conversation and driver event
// came from.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	target := OutboundTarget{Conversation: event.Conversation}
	if event.Source.Platform != "" || event.Source.ID != "" {
		target.Sink = &EventSink{Platform: event.Source.Platform, ID: event.Source.ID}
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a delivered message.
type OutboundMessage struct {
	ID     string
	Target OutboundTarget
}

// SendMessageRequest describes a new text message.
type SendMessageRequest struct {
	Target             OutboundTarget
	Text               string
	Entities           []TextEntity
	ReplyToMessageID   string
	DisableLinkPreview bool
}

// Validate checks the request before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := ValidateTextEntities(r.Text, r.Entities); err != nil {
		return fmt.Errorf("%w: validate send message entities: %w", ErrInvalidOutboundRequest, err)
	}

	return nil
}

// EditMessageRequest replaces the text of an existing message.
type EditMessageRequest struct {
	Target             OutboundTarget
	MessageID          string
	Text               string
	Entities           []TextEntity
	DisableLinkPreview bool
}

// Validate checks the request before dispatch.
func (r EditMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate edit message target: %w", err)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := ValidateTextEntities(r.Text, r.Entities); err != nil {
		return fmt.Errorf("%w: validate edit message entities: %w", ErrInvalidOutboundRequest, err)
	}

	return nil
}
