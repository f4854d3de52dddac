package paimon

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindMessageCreated is emitted when a new message is posted.
	EventKindMessageCreated EventKind = "message.created"
	// EventKindReactionAdded is emitted when a reaction is added to a message.
	EventKindReactionAdded EventKind = "reaction.added"
	// EventKindReactionRemoved is emitted when a reaction is removed from a message.
	EventKindReactionRemoved EventKind = "reaction.removed"
	// EventKindCommandReceived is derived by the kernel from command messages.
	EventKindCommandReceived EventKind = "command.received"
)

// Platform identifies an external chat platform.
type Platform string

const (
	// PlatformTelegram is Telegram.
	PlatformTelegram Platform = "telegram"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypePrivate is a direct conversation.
	ConversationTypePrivate ConversationType = "private"
	// ConversationTypeGroup is a group conversation.
	ConversationTypeGroup ConversationType = "group"
	// ConversationTypeChannel is a channel-style conversation.
	ConversationTypeChannel ConversationType = "channel"
)

// MetadataBotUsername is the Event.Metadata key drivers use for the
// username of the receiving bot account.
const MetadataBotUsername = "bot_username"

// EventSource identifies the driver instance that produced an event.
type EventSource struct {
	Platform Platform
	ID       string
}

// EventSink identifies the driver instance that should deliver outbound
// operations.
type EventSink struct {
	Platform Platform
	ID       string
}

// Event is the neutral envelope drivers publish and modules consume.
//
// Message, Reaction and Command are payload branches selected by Kind.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp.
	OccurredAt time.Time
	// Source identifies the producing driver.
	Source EventSource
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event.
	Actor Actor
	// Message carries content for message and command events.
	Message *Message
	// Reaction carries emoji metadata for reaction events.
	Reaction *Reaction
	// Command carries the bound invocation for command events.
	Command *CommandInvocation
	// Metadata stores optional driver-provided context.
	Metadata map[string]string
}

// Conversation identifies where an event occurred.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor identifies the account that initiated an event.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Message holds neutral message content.
type Message struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []TextEntity
}

// ReactionAction identifies whether a reaction is being added or removed.
type ReactionAction string

const (
	// ReactionActionAdd indicates a reaction was added.
	ReactionActionAdd ReactionAction = "add"
	// ReactionActionRemove indicates a reaction was removed.
	ReactionActionRemove ReactionAction = "remove"
)

// Reaction holds one reaction delta on a message.
type Reaction struct {
	// MessageID identifies the reacted message.
	MessageID string
	// Emoji is the normalized emoji token.
	Emoji string
	// Action tells whether Emoji was added or removed.
	Action ReactionAction
	// Superseded marks a removal that arrived together with an add from
	// the same actor, as when a platform swaps one reaction for another.
	Superseded bool
}

// Validate checks envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindMessageCreated:
		if e.Message == nil {
			return fmt.Errorf("%w: %s requires message payload", ErrInvalidEvent, e.Kind)
		}
	case EventKindReactionAdded, EventKindReactionRemoved:
		if e.Reaction == nil {
			return fmt.Errorf("%w: %s requires reaction payload", ErrInvalidEvent, e.Kind)
		}
		if e.Reaction.MessageID == "" {
			return fmt.Errorf("%w: %s requires reacted message id", ErrInvalidEvent, e.Kind)
		}
	case EventKindCommandReceived:
		if e.Command == nil || e.Message == nil {
			return fmt.Errorf("%w: %s requires command and message payloads", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
