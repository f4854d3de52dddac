package telegram

import (
	"time"

	"ex-paimon/pkg/paimon"
)

// UpdateType identifies the Telegram update category.
type UpdateType string

const (
	// UpdateTypeMessage identifies new message updates.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeReactionAdd identifies one reaction added to a message.
	UpdateTypeReactionAdd UpdateType = "reaction_add"
	// UpdateTypeReactionRemove identifies one reaction removed from a message.
	UpdateTypeReactionRemove UpdateType = "reaction_remove"
)

// Update is the adapter DTO between gotd updates and protocol events.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Reaction   *ReactionPayload
	Metadata   map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  paimon.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// MessagePayload is the projection of one Telegram text message.
type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []paimon.TextEntity
}

// ReactionPayload is one emoji delta on a message.
type ReactionPayload struct {
	MessageID string
	Emoji     string
	// Superseded is set on removals reported in the same update as an add.
	Superseded bool
}
