package telegram

import (
	"context"
	"fmt"
	"time"

	"ex-paimon/pkg/paimon"
)

// Decoder converts Telegram update DTOs into protocol events.
type Decoder interface {
	Decode(ctx context.Context, update Update) (*paimon.Event, error)
}

// DefaultDecoder provides the default Telegram-to-protocol mapping.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a validated event.
func (DefaultDecoder) Decode(_ context.Context, update Update) (*paimon.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		if update.Message == nil {
			return nil, fmt.Errorf("decode message: missing message payload")
		}
		event.Kind = paimon.EventKindMessageCreated
		event.Message = &paimon.Message{
			ID:        update.Message.ID,
			ReplyToID: update.Message.ReplyToID,
			Text:      update.Message.Text,
			Entities:  update.Message.Entities,
		}
	case UpdateTypeReactionAdd, UpdateTypeReactionRemove:
		if update.Reaction == nil {
			return nil, fmt.Errorf("decode reaction: missing reaction payload")
		}
		event.Kind = paimon.EventKindReactionAdded
		action := paimon.ReactionActionAdd
		if update.Type == UpdateTypeReactionRemove {
			event.Kind = paimon.EventKindReactionRemoved
			action = paimon.ReactionActionRemove
		}
		event.Reaction = &paimon.Reaction{
			MessageID:  update.Reaction.MessageID,
			Emoji:      update.Reaction.Emoji,
			Action:     action,
			Superseded: update.Reaction.Superseded && action == paimon.ReactionActionRemove,
		}
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

func newBaseEvent(update Update) *paimon.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &paimon.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Conversation: paimon.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: paimon.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Metadata: update.Metadata,
	}
}
