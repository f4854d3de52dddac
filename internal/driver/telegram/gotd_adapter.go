package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 256

// GotdUpdateChannel is the gotd UpdateHandler feeding GotdBotSource.
type GotdUpdateChannel struct {
	updates chan gotdUpdateEnvelope
}

// NewGotdUpdateChannel creates a stream bridge with the given buffer.
func NewGotdUpdateChannel(buffer int) *GotdUpdateChannel {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{updates: make(chan gotdUpdateEnvelope, buffer)}
}

// Updates returns the stream channel.
func (s *GotdUpdateChannel) Updates() <-chan gotdUpdateEnvelope {
	return s.updates
}

// Handle flattens gotd update batches and forwards each unit to the stream.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, item := range batch {
		select {
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates publish: %w", ctx.Err())
		case s.updates <- item:
		}
	}

	return nil
}

func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdUpdateEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdatesCombined:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdateShort:
		return flattenSingleGotdUpdate(typed.Update, intToTimeUTC(typed.Date), nil, nil), nil
	case *tg.UpdateShortMessage:
		return []gotdUpdateEnvelope{flattenShortMessage(typed)}, nil
	case *tg.UpdateShortChatMessage:
		return []gotdUpdateEnvelope{flattenShortChatMessage(typed)}, nil
	case *tg.UpdatesTooLong:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func flattenGotdBatch(
	updates []tg.UpdateClass,
	date int,
	users []tg.UserClass,
	chats []tg.ChatClass,
) []gotdUpdateEnvelope {
	occurredAt := intToTimeUTC(date)
	usersByID := indexGotdUsers(users)
	chatsByID := indexGotdChats(chats)

	batch := make([]gotdUpdateEnvelope, 0, len(updates))
	for _, update := range updates {
		batch = append(batch, flattenSingleGotdUpdate(update, occurredAt, usersByID, chatsByID)...)
	}

	return batch
}

func flattenSingleGotdUpdate(
	update tg.UpdateClass,
	occurredAt time.Time,
	usersByID map[int64]*tg.User,
	chatsByID map[int64]gotdChatInfo,
) []gotdUpdateEnvelope {
	switch typed := update.(type) {
	case nil:
		return nil
	case *tg.UpdateBotMessageReaction:
		return flattenBotReactionUpdate(typed, occurredAt, usersByID, chatsByID)
	default:
		return []gotdUpdateEnvelope{{
			update:      update,
			occurredAt:  occurredAt,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
		}}
	}
}

func flattenShortMessage(update *tg.UpdateShortMessage) gotdUpdateEnvelope {
	message := &tg.Message{
		ID:      update.ID,
		Out:     update.Out,
		PeerID:  &tg.PeerUser{UserID: update.UserID},
		Date:    update.Date,
		Message: update.Message,
	}
	message.SetFromID(&tg.PeerUser{UserID: update.UserID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}
	if entities, ok := update.GetEntities(); ok {
		message.SetEntities(entities)
	}

	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: update.Pts, PtsCount: update.PtsCount},
		occurredAt:  intToTimeUTC(update.Date),
		updateClass: update.TypeName(),
	}
}

func flattenShortChatMessage(update *tg.UpdateShortChatMessage) gotdUpdateEnvelope {
	message := &tg.Message{
		ID:      update.ID,
		Out:     update.Out,
		PeerID:  &tg.PeerChat{ChatID: update.ChatID},
		Date:    update.Date,
		Message: update.Message,
	}
	message.SetFromID(&tg.PeerUser{UserID: update.FromID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}
	if entities, ok := update.GetEntities(); ok {
		message.SetEntities(entities)
	}

	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: update.Pts, PtsCount: update.PtsCount},
		occurredAt:  intToTimeUTC(update.Date),
		updateClass: update.TypeName(),
	}
}

// flattenBotReactionUpdate turns the old and new reaction sets of one actor
// into one envelope per added or removed emoji. Adds come first; removals
// that share the update with an add are marked superseded.
func flattenBotReactionUpdate(
	update *tg.UpdateBotMessageReaction,
	occurredAt time.Time,
	usersByID map[int64]*tg.User,
	chatsByID map[int64]gotdChatInfo,
) []gotdUpdateEnvelope {
	if date := intToTimeUTC(update.Date); !date.IsZero() {
		occurredAt = date
	}

	oldSet := mapReactionsToSet(update.OldReactions)
	newSet := mapReactionsToSet(update.NewReactions)

	var (
		items []gotdUpdateEnvelope
		added bool
	)
	appendDelta := func(action UpdateType, emoji string) {
		items = append(items, gotdUpdateEnvelope{
			update:      update,
			occurredAt:  occurredAt,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
			reaction: &gotdReactionDelta{
				action:     action,
				messageID:  update.MsgID,
				emoji:      emoji,
				superseded: action == UpdateTypeReactionRemove && added,
				actor:      update.Actor,
				peer:       update.Peer,
			},
		})
	}
	for _, emoji := range newSet.order {
		if _, exists := oldSet.index[emoji]; !exists {
			appendDelta(UpdateTypeReactionAdd, emoji)
			added = true
		}
	}
	for _, emoji := range oldSet.order {
		if _, exists := newSet.index[emoji]; !exists {
			appendDelta(UpdateTypeReactionRemove, emoji)
		}
	}

	return items
}

type reactionSet struct {
	order []string
	index map[string]struct{}
}

func mapReactionsToSet(reactions []tg.ReactionClass) reactionSet {
	set := reactionSet{index: make(map[string]struct{}, len(reactions))}
	for _, reaction := range reactions {
		emoji := reactionToEmoji(reaction)
		if emoji == "" {
			continue
		}
		if _, exists := set.index[emoji]; exists {
			continue
		}
		set.index[emoji] = struct{}{}
		set.order = append(set.order, emoji)
	}

	return set
}
