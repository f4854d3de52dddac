package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"ex-paimon/pkg/paimon"

	"github.com/gotd/td/tg"
)

const gotdUnknownID = "unknown"

// BotIdentity holds the bot account username, learned after authorization.
type BotIdentity struct {
	username atomic.Pointer[string]
}

// SetUsername records the bot username without a leading "@".
func (b *BotIdentity) SetUsername(username string) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(username), "@")
	b.username.Store(&trimmed)
}

// Username returns the recorded username or "".
func (b *BotIdentity) Username() string {
	if b == nil {
		return ""
	}
	if username := b.username.Load(); username != nil {
		return *username
	}
	return ""
}

// DefaultGotdUpdateMapper maps gotd updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
	identity  *BotIdentity
}

// GotdUpdateMapperOption mutates DefaultGotdUpdateMapper behavior.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache records entity-derived peers for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// WithBotIdentity stamps the bot username on every mapped update.
func WithBotIdentity(identity *BotIdentity) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		mapper.identity = identity
	}
}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	mapper := DefaultGotdUpdateMapper{}
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts one flattened gotd update. New messages and bot reaction
// deltas are accepted; every other update class is skipped.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, envelope gotdUpdateEnvelope) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update context: %w", err)
	}
	if m.peerCache != nil {
		m.peerCache.RememberEnvelope(envelope)
	}

	if envelope.reaction != nil {
		return m.mapReactionDelta(envelope)
	}

	var message tg.MessageClass
	switch update := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		message = update.Message
	case *tg.UpdateNewChannelMessage:
		message = update.Message
	default:
		return Update{}, false, nil
	}

	typed, ok := message.(*tg.Message)
	if !ok || typed.Out {
		return Update{}, false, nil
	}

	return m.mapMessage(typed, envelope)
}

func (m DefaultGotdUpdateMapper) mapMessage(message *tg.Message, envelope gotdUpdateEnvelope) (Update, bool, error) {
	chat := resolveChatFromPeer(message.PeerID, envelope)
	actor := resolveActorFromPeer(message.FromID, envelope)
	if actor.ID == gotdUnknownID {
		actor = resolveActorFromPeer(message.PeerID, envelope)
	}

	payload := &MessagePayload{
		ID:       strconv.Itoa(message.ID),
		Text:     message.Message,
		Entities: mapTextEntities(message.Message, message.Entities),
	}
	if replyTo, ok := message.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			if replyToMessageID, ok := header.GetReplyToMsgID(); ok {
				payload.ReplyToID = strconv.Itoa(replyToMessageID)
			}
		}
	}

	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(message.PeerID, envelope))

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID),
		Type:       UpdateTypeMessage,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
		Metadata:   m.metadata(envelope),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) mapReactionDelta(envelope gotdUpdateEnvelope) (Update, bool, error) {
	delta := envelope.reaction
	if delta.emoji == "" {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(delta.peer, envelope)
	actor := resolveActorFromPeer(delta.actor, envelope)
	occurredAt := envelope.occurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(delta.peer, envelope))

	messageID := strconv.Itoa(delta.messageID)
	return Update{
		ID:         composeUpdateID(delta.action, chat.ID, messageID, actor.ID, delta.emoji, occurredAt),
		Type:       delta.action,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Reaction:   &ReactionPayload{MessageID: messageID, Emoji: delta.emoji, Superseded: delta.superseded},
		Metadata:   m.metadata(envelope),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) rememberConversationPeer(chat ChatRef, peer tg.InputPeerClass) {
	if m.peerCache != nil {
		m.peerCache.RememberConversation(chat, peer)
	}
}

func (m DefaultGotdUpdateMapper) metadata(envelope gotdUpdateEnvelope) map[string]string {
	metadata := make(map[string]string, 2)
	if envelope.updateClass != "" {
		metadata["gotd_update"] = envelope.updateClass
	}
	if username := m.identity.Username(); username != "" {
		metadata[paimon.MetadataBotUsername] = username
	}
	if len(metadata) == 0 {
		return nil
	}

	return metadata
}

type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
	reaction    *gotdReactionDelta
}

type gotdReactionDelta struct {
	action     UpdateType
	messageID  int
	emoji      string
	superseded bool
	actor      tg.PeerClass
	peer       tg.PeerClass
}

type gotdChatInfo struct {
	title     string
	kind      paimon.ConversationType
	inputPeer tg.InputPeerClass
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		if notEmpty, ok := user.AsNotEmpty(); ok && notEmpty != nil {
			out[notEmpty.ID] = notEmpty
		}
	}

	return out
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	if len(chats) == 0 {
		return nil
	}

	out := make(map[int64]gotdChatInfo, len(chats))
	for _, chat := range chats {
		switch typed := chat.(type) {
		case *tg.Chat:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      paimon.ConversationTypeGroup,
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChatForbidden:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      paimon.ConversationTypeGroup,
				inputPeer: &tg.InputPeerChat{ChatID: typed.ID},
			}
		case *tg.Channel:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      channelKind(typed.Megagroup),
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChannelForbidden:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      channelKind(typed.Megagroup),
				inputPeer: &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash},
			}
		}
	}

	return out
}

// channelKind maps megagroups to groups; they use channel peers for RPC.
func channelKind(megagroup bool) paimon.ConversationType {
	if megagroup {
		return paimon.ConversationTypeGroup
	}
	return paimon.ConversationTypeChannel
}

func resolveChatFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ChatRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		actor := resolveActorByUserID(typed.UserID, envelope)
		return ChatRef{ID: actor.ID, Type: paimon.ConversationTypePrivate, Title: actor.DisplayName}
	case *tg.PeerChat:
		return resolveChatByID(typed.ChatID, paimon.ConversationTypeGroup, envelope)
	case *tg.PeerChannel:
		return resolveChatByID(typed.ChannelID, paimon.ConversationTypeChannel, envelope)
	default:
		return ChatRef{ID: gotdUnknownID, Type: paimon.ConversationTypePrivate}
	}
}

func resolveChatByID(id int64, fallback paimon.ConversationType, envelope gotdUpdateEnvelope) ChatRef {
	chat := ChatRef{ID: strconv.FormatInt(id, 10), Type: fallback}
	if info, ok := envelope.chatsByID[id]; ok {
		chat.Title = info.title
		chat.Type = info.kind
	}

	return chat
}

func resolveActorFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ActorRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return resolveActorByUserID(typed.UserID, envelope)
	case *tg.PeerChat:
		return ActorRef{ID: strconv.FormatInt(typed.ChatID, 10), DisplayName: envelope.chatsByID[typed.ChatID].title}
	case *tg.PeerChannel:
		return ActorRef{ID: strconv.FormatInt(typed.ChannelID, 10), DisplayName: envelope.chatsByID[typed.ChannelID].title}
	default:
		return ActorRef{ID: gotdUnknownID}
	}
}

func resolveActorByUserID(userID int64, envelope gotdUpdateEnvelope) ActorRef {
	if userID == 0 {
		return ActorRef{ID: gotdUnknownID}
	}

	id := strconv.FormatInt(userID, 10)
	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return ActorRef{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()

	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = id
	}

	return ActorRef{ID: id, Username: username, DisplayName: displayName, IsBot: user.Bot}
}

func resolveInputPeerFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user, ok := envelope.usersByID[typed.UserID]; ok && user != nil {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		if typed.ChatID != 0 {
			return &tg.InputPeerChat{ChatID: typed.ChatID}
		}
	case *tg.PeerChannel:
		if info, ok := envelope.chatsByID[typed.ChannelID]; ok && info.inputPeer != nil {
			return cloneInputPeer(info.inputPeer)
		}
	}

	return nil
}

// mapTextEntities keeps the formatting entities the protocol knows and
// converts their UTF-16 ranges to code point ranges.
func mapTextEntities(text string, entities []tg.MessageEntityClass) []paimon.TextEntity {
	if len(entities) == 0 {
		return nil
	}

	utf16Offsets := buildUTF16Offsets(text)
	var out []paimon.TextEntity
	for _, entity := range entities {
		mapped := paimon.TextEntity{}
		switch typed := entity.(type) {
		case *tg.MessageEntityBold:
			mapped.Type = paimon.TextEntityTypeBold
		case *tg.MessageEntityItalic:
			mapped.Type = paimon.TextEntityTypeItalic
		case *tg.MessageEntityCode:
			mapped.Type = paimon.TextEntityTypeCode
		case *tg.MessageEntityPre:
			mapped.Type = paimon.TextEntityTypePre
		case *tg.MessageEntityBlockquote:
			mapped.Type = paimon.TextEntityTypeBlockquote
		case *tg.MessageEntityTextURL:
			mapped.Type = paimon.TextEntityTypeTextURL
			mapped.URL = typed.URL
		default:
			continue
		}

		start, startOK := runeIndexAtUTF16(utf16Offsets, entity.GetOffset())
		end, endOK := runeIndexAtUTF16(utf16Offsets, entity.GetOffset()+entity.GetLength())
		if !startOK || !endOK || end <= start {
			continue
		}
		mapped.Offset = start
		mapped.Length = end - start
		out = append(out, mapped)
	}

	return out
}

// runeIndexAtUTF16 finds the code point index starting at a UTF-16 offset.
func runeIndexAtUTF16(utf16Offsets []int, offset int) (int, bool) {
	index := sort.SearchInts(utf16Offsets, offset)
	if index >= len(utf16Offsets) || utf16Offsets[index] != offset {
		return 0, false
	}

	return index, true
}

func reactionToEmoji(reaction tg.ReactionClass) string {
	switch typed := reaction.(type) {
	case *tg.ReactionEmoji:
		return typed.Emoticon
	case *tg.ReactionCustomEmoji:
		return "custom:" + strconv.FormatInt(typed.DocumentID, 10)
	case *tg.ReactionPaid:
		return "paid"
	default:
		return ""
	}
}

func intToTimeUTC(value int) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(value), 0).UTC()
}

func composeUpdateID(updateType UpdateType, chatID string, parts ...any) string {
	values := []string{"tg", string(updateType)}
	if chatID != "" {
		values = append(values, chatID)
	}
	for _, part := range parts {
		switch typed := part.(type) {
		case string:
			if typed != "" {
				values = append(values, typed)
			}
		case time.Time:
			if !typed.IsZero() {
				values = append(values, strconv.FormatInt(typed.UnixNano(), 10))
			}
		default:
			values = append(values, fmt.Sprint(part))
		}
	}

	return strings.Join(values, ":")
}
