package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ex-paimon/pkg/paimon"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

const defaultOutboundTimeout = 5 * time.Second

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout bounds each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger sets the outbound logger.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSinkRef sets the sink identity reported in outbound errors.
func WithSinkRef(ref paimon.EventSink) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.sink = ref
		if cfg.sink.Platform == "" {
			cfg.sink.Platform = DriverPlatform
		}
	}
}

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	sink       paimon.EventSink
}

// SinkDispatcher adapts protocol outbound operations to Telegram RPC calls.
type SinkDispatcher struct {
	cfg   outboundConfig
	peers *PeerCache
	rpc   outboundRPC
}

// outboundRPC is the slice of the Telegram API the dispatcher calls.
type outboundRPC interface {
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesEditMessage(ctx context.Context, request *tg.MessagesEditMessageRequest) (tg.UpdatesClass, error)
}

// NewOutboundDispatcher creates a dispatcher calling rpc, usually the
// client's *tg.Client.
func NewOutboundDispatcher(rpc outboundRPC, peers *PeerCache, options ...OutboundOption) (*SinkDispatcher, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
		logger:     slog.Default(),
		sink:       paimon.EventSink{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{cfg: cfg, peers: peers, rpc: rpc}, nil
}

// SendMessage posts a text message and returns its Telegram message ID.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request paimon.SendMessageRequest,
) (*paimon.OutboundMessage, error) {
	id, err := d.sendMessage(ctx, request)
	if err != nil {
		return nil, mapTelegramOutboundError(paimon.OutboundOperationSendMessage, d.cfg.sink, err)
	}

	return &paimon.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

func (d *SinkDispatcher) sendMessage(ctx context.Context, request paimon.SendMessageRequest) (int, error) {
	if err := request.Validate(); err != nil {
		return 0, fmt.Errorf("send message validate: %w", err)
	}
	peer, err := d.peers.Resolve(request.Target.Conversation)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	entities, err := mapOutboundTextEntities(request.Text, request.Entities)
	if err != nil {
		return 0, fmt.Errorf("send message entities: %w", err)
	}

	rpcRequest := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   request.Text,
		NoWebpage: request.DisableLinkPreview,
		Entities:  entities,
	}
	if request.ReplyToMessageID != "" {
		replyID, err := parseMessageID(request.ReplyToMessageID)
		if err != nil {
			return 0, fmt.Errorf("send message reply id: %w", err)
		}
		rpcRequest.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyID}
	}
	rpcRequest.RandomID, err = crypto.RandInt64(crypto.DefaultRand())
	if err != nil {
		return 0, fmt.Errorf("send message random id: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.cfg.rpcTimeout)
	defer cancel()

	updates, err := d.rpc.MessagesSendMessage(rpcCtx, rpcRequest)
	if err != nil {
		return 0, fmt.Errorf("send message to %s: %w", request.Target.Conversation.ID, err)
	}
	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("send message extract id: %w", err)
	}

	d.cfg.logger.DebugContext(ctx, "telegram message sent",
		"conversation", request.Target.Conversation.ID,
		"message", id,
	)

	return id, nil
}

// EditMessage replaces the text of a message. An edit that leaves the
// message unchanged counts as success.
func (d *SinkDispatcher) EditMessage(ctx context.Context, request paimon.EditMessageRequest) error {
	if err := d.editMessage(ctx, request); err != nil {
		return mapTelegramOutboundError(paimon.OutboundOperationEditMessage, d.cfg.sink, err)
	}

	return nil
}

func (d *SinkDispatcher) editMessage(ctx context.Context, request paimon.EditMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit message validate: %w", err)
	}
	messageID, err := parseMessageID(request.MessageID)
	if err != nil {
		return fmt.Errorf("edit message id: %w", err)
	}
	peer, err := d.peers.Resolve(request.Target.Conversation)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	entities, err := mapOutboundTextEntities(request.Text, request.Entities)
	if err != nil {
		return fmt.Errorf("edit message entities: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.cfg.rpcTimeout)
	defer cancel()

	_, err = d.rpc.MessagesEditMessage(rpcCtx, &tg.MessagesEditMessageRequest{
		Peer:      peer,
		ID:        messageID,
		Message:   request.Text,
		NoWebpage: request.DisableLinkPreview,
		Entities:  entities,
	})
	switch {
	case isMessageNotModified(err):
		d.cfg.logger.DebugContext(ctx, "telegram edit left message unchanged", "message", messageID)
		return nil
	case err != nil:
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}

	return nil
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message id %q", paimon.ErrInvalidOutboundRequest, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id %q", paimon.ErrInvalidOutboundRequest, raw)
	}

	return value, nil
}

// mapOutboundTextEntities converts code point ranges to the UTF-16 ranges
// Telegram expects.
func mapOutboundTextEntities(text string, entities []paimon.TextEntity) ([]tg.MessageEntityClass, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	utf16Offsets := buildUTF16Offsets(text)
	converted := make([]tg.MessageEntityClass, 0, len(entities))
	for index, entity := range entities {
		start := entity.Offset
		end := entity.Offset + entity.Length
		if start < 0 || end <= start || end >= len(utf16Offsets) {
			return nil, fmt.Errorf("%w: entity[%d] range [%d,%d) outside %d code points",
				paimon.ErrInvalidOutboundRequest, index, start, end, len(utf16Offsets)-1)
		}

		offset := utf16Offsets[start]
		length := utf16Offsets[end] - offset
		switch entity.Type {
		case paimon.TextEntityTypeBold:
			converted = append(converted, &tg.MessageEntityBold{Offset: offset, Length: length})
		case paimon.TextEntityTypeItalic:
			converted = append(converted, &tg.MessageEntityItalic{Offset: offset, Length: length})
		case paimon.TextEntityTypeCode:
			converted = append(converted, &tg.MessageEntityCode{Offset: offset, Length: length})
		case paimon.TextEntityTypePre:
			converted = append(converted, &tg.MessageEntityPre{Offset: offset, Length: length})
		case paimon.TextEntityTypeTextURL:
			converted = append(converted, &tg.MessageEntityTextURL{Offset: offset, Length: length, URL: entity.URL})
		case paimon.TextEntityTypeBlockquote:
			converted = append(converted, &tg.MessageEntityBlockquote{Offset: offset, Length: length})
		default:
			return nil, fmt.Errorf("%w: entity[%d] unsupported type %q",
				paimon.ErrInvalidOutboundRequest, index, entity.Type)
		}
	}

	return converted, nil
}

// buildUTF16Offsets returns, for each code point index i, the UTF-16 offset
// where that code point starts; the last element is the total length.
func buildUTF16Offsets(text string) []int {
	offsets := make([]int, 1, len(text)+1)
	current := 0
	for _, value := range text {
		if value >= 0x10000 {
			current += 2
		} else {
			current++
		}
		offsets = append(offsets, current)
	}

	return offsets
}
