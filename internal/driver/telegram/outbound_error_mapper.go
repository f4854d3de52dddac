package telegram

import (
	"errors"
	"strings"

	"ex-paimon/pkg/paimon"

	"github.com/gotd/td/tgerr"
)

const (
	rpcMessageNotModified = "MESSAGE_NOT_MODIFIED"
	rpcMessageIDInvalid   = "MESSAGE_ID_INVALID"
	rpcMessageEditExpired = "MESSAGE_EDIT_TIME_EXPIRED"
	rpcPeerIDInvalid      = "PEER_ID_INVALID"
	rpcChatWriteForbidden = "CHAT_WRITE_FORBIDDEN"
)

// isMessageNotModified reports an edit that left the message as it was.
func isMessageNotModified(err error) bool {
	return tgerr.Is(err, rpcMessageNotModified)
}

func mapTelegramOutboundError(operation paimon.OutboundOperation, sink paimon.EventSink, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, paimon.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &paimon.OutboundError{
		Operation: operation,
		Kind:      paimon.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = paimon.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}
	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	if outboundErr.Kind == paimon.OutboundErrorKindUnknown {
		outboundErr.Kind = classifyTelegramRPCError(rpcErr)
	}

	return outboundErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) paimon.OutboundErrorKind {
	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	switch {
	case rpcErr.Code == 420 || rpcErr.Code == 429 || strings.HasPrefix(errorType, "FLOOD"):
		return paimon.OutboundErrorKindRateLimited
	case errorType == rpcMessageIDInvalid || errorType == rpcPeerIDInvalid:
		return paimon.OutboundErrorKindNotFound
	case errorType == rpcMessageEditExpired || errorType == rpcChatWriteForbidden:
		return paimon.OutboundErrorKindPermanent
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return paimon.OutboundErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code < 500:
		return paimon.OutboundErrorKindPermanent
	default:
		return paimon.OutboundErrorKindUnknown
	}
}
