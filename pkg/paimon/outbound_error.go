package paimon

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutboundOperation names the dispatcher operation that failed.
type OutboundOperation string

const (
	// OutboundOperationSendMessage is SendMessage.
	OutboundOperationSendMessage OutboundOperation = "send_message"
	// OutboundOperationEditMessage is EditMessage.
	OutboundOperationEditMessage OutboundOperation = "edit_message"
)

// OutboundErrorKind classifies an outbound failure for retry decisions.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited means the platform throttled the bot.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary means a retry may succeed.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindNotFound means the target message or chat is gone.
	OutboundErrorKindNotFound OutboundErrorKind = "not_found"
	// OutboundErrorKindPermanent means retries will not help.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindUnknown is unclassified.
	OutboundErrorKindUnknown OutboundErrorKind = "unknown"
)

// OutboundError wraps a driver failure with routing and retry metadata.
type OutboundError struct {
	Operation OutboundOperation
	Kind      OutboundErrorKind
	Platform  Platform
	SinkID    string
	// RetryAfter is the platform's suggested delay, when known.
	RetryAfter time.Duration
	// Code and Type carry the platform RPC error, when known.
	Code  int
	Type  string
	Cause error
}

// Error renders the populated fields as key=value pairs.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var fields []string
	add := func(key string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, key+"="+value)
		}
	}
	add("operation", string(e.Operation))
	add("kind", string(e.Kind))
	add("platform", string(e.Platform))
	add("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		add("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		add("code", fmt.Sprint(e.Code))
	}
	add("type", e.Type)

	message := "outbound error"
	if len(fields) > 0 {
		message += ": " + strings.Join(fields, " ")
	}
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}

	return message
}

// Unwrap returns the cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError extracts an OutboundError from err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if err == nil || !errors.As(err, &outboundErr) || outboundErr == nil {
		return nil, false
	}

	return outboundErr, true
}

// AsOutboundRateLimit reports whether err is a rate limit and returns the
// suggested delay, which is zero when the platform gave none.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// IsOutboundNotFound reports whether err says the target no longer exists.
func IsOutboundNotFound(err error) bool {
	outboundErr, ok := AsOutboundError(err)
	return ok && outboundErr.Kind == OutboundErrorKindNotFound
}
