package paimon

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	event := &Event{
		Kind:         EventKindCommandReceived,
		Source:       EventSource{Platform: PlatformTelegram, ID: "tg-main"},
		Conversation: Conversation{ID: "chat-1", Type: ConversationTypeGroup},
	}
	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent failed: %v", err)
	}
	if target.Conversation.ID != "chat-1" {
		t.Fatalf("conversation = %q, want chat-1", target.Conversation.ID)
	}
	if target.Sink == nil || target.Sink.ID != "tg-main" || target.Sink.Platform != PlatformTelegram {
		t.Fatalf("sink = %+v, want telegram/tg-main", target.Sink)
	}

	if _, err := OutboundTargetFromEvent(&Event{Kind: EventKindMessageCreated}); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
}

func TestSendMessageRequestValidate(t *testing.T) {
	t.Parallel()

	target := OutboundTarget{Conversation: Conversation{ID: "chat-1"}}
	tests := []struct {
		name    string
		request SendMessageRequest
		wantErr bool
	}{
		{
			name:    "valid with entity",
			request: SendMessageRequest{Target: target, Text: "Hu Tao", Entities: []TextEntity{{Type: TextEntityTypeBold, Length: 6}}},
		},
		{name: "missing text", request: SendMessageRequest{Target: target}, wantErr: true},
		{name: "missing conversation", request: SendMessageRequest{Text: "x"}, wantErr: true},
		{
			name:    "entity out of range",
			request: SendMessageRequest{Target: target, Text: "ab", Entities: []TextEntity{{Type: TextEntityTypeBold, Offset: 1, Length: 2}}},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.wantErr != (err != nil) {
				t.Fatalf("Validate error = %v, wantErr %v", err, testCase.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOutboundRequest) {
				t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
			}
		})
	}
}

func TestEditMessageRequestValidate(t *testing.T) {
	t.Parallel()

	request := EditMessageRequest{
		Target: OutboundTarget{Conversation: Conversation{ID: "chat-1"}},
		Text:   "page 1 / 2",
	}
	if err := request.Validate(); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("missing message id error = %v, want ErrInvalidOutboundRequest", err)
	}
	request.MessageID = "42"
	if err := request.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateTextEntitiesCountsRunes(t *testing.T) {
	t.Parallel()

	text := "🍀 Klee"
	if err := ValidateTextEntities(text, []TextEntity{{Type: TextEntityTypeBold, Offset: 2, Length: 4}}); err != nil {
		t.Fatalf("ValidateTextEntities failed: %v", err)
	}
	if err := ValidateTextEntities(text, []TextEntity{{Type: TextEntityTypeBold, Offset: 2, Length: 5}}); err == nil {
		t.Fatal("expected range error")
	}
	if err := ValidateTextEntities(text, []TextEntity{{Type: TextEntityTypeTextURL, Length: 1, URL: "nope"}}); err == nil {
		t.Fatal("expected url error")
	}
	if err := ValidateTextEntities(text, []TextEntity{{Length: 1}}); err == nil || !strings.Contains(err.Error(), "missing type") {
		t.Fatalf("error = %v, want missing type", err)
	}
}

func TestOutboundErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("FLOOD_WAIT")
	err := fmt.Errorf("edit: %w", &OutboundError{
		Operation:  OutboundOperationEditMessage,
		Kind:       OutboundErrorKindRateLimited,
		Platform:   PlatformTelegram,
		RetryAfter: 3 * time.Second,
		Cause:      cause,
	})

	delay, ok := AsOutboundRateLimit(err)
	if !ok || delay != 3*time.Second {
		t.Fatalf("AsOutboundRateLimit = (%s, %v), want (3s, true)", delay, ok)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true")
	}
	if IsOutboundNotFound(err) {
		t.Fatal("IsOutboundNotFound = true for rate limit")
	}
	if !strings.Contains(err.Error(), "kind=rate_limited") || !strings.Contains(err.Error(), "retry_after=3s") {
		t.Fatalf("Error() = %q, want kind and retry_after fields", err.Error())
	}

	notFound := &OutboundError{Kind: OutboundErrorKindNotFound}
	if !IsOutboundNotFound(notFound) {
		t.Fatal("IsOutboundNotFound = false, want true")
	}
	if _, ok := AsOutboundRateLimit(errors.New("plain")); ok {
		t.Fatal("AsOutboundRateLimit(plain) = true, want false")
	}
}
