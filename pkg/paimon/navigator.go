package paimon

import (
	"context"
	"fmt"

	"ex-paimon/pkg/navigation"
)

// ServiceNavigator is the service registry key for the paginated message
// navigator.
const ServiceNavigator = "paimon.navigator"

// Navigator posts paginated messages that users page through with reactions.
type Navigator interface {
	// Navigate posts the first page in reply to request.Source and tracks
	// the session until it is closed or expires.
	Navigate(ctx context.Context, request NavigateRequest) (navigation.MessageKey, error)
}

// NavigateRequest describes one paginated reply.
type NavigateRequest struct {
	// Source is the event being answered; its actor owns the session.
	Source    *Event
	Bookmarks []navigation.Bookmark
	Start     navigation.Start
}

// Validate checks that the request can be routed.
func (r NavigateRequest) Validate() error {
	if r.Source == nil {
		return fmt.Errorf("validate navigate request: nil source event")
	}
	if r.Source.Conversation.ID == "" {
		return fmt.Errorf("validate navigate request: missing conversation id")
	}
	if len(r.Bookmarks) == 0 {
		return fmt.Errorf("validate navigate request: %w", navigation.ErrNoBookmarks)
	}

	return nil
}
