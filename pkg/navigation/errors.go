package navigation

import "errors"

var (
	// ErrNoBookmarks indicates a session was requested without bookmarks.
	ErrNoBookmarks = errors.New("navigation: no bookmarks")
	// ErrInvalidBookmark indicates a bookmark descriptor is malformed.
	ErrInvalidBookmark = errors.New("navigation: invalid bookmark")
	// ErrUnknownBookmark indicates a lookup by bookmark name missed.
	ErrUnknownBookmark = errors.New("navigation: unknown bookmark")
	// ErrUnknownSection indicates a start key is missing from its section index.
	ErrUnknownSection = errors.New("navigation: unknown section")
	// ErrNoContent indicates the starting page of a new session has no content.
	ErrNoContent = errors.New("navigation: starting page has no content")
	// ErrInvalidControls indicates conflicting control symbols.
	ErrInvalidControls = errors.New("navigation: invalid controls")
	// ErrUnknownSession indicates an event for an untracked or expired message.
	ErrUnknownSession = errors.New("navigation: unknown session")
	// ErrSessionTracked indicates a message already has a live session.
	ErrSessionTracked = errors.New("navigation: message already tracked")
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("navigation: session closed")
	// ErrRenderFailed wraps edit failures that evicted a session.
	ErrRenderFailed = errors.New("navigation: render failed")
	// ErrRenderDeferred marks edit failures that keep the session alive.
	ErrRenderDeferred = errors.New("navigation: render deferred")
)
