// Package navigation implements interactive paging over posted chat messages.
//
// A command describes its content as one or more bookmarks, each backed by a
// pure ContentProvider. A Session tracks the active bookmark and one cursor
// per bookmark, a Registry maps posted messages to their live sessions and
// owns their expiry timers, and a Dispatcher turns control events (reaction
// symbols from a chat platform) into transitions and message edits.
//
// Out-of-range moves, provider failures and events for untracked messages are
// silent: the only feedback an actor gets is whether the message changed.
package navigation
