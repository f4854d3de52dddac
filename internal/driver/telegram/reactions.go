package telegram

import "strings"

// standardReactions is the free reaction set every chat accepts unless an
// admin narrows it. Bots cannot press custom emoji, and users only see
// these in the default picker.
var standardReactions = newReactionSet(
	"👍", "👎", "❤", "🔥", "🥰", "👏", "😁", "🤔", "🤯", "😱",
	"🤬", "😢", "🎉", "🤩", "🤮", "💩", "🙏", "👌", "🕊", "🤡",
	"🥱", "🥴", "😍", "🐳", "❤‍🔥", "🌚", "🌭", "💯", "🤣", "⚡",
	"🍌", "🏆", "💔", "🤨", "😐", "🍓", "🍾", "💋", "🖕", "😈",
	"😴", "😭", "🤓", "👻", "👨‍💻", "👀", "🎃", "🙈", "😇", "😨",
	"🤝", "✍", "🤗", "🫡", "🎅", "🎄", "☃", "💅", "🤪", "🗿",
	"🆒", "💘", "🙉", "🦄", "😘", "💊", "🙊", "😎", "👾", "🤷‍♂",
	"🤷", "🤷‍♀", "😡",
)

func newReactionSet(emoji ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(emoji))
	for _, symbol := range emoji {
		set[normalizeReaction(symbol)] = struct{}{}
	}

	return set
}

// IsStandardReaction reports whether users can react with emoji in a chat
// that keeps the default reaction settings. Emoji presentation selectors
// are ignored.
func IsStandardReaction(emoji string) bool {
	_, ok := standardReactions[normalizeReaction(emoji)]
	return ok
}

func normalizeReaction(emoji string) string {
	return strings.TrimSpace(strings.ReplaceAll(emoji, "\ufe0f", ""))
}
