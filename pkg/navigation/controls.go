package navigation

import (
	"fmt"
	"strings"
)

// Controls maps control symbols to navigation actions. An empty symbol
// disables its action. Bookmark symbols extend the set with jumps.
type Controls struct {
	First string `json:"first"`
	Prev  string `json:"prev"`
	Next  string `json:"next"`
	Last  string `json:"last"`
	Close string `json:"close"`
}

// DefaultControls returns a control set made of reactions every Telegram
// chat accepts. Media-style arrows are not in that set.
func DefaultControls() Controls {
	return Controls{
		First: "🙈",
		Prev:  "👎",
		Next:  "👍",
		Last:  "🏆",
		Close: "😴",
	}
}

// Validate rejects control sets that map one symbol to two actions.
func (c Controls) Validate() error {
	seen := make(map[string]string, 5)
	for _, binding := range c.bindings() {
		if binding.symbol == "" {
			continue
		}
		if previous, exists := seen[binding.symbol]; exists {
			return fmt.Errorf("%w: symbol %q bound to %s and %s",
				ErrInvalidControls, binding.symbol, previous, binding.action)
		}
		seen[binding.symbol] = binding.action.String()
	}

	return nil
}

// Resolve maps symbol to an event. Bookmark symbols resolve to jumps.
func (c Controls) Resolve(symbol string, bookmarks []Bookmark) (Event, bool) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return Event{}, false
	}
	for _, binding := range c.bindings() {
		if binding.symbol != "" && normalizeSymbol(binding.symbol) == symbol {
			return Event{Action: binding.action}, true
		}
	}
	for _, bookmark := range bookmarks {
		if bookmark.Symbol != "" && normalizeSymbol(bookmark.Symbol) == symbol {
			return Event{Action: ActionJump, Bookmark: bookmark.Name}, true
		}
	}

	return Event{}, false
}

// Hint lists the visible control symbols in display order: movement,
// bookmark jumps, then close.
func (c Controls) Hint(bookmarks []Bookmark) []string {
	symbols := make([]string, 0, 5+len(bookmarks))
	for _, symbol := range []string{c.First, c.Prev, c.Next, c.Last} {
		if symbol != "" {
			symbols = append(symbols, symbol)
		}
	}
	for _, bookmark := range bookmarks {
		if bookmark.Symbol != "" {
			symbols = append(symbols, bookmark.Symbol)
		}
	}
	if c.Close != "" {
		symbols = append(symbols, c.Close)
	}

	return symbols
}

// Legend is Hint with a label after each symbol, such as "👍 next". A
// bookmark is labeled with its name past the last colon.
func (c Controls) Legend(bookmarks []Bookmark) []string {
	entries := make([]string, 0, 5+len(bookmarks))
	for _, binding := range c.bindings()[:4] {
		if binding.symbol != "" {
			entries = append(entries, binding.symbol+" "+binding.action.String())
		}
	}
	for _, bookmark := range bookmarks {
		if bookmark.Symbol != "" {
			label := bookmark.Name[strings.LastIndex(bookmark.Name, ":")+1:]
			entries = append(entries, bookmark.Symbol+" "+label)
		}
	}
	if c.Close != "" {
		entries = append(entries, c.Close+" "+ActionClose.String())
	}

	return entries
}

type binding struct {
	symbol string
	action Action
}

func (c Controls) bindings() []binding {
	return []binding{
		{symbol: c.First, action: ActionFirst},
		{symbol: c.Prev, action: ActionPrev},
		{symbol: c.Next, action: ActionNext},
		{symbol: c.Last, action: ActionLast},
		{symbol: c.Close, action: ActionClose},
	}
}

// normalizeSymbol drops emoji presentation selectors, which platforms add
// or strip inconsistently.
func normalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ReplaceAll(symbol, "\ufe0f", ""))
}
