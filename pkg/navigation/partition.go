package navigation

import (
	"strings"
	"unicode/utf8"
)

// Separator joins chunks that share a page.
const Separator = "\n"

// Partition packs ordered text chunks into pages of at most budget runes,
// joining chunks on one page with Separator.
//
// Chunks are atomic: a chunk longer than budget is never split and ends up
// alone on its page. Order is preserved and empty input yields no pages.
func Partition(chunks []string, budget int) []string {
	return PartitionWith(chunks, budget, Separator)
}

// PartitionWith is Partition with a caller-chosen separator.
//
// Pages are trimmed of surrounding whitespace; a page that trims to nothing
// is dropped.
func PartitionWith(chunks []string, budget int, separator string) []string {
	if len(chunks) == 0 {
		return nil
	}

	separatorLength := utf8.RuneCountInString(separator)
	pages := make([]string, 0, 1)

	var (
		page    strings.Builder
		length  int
		pending int
	)
	flush := func() {
		if trimmed := strings.TrimSpace(page.String()); trimmed != "" {
			pages = append(pages, trimmed)
		}
		page.Reset()
		length = 0
		pending = 0
	}

	for _, chunk := range chunks {
		chunkLength := utf8.RuneCountInString(chunk)
		if pending > 0 && length+separatorLength+chunkLength > budget {
			flush()
		}
		if pending > 0 {
			page.WriteString(separator)
			length += separatorLength
		}
		page.WriteString(chunk)
		length += chunkLength
		pending++
	}
	if pending > 0 {
		flush()
	}

	return pages
}
