package navigation

import (
	"maps"
	"slices"
	"sort"
)

// SectionKey names a section of paged content. Commands declare their keys
// as typed constants instead of passing bare strings around.
type SectionKey string

// Section is one (key, item count) pair walked by BuildSectionIndex.
type Section struct {
	Key   SectionKey
	Items int
}

// GroupMode selects where BuildSectionIndex applies its group extra.
type GroupMode int

const (
	// GroupSingle treats all sections as one group: the extra pages are
	// added once, after the last section.
	GroupSingle GroupMode = iota
	// GroupRepeated treats every section as its own group: the extra pages
	// follow each section. Keys repeated across groups keep the offset of
	// their last occurrence.
	GroupRepeated
)

// SectionIndex maps section keys to absolute page offsets.
//
// Keys keep the position of their first insertion; writing an existing key
// again replaces its offset. Jumping to a repeated key therefore lands on
// its last occurrence, which is what multi-group content relies on.
type SectionIndex struct {
	keys    []SectionKey
	offsets map[SectionKey]int
}

// Offset returns the absolute page offset of key.
func (i SectionIndex) Offset(key SectionKey) (int, bool) {
	offset, ok := i.offsets[key]
	return offset, ok
}

// Keys returns the indexed keys in insertion order.
func (i SectionIndex) Keys() []SectionKey {
	return slices.Clone(i.keys)
}

// Len returns the number of distinct keys.
func (i SectionIndex) Len() int {
	return len(i.keys)
}

func (i *SectionIndex) set(key SectionKey, offset int) {
	if i.offsets == nil {
		i.offsets = make(map[SectionKey]int)
	}
	if _, exists := i.offsets[key]; !exists {
		i.keys = append(i.keys, key)
	}
	i.offsets[key] = offset
}

// BuildSectionIndex walks sections in order from base and returns the index
// together with the final cumulative offset, which is where a trailing
// uniformly sized section (one page per item) can start.
//
// Each key is assigned the running offset, which then advances by the
// section item count. groupExtra accounts for pages every group carries
// regardless of its items and is applied according to mode.
func BuildSectionIndex(sections []Section, base int, groupExtra int, mode GroupMode) (SectionIndex, int) {
	builder := NewIndexBuilder(base)
	for _, section := range sections {
		builder.Section(section.Key, section.Items)
		if mode == GroupRepeated {
			builder.Advance(groupExtra)
		}
	}
	if mode == GroupSingle {
		builder.Advance(groupExtra)
	}

	return builder.Build()
}

// IndexBuilder assembles a SectionIndex incrementally.
type IndexBuilder struct {
	index  SectionIndex
	offset int
}

// NewIndexBuilder starts a builder whose running offset is base.
func NewIndexBuilder(base int) *IndexBuilder {
	return &IndexBuilder{offset: base}
}

// Pin records key at a fixed offset without moving the running offset.
// It is meant for prefix pages below base.
func (b *IndexBuilder) Pin(key SectionKey, offset int) *IndexBuilder {
	b.index.set(key, offset)
	return b
}

// Section records key at the running offset and advances it by items.
// Negative counts are treated as zero.
func (b *IndexBuilder) Section(key SectionKey, items int) *IndexBuilder {
	b.index.set(key, b.offset)
	b.Advance(items)
	return b
}

// Merge copies the keys of index in their insertion order, overwriting
// offsets already recorded. The running offset does not move.
func (b *IndexBuilder) Merge(index SectionIndex) *IndexBuilder {
	for _, key := range index.keys {
		b.index.set(key, index.offsets[key])
	}
	return b
}

// Advance moves the running offset forward without recording a key.
func (b *IndexBuilder) Advance(pages int) *IndexBuilder {
	if pages > 0 {
		b.offset += pages
	}
	return b
}

// Offset returns the running offset.
func (b *IndexBuilder) Offset() int {
	return b.offset
}

// Build returns a snapshot of the index and the running offset.
func (b *IndexBuilder) Build() (SectionIndex, int) {
	return SectionIndex{
		keys:    slices.Clone(b.index.keys),
		offsets: maps.Clone(b.index.offsets),
	}, b.offset
}

// BookmarksFromIndex splits one flat provider of total pages into bookmarks,
// one per indexed key.
//
// Each key owns the pages from its offset up to the next larger offset. When
// several keys share an offset the one inserted last owns the range, and
// keys that end up owning no page are skipped, so every page stays reachable.
// Pages below the smallest offset are not covered; pin a key at zero to
// include them. symbols maps keys to control symbols; missing keys are hidden.
func BookmarksFromIndex(
	index SectionIndex,
	total int,
	provider ContentProvider,
	symbols map[SectionKey]string,
) []Bookmark {
	type entry struct {
		key    SectionKey
		offset int
	}

	entries := make([]entry, 0, len(index.keys))
	for _, key := range index.keys {
		entries = append(entries, entry{key: key, offset: index.offsets[key]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})

	bookmarks := make([]Bookmark, 0, len(entries))
	for position, current := range entries {
		end := total
		if position+1 < len(entries) {
			end = min(entries[position+1].offset, total)
		}
		start := current.offset
		count := end - start
		if start < 0 || count <= 0 {
			continue
		}

		bookmarks = append(bookmarks, Bookmark{
			Name:      string(current.key),
			Symbol:    symbols[current.key],
			Provider:  shiftProvider(provider, start, count),
			PageCount: count,
		})
	}

	return bookmarks
}

func shiftProvider(provider ContentProvider, start int, count int) ContentProvider {
	return func(page int) (*Content, error) {
		if page < 0 || page >= count {
			return nil, nil
		}
		return provider(start + page)
	}
}
