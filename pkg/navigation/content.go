package navigation

import "fmt"

// Content is one renderable page. The engine never inspects it.
type Content struct {
	Title    string
	Body     string
	Fields   []Field
	Color    int
	ImageURL string
}

// Field is an auxiliary name/value block rendered under the body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// ContentProvider returns the content of one page, relative to its bookmark.
//
// Providers must be pure and fast: they run on the event-processing path.
// Returning (nil, nil) means the page is out of range.
type ContentProvider func(page int) (*Content, error)

// StaticPages returns a provider serving a fixed list of pages.
func StaticPages(pages ...Content) ContentProvider {
	return func(page int) (*Content, error) {
		if page < 0 || page >= len(pages) {
			return nil, nil
		}
		content := pages[page]
		return &content, nil
	}
}

// TextPages returns a provider serving one page per body with a shared title.
func TextPages(title string, bodies []string) ContentProvider {
	pages := make([]Content, 0, len(bodies))
	for _, body := range bodies {
		pages = append(pages, Content{Title: title, Body: body})
	}

	return StaticPages(pages...)
}

// Bookmark is a named, independently paged section of a session.
type Bookmark struct {
	// Name identifies the bookmark for jumps and start selection.
	Name string
	// Symbol is the control symbol jumping to this bookmark. Empty hides it.
	Symbol string
	// Provider serves the bookmark pages.
	Provider ContentProvider
	// PageCount is the known number of pages. Zero means unknown; the
	// session probes the provider once to discover it.
	PageCount int
}

func (b Bookmark) validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidBookmark)
	}
	if b.Provider == nil {
		return fmt.Errorf("%w %q: missing provider", ErrInvalidBookmark, b.Name)
	}
	if b.PageCount < 0 {
		return fmt.Errorf("%w %q: negative page count %d", ErrInvalidBookmark, b.Name, b.PageCount)
	}

	return nil
}

// Page is the rendered state of a session: content plus its position.
type Page struct {
	Content  Content
	Bookmark string
	// Relative is the cursor inside Bookmark.
	Relative int
	// Absolute is the page number across all bookmarks.
	Absolute int
	// Total is the sum of every bookmark page count.
	Total int
}

// Footer formats the positional footer of the page.
func (p Page) Footer() string {
	return FormatFooter(p.Absolute, p.Total)
}

// FormatFooter renders a zero-based absolute page as "page x / y".
func FormatFooter(absolute int, total int) string {
	return fmt.Sprintf("page %d / %d", absolute+1, total)
}
