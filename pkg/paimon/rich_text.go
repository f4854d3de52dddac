package paimon

import (
	"slices"
	"unicode/utf8"
)

// RichText is message text with its formatting entities. Values are
// immutable: every method returns a new RichText and leaves the receiver
// usable, so partial texts can be measured and appended later.
//
// The zero value is empty text.
type RichText struct {
	text     string
	runes    int
	entities []TextEntity
}

// Plain appends unformatted value.
func (r RichText) Plain(value string) RichText {
	r.text += value
	r.runes += utf8.RuneCountInString(value)
	return r
}

// Styled appends value covered by style. Offset and Length of style are
// computed; empty values append nothing.
func (r RichText) Styled(value string, style TextEntity) RichText {
	if value == "" {
		return r
	}
	style.Offset = r.runes
	style.Length = utf8.RuneCountInString(value)
	r.entities = append(slices.Clip(r.entities), style)

	return r.Plain(value)
}

// Bold appends value in bold.
func (r RichText) Bold(value string) RichText {
	return r.Styled(value, TextEntity{Type: TextEntityTypeBold})
}

// Italic appends value in italics.
func (r RichText) Italic(value string) RichText {
	return r.Styled(value, TextEntity{Type: TextEntityTypeItalic})
}

// Link appends value linked to url.
func (r RichText) Link(value string, url string) RichText {
	return r.Styled(value, TextEntity{Type: TextEntityTypeTextURL, URL: url})
}

// Append concatenates other, shifting its entities past the current text.
func (r RichText) Append(other RichText) RichText {
	entities := slices.Clip(r.entities)
	for _, entity := range other.entities {
		entity.Offset += r.runes
		entities = append(entities, entity)
	}
	r.entities = entities
	r.text += other.text
	r.runes += other.runes

	return r
}

// Paragraph starts a new paragraph unless the text is still empty.
func (r RichText) Paragraph() RichText {
	if r.runes == 0 {
		return r
	}

	return r.Plain("\n\n")
}

// Len returns the length in code points, the unit entity offsets use.
func (r RichText) Len() int {
	return r.runes
}

// Text returns the plain text.
func (r RichText) Text() string {
	return r.text
}

// Entities returns a copy of the formatting entities in text order.
func (r RichText) Entities() []TextEntity {
	return slices.Clone(r.entities)
}
