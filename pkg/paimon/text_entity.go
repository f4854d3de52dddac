package paimon

import (
	"fmt"
	"net/url"
	"unicode/utf8"
)

// TextEntityType identifies one formatting class.
type TextEntityType string

const (
	// TextEntityTypeBold renders bold text.
	TextEntityTypeBold TextEntityType = "bold"
	// TextEntityTypeItalic renders italic text.
	TextEntityTypeItalic TextEntityType = "italic"
	// TextEntityTypeCode renders inline monospace text.
	TextEntityTypeCode TextEntityType = "code"
	// TextEntityTypePre renders a preformatted block.
	TextEntityTypePre TextEntityType = "pre"
	// TextEntityTypeTextURL links the range to URL.
	TextEntityTypeTextURL TextEntityType = "text_url"
	// TextEntityTypeBlockquote renders a quotation block.
	TextEntityTypeBlockquote TextEntityType = "blockquote"
)

// TextEntity marks a formatted range of a message text.
//
// Offset and Length count Unicode code points; drivers convert them to the
// unit their platform expects.
type TextEntity struct {
	Type   TextEntityType
	Offset int
	Length int
	// URL is the link target of TextEntityTypeTextURL.
	URL string
}

// ValidateTextEntities checks that every entity is well formed and lies
// within text.
func ValidateTextEntities(text string, entities []TextEntity) error {
	textLength := utf8.RuneCountInString(text)
	for index, entity := range entities {
		switch entity.Type {
		case TextEntityTypeBold, TextEntityTypeItalic, TextEntityTypeCode,
			TextEntityTypePre, TextEntityTypeBlockquote:
		case TextEntityTypeTextURL:
			parsed, err := url.Parse(entity.URL)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("entity[%d]: invalid url %q", index, entity.URL)
			}
		case "":
			return fmt.Errorf("entity[%d]: missing type", index)
		default:
			return fmt.Errorf("entity[%d]: unsupported type %q", index, entity.Type)
		}
		if entity.Offset < 0 {
			return fmt.Errorf("entity[%d]: negative offset %d", index, entity.Offset)
		}
		if entity.Length <= 0 {
			return fmt.Errorf("entity[%d]: non-positive length %d", index, entity.Length)
		}
		if entity.Offset+entity.Length > textLength {
			return fmt.Errorf("entity[%d]: range %d+%d exceeds text length %d",
				index, entity.Offset, entity.Length, textLength)
		}
	}

	return nil
}
