package navigator

import (
	"strings"

	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

// imageLinkLabel is the visible text of the image link.
const imageLinkLabel = "🖼 Image"

// renderPage lays out page as message text: bold title, body, fields, image
// link, footer and, while the session is live, the control hint.
func renderPage(page navigation.Page, hint []string) (string, []paimon.TextEntity) {
	var text paimon.RichText
	content := page.Content

	if title := strings.TrimSpace(content.Title); title != "" {
		text = text.Bold(title)
	}
	if body := strings.TrimSpace(content.Body); body != "" {
		text = text.Paragraph().Plain(body)
	}
	for index, field := range content.Fields {
		name := strings.TrimSpace(field.Name)
		value := strings.TrimSpace(field.Value)
		if name == "" && value == "" {
			continue
		}
		if index > 0 && field.Inline && content.Fields[index-1].Inline {
			text = text.Plain("\n")
		} else {
			text = text.Paragraph()
		}
		if name != "" {
			text = text.Bold(name)
			if field.Inline {
				text = text.Plain(": ")
			} else {
				text = text.Plain("\n")
			}
		}
		text = text.Plain(value)
	}
	if content.ImageURL != "" {
		text = text.Paragraph().Link(imageLinkLabel, content.ImageURL)
	}

	text = text.Paragraph().Italic(page.Footer())
	if len(hint) > 0 {
		text = text.Plain("\n" + strings.Join(hint, " · "))
	}

	return text.Text(), text.Entities()
}
