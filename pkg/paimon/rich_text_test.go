package paimon

import (
	"reflect"
	"testing"
)

func TestRichTextTracksCodePointOffsets(t *testing.T) {
	t.Parallel()

	text := RichText{}.
		Bold("🌙 Lantern Rite").
		Paragraph().
		Plain("Starts ").
		Italic("soon").
		Plain(" · ").
		Link("read", "https://www.hoyolab.com/article/1")

	if got, want := text.Text(), "🌙 Lantern Rite\n\nStarts soon · read"; got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
	want := []TextEntity{
		{Type: TextEntityTypeBold, Offset: 0, Length: 14},
		{Type: TextEntityTypeItalic, Offset: 23, Length: 4},
		{Type: TextEntityTypeTextURL, Offset: 30, Length: 4, URL: "https://www.hoyolab.com/article/1"},
	}
	if got := text.Entities(); !reflect.DeepEqual(got, want) {
		t.Fatalf("entities = %+v, want %+v", got, want)
	}
	if text.Len() != 34 {
		t.Fatalf("len = %d, want 34", text.Len())
	}
	if err := ValidateTextEntities(text.Text(), text.Entities()); err != nil {
		t.Fatalf("entities do not validate: %v", err)
	}
}

func TestRichTextAppendShiftsEntities(t *testing.T) {
	t.Parallel()

	header := RichText{}.Bold("News").Plain("\n")
	line := RichText{}.Link("4001", "https://example.com/4001").Plain(": Patch notes")

	combined := header.Append(line).Append(line)
	entities := combined.Entities()
	if len(entities) != 3 {
		t.Fatalf("entities = %+v, want 3", entities)
	}
	if entities[1].Offset != 5 || entities[2].Offset != 5+line.Len() {
		t.Fatalf("link offsets = %d, %d", entities[1].Offset, entities[2].Offset)
	}
	if line.Entities()[0].Offset != 0 {
		t.Fatalf("append mutated its argument: %+v", line.Entities())
	}
}

func TestRichTextValuesDoNotShareEntities(t *testing.T) {
	t.Parallel()

	base := RichText{}.Bold("a").Bold("b")
	left := base.Italic("left")
	right := base.Link("right", "https://example.com")

	if got := left.Entities()[2].Type; got != TextEntityTypeItalic {
		t.Fatalf("left third entity = %s, want italic", got)
	}
	if got := right.Entities()[2].Type; got != TextEntityTypeTextURL {
		t.Fatalf("right third entity = %s, want text_url", got)
	}
	if len(base.Entities()) != 2 {
		t.Fatalf("base entities = %+v, want 2", base.Entities())
	}
	if (RichText{}).Paragraph().Len() != 0 {
		t.Fatal("paragraph on empty text should add nothing")
	}
	empty := RichText{}.Bold("")
	if empty.Len() != 0 || len(empty.Entities()) != 0 {
		t.Fatal("empty styled value should add nothing")
	}
}
