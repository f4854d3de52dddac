package gamedata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmbeddedLoads(t *testing.T) {
	t.Parallel()

	store, err := Embedded()
	if err != nil {
		t.Fatalf("embedded failed: %v", err)
	}

	characters := store.Characters()
	if len(characters) == 0 {
		t.Fatal("expected embedded characters")
	}
	amber, ok := store.Character("amber")
	if !ok {
		t.Fatal("expected amber")
	}
	if amber.Meta.Element != "Pyro" || len(amber.Skills) != 1 {
		t.Fatalf("amber = %s with %d skill sets, want Pyro with 1", amber.Meta.Element, len(amber.Skills))
	}
	if got := amber.Elements(); len(got) != 1 || got[0] != "Pyro" {
		t.Fatalf("elements = %v, want [Pyro]", got)
	}
	if len(store.Events()) == 0 {
		t.Fatal("expected embedded events")
	}
	if len(store.Articles("en-us")) == 0 {
		t.Fatal("expected embedded en-us articles")
	}
	if got := strings.Join(store.Languages(), ","); got != "en-us,de-de" {
		t.Fatalf("languages = %s, want en-us,de-de", got)
	}
	if store.EmojiWithName("Pyro") != "🔥 Pyro" {
		t.Fatalf("emoji with name = %q", store.EmojiWithName("Pyro"))
	}
	if store.Emoji("Unknown Kind") != "Unknown Kind" || store.Emoji("") != "Unknown" {
		t.Fatalf("emoji fallbacks = %q / %q", store.Emoji("Unknown Kind"), store.Emoji(""))
	}
}

func TestLoadLayersSections(t *testing.T) {
	t.Parallel()

	store, err := Load(
		[]byte("characters:\n  - name: Lisa\n  - name: Noelle\nemojis:\n  Electro: E\n"),
		[]byte("characters:\n  - name: Xiangling\nevents:\n  - name: Reset\n"),
		[]byte("emojis: {}\n"),
	)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := store.Characters(); len(got) != 1 || got[0].Name != "Xiangling" {
		t.Fatalf("characters = %+v, want the later section only", got)
	}
	if len(store.Events()) != 1 {
		t.Fatalf("events len = %d, want 1", len(store.Events()))
	}
	if store.Emoji("Electro") != "E" {
		t.Fatalf("emoji = %q, want the empty section to keep E", store.Emoji("Electro"))
	}
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "malformed yaml", raw: "characters: [", wantErr: "unmarshal"},
		{name: "unnamed character", raw: "characters:\n  - star: 5\n", wantErr: "missing name"},
		{name: "article without id", raw: "articles:\n  - subject: x\n", wantErr: "missing id"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load([]byte(testCase.raw))
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErr)
			}
		})
	}
}

func TestLoadFileOverridesEmbedded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(path, []byte("articles:\n  - id: \"1\"\n    subject: Local\n"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file failed: %v", err)
	}
	if article, ok := store.Article("1"); !ok || article.Subject != "Local" {
		t.Fatalf("article = %+v, %v", article, ok)
	}
	if _, ok := store.Character("Amber"); !ok {
		t.Fatal("expected embedded characters to survive the override")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestFindFuzzy(t *testing.T) {
	t.Parallel()

	candidates := []string{"Amber", "Kaeya", "Traveler", "Kamisato Ayaka", "Raiden Shogun"}
	tests := []struct {
		name  string
		query string
		want  string
		found bool
	}{
		{name: "exact", query: "Kaeya", want: "Kaeya", found: true},
		{name: "case and spacing", query: "  kamisato   AYAKA ", want: "Kamisato Ayaka", found: true},
		{name: "accents", query: "Ámber", want: "Amber", found: true},
		{name: "prefix", query: "trav", want: "Traveler", found: true},
		{name: "substring", query: "shogun", want: "Raiden Shogun", found: true},
		{name: "typo", query: "Kaeye", want: "Kaeya", found: true},
		{name: "too far", query: "Zhongli", found: false},
		{name: "empty", query: "  ", found: false},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, found := FindFuzzy(candidates, testCase.query)
			if found != testCase.found || got != testCase.want {
				t.Fatalf("FindFuzzy(%q) = (%q, %v), want (%q, %v)",
					testCase.query, got, found, testCase.want, testCase.found)
			}
		})
	}
}

func TestEventSchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		event    Event
		ongoing  bool
		upcoming bool
	}{
		{
			name:    "running window",
			event:   Event{Start: "2026-10-01 10:00:00", End: "2026-10-28 23:59:59", Timezone: "+8"},
			ongoing: true,
		},
		{
			name:  "finished",
			event: Event{Start: "2026-09-01 10:00:00", End: "2026-10-01 00:00:00"},
		},
		{
			name:     "not started",
			event:    Event{Start: "2026-10-22 06:00:00", Timezone: "+8"},
			upcoming: true,
		},
		{
			name:    "daily without end",
			event:   Event{Start: "2025-01-01 00:00:00", Reminder: "daily"},
			ongoing: true,
		},
		{
			name:  "started once without end",
			event: Event{Start: "2025-01-01 00:00:00"},
		},
		{
			name:     "no start date",
			event:    Event{Name: "Unlock"},
			upcoming: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.event.Ongoing(now); got != testCase.ongoing {
				t.Fatalf("ongoing = %v, want %v", got, testCase.ongoing)
			}
			if got := testCase.event.Upcoming(now); got != testCase.upcoming {
				t.Fatalf("upcoming = %v, want %v", got, testCase.upcoming)
			}
		})
	}
}

func TestEventTimezone(t *testing.T) {
	t.Parallel()

	start, ok := Event{Start: "2026-10-22 06:00:00", Timezone: "+8"}.StartAt()
	if !ok {
		t.Fatal("expected start")
	}
	if want := time.Date(2026, 10, 21, 22, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start.UTC(), want)
	}
	if _, ok := (Event{Start: "22/10/2026"}).StartAt(); ok {
		t.Fatal("expected malformed start to be ignored")
	}
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	if got := FormatCount(120000); got != "120,000" {
		t.Fatalf("FormatCount = %q", got)
	}
	if got := FormatStat(0.06); got != "6.0%" {
		t.Fatalf("FormatStat(0.06) = %q", got)
	}
	if got := FormatStat(613); got != "613" {
		t.Fatalf("FormatStat(613) = %q", got)
	}
	cost := Cost{Mora: 20000, Items: []CostItem{{Name: "Firm Arrowhead", Count: 3}}}
	if got := FormatCost(cost); got != "20,000 Mora\n3x Firm Arrowhead" {
		t.Fatalf("FormatCost = %q", got)
	}
	if got := FormatCost(Cost{}); got != "None" {
		t.Fatalf("FormatCost(empty) = %q", got)
	}
}

func TestArticleParagraphs(t *testing.T) {
	t.Parallel()

	article := Article{Content: "one\n\n  \n\ntwo\nstill two\n\n"}
	got := article.Paragraphs()
	if len(got) != 2 || got[1] != "two\nstill two" {
		t.Fatalf("paragraphs = %q", got)
	}
}
