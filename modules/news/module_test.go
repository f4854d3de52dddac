package news

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/paimon"
	"ex-paimon/pkg/paimon/paimontest"
)

type fixture struct {
	module    *Module
	navigator *paimontest.Navigator
	sink      *paimontest.Sink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := gamedata.Embedded()
	if err != nil {
		t.Fatalf("load game data: %v", err)
	}
	navigator := &paimontest.Navigator{}
	sink := &paimontest.Sink{}
	module := New(store)
	services := paimontest.NewServices(map[string]any{
		paimon.ServiceNavigator:      navigator,
		paimon.ServiceSinkDispatcher: sink,
	})
	if err := module.OnRegister(context.Background(), paimontest.Runtime{Registry: services}); err != nil {
		t.Fatalf("OnRegister failed: %v", err)
	}

	return &fixture{module: module, navigator: navigator, sink: sink}
}

func TestSplitArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value        string
		wantID       string
		wantLanguage string
	}{
		{value: ""},
		{value: "40011111", wantID: "40011111"},
		{value: "40011111 de-de", wantID: "40011111", wantLanguage: "de-de"},
		{value: "german", wantLanguage: "german"},
		{value: "german 40033333", wantID: "40033333", wantLanguage: "german"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.value, func(t *testing.T) {
			t.Parallel()

			id, language := splitArguments(testCase.value)
			if id != testCase.wantID || language != testCase.wantLanguage {
				t.Fatalf("splitArguments(%q) = (%q, %q), want (%q, %q)",
					testCase.value, id, language, testCase.wantID, testCase.wantLanguage)
			}
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		query string
		want  string
	}{
		{query: "", want: "en-us"},
		{query: "german", want: "de-de"},
		{query: "de", want: "de-de"},
		{query: "English", want: "en-us"},
		{query: "zzzzzzzz", want: "en-us"},
	}
	for _, testCase := range tests {
		if got := f.module.resolveLanguage(testCase.query); got != testCase.want {
			t.Fatalf("resolveLanguage(%q) = %q, want %q", testCase.query, got, testCase.want)
		}
	}
}

func TestListArticles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.module.handleCommand(context.Background(), paimontest.CommandEvent(commandName, "")); err != nil {
		t.Fatalf("handleCommand failed: %v", err)
	}

	sends := f.sink.Sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	text := sends[0].Text
	if !strings.HasPrefix(text, "Most recent English news articles:") {
		t.Fatalf("text = %q", text)
	}
	if !strings.Contains(text, "40011111: Version 6.1 Update Maintenance Preview") {
		t.Fatalf("missing article line in %q", text)
	}
	if strings.Contains(text, "40033333") {
		t.Fatalf("german article listed in english list: %q", text)
	}
	if sends[0].ReplyToMessageID != "100" {
		t.Fatalf("reply to = %q, want 100", sends[0].ReplyToMessageID)
	}

	var links int
	for _, entity := range sends[0].Entities {
		if entity.Type == paimon.TextEntityTypeTextURL {
			links++
			if got := string([]rune(text)[entity.Offset : entity.Offset+entity.Length]); !strings.HasPrefix(entity.URL, "https://") || got == "" {
				t.Fatalf("link entity %+v covers %q", entity, got)
			}
		}
	}
	if links != 2 {
		t.Fatalf("links = %d, want 2", links)
	}
	if len(f.navigator.Requests()) != 0 {
		t.Fatal("list must not open a session")
	}
}

func TestOpenArticle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.module.handleCommand(context.Background(), paimontest.CommandEvent(commandName, "40011111")); err != nil {
		t.Fatalf("handleCommand failed: %v", err)
	}

	request, ok := f.navigator.Last()
	if !ok {
		t.Fatal("expected a navigate request")
	}
	if len(request.Bookmarks) != 1 || request.Bookmarks[0].Symbol != "" {
		t.Fatalf("bookmarks = %+v, want one hidden bookmark", request.Bookmarks)
	}
	pages, err := paimontest.Pages(request)
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != request.Bookmarks[0].PageCount {
		t.Fatalf("pages = %d, page count = %d", len(pages), request.Bookmarks[0].PageCount)
	}
	if pages[0].Title != "Version 6.1 Update Maintenance Preview" {
		t.Fatalf("title = %q", pages[0].Title)
	}
	if !strings.HasPrefix(pages[0].Body, "Dear Travelers,\n\nWe will be performing") {
		t.Fatalf("body = %q", pages[0].Body)
	}
	if len(pages[0].Fields) != 3 || pages[0].Fields[2].Value != "https://www.hoyolab.com/article/40011111" {
		t.Fatalf("fields = %+v", pages[0].Fields)
	}
}

func TestArticlePagesRespectBudget(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("word ", 80)
	article := gamedata.Article{
		ID:      "1",
		Subject: "Long",
		Content: strings.Join([]string{paragraph, paragraph, paragraph, paragraph}, "\n\n"),
	}

	pages := articlePages(article)
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	for index, page := range pages {
		if len([]rune(page.Body)) > pageBudget {
			t.Fatalf("page %d has %d runes", index, len([]rune(page.Body)))
		}
	}
	if len(pages[1].Fields) != 0 {
		t.Fatalf("details repeated on page 2: %+v", pages[1].Fields)
	}

	empty := articlePages(gamedata.Article{ID: "2", Subject: "Empty"})
	if len(empty) != 1 || empty[0].Body == "" {
		t.Fatalf("empty article pages = %+v", empty)
	}
}

func TestMissingArticle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.module.handleCommand(context.Background(), paimontest.CommandEvent(commandName, "123")); err != nil {
		t.Fatalf("handleCommand failed: %v", err)
	}

	sends := f.sink.Sends()
	if len(sends) != 1 || !strings.HasPrefix(sends[0].Text, "Couldn't find article in cache.") {
		t.Fatalf("sends = %+v", sends)
	}
	if !strings.HasSuffix(sends[0].Text, "https://www.hoyolab.com/article/123") {
		t.Fatalf("text = %q", sends[0].Text)
	}
}

func TestNavigateFailureIsReturned(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.navigator.Fail(errors.New("navigator down"))
	err := f.module.handleCommand(context.Background(), paimontest.CommandEvent(commandName, "40011111"))
	if err == nil || !strings.Contains(err.Error(), "navigator down") {
		t.Fatalf("error = %v, want navigator failure", err)
	}
}
