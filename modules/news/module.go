// Package news answers /news with cached forum articles.
package news

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ex-paimon/internal/gamedata"
	"ex-paimon/pkg/navigation"
	"ex-paimon/pkg/paimon"
)

const (
	commandName = "news"

	defaultLanguage = "en-us"
	// listBudget caps the article list message in runes.
	listBudget = 1500
	// pageBudget is the rune budget of one article page.
	pageBudget = 1000

	forumArticleURL = "https://www.hoyolab.com/article/"
)

var (
	postIDPattern = regexp.MustCompile(`^\d+`)

	languageNames = map[string]string{
		"de-de": "German",
		"en-us": "English",
		"es-es": "Spanish",
		"fr-fr": "French",
		"id-id": "Indonesian",
		"ja-jp": "Japanese",
		"ko-kr": "Korean",
		"pt-pt": "Portuguese",
		"ru-ru": "Russian",
		"th-th": "Thai",
		"vi-vn": "Vietnamese",
		"zh-cn": "Simplified Chinese",
		"zh-tw": "Traditional Chinese",
	}
)

// Module serves the news cache.
type Module struct {
	store *gamedata.Store

	navigator paimon.Navigator
	sink      paimon.SinkDispatcher
}

// New creates a news module reading from store.
func New(store *gamedata.Store) *Module {
	return &Module{store: store}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "news"
}

// Spec declares the /news command.
func (m *Module) Spec() paimon.ModuleSpec {
	return paimon.ModuleSpec{
		Handlers: []paimon.ModuleHandler{
			{
				Capability: paimon.Capability{
					Name:        "news-command-handler",
					Description: "lists cached articles and pages through one article for /news",
					Interest: paimon.InterestSet{
						Kinds:          []paimon.EventKind{paimon.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						paimon.ServiceNavigator,
						paimon.ServiceSinkDispatcher,
					},
				},
				Subscription: paimon.NewDefaultSubscriptionSpec("news-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []paimon.CommandSpec{
			{
				Name:        commandName,
				Description: "list recent news, or read one post: /news [language] [post id]",
			},
		},
	}
}

// OnRegister resolves the navigator and the outbound dispatcher.
func (m *Module) OnRegister(_ context.Context, runtime paimon.ModuleRuntime) error {
	if m.store == nil {
		return fmt.Errorf("news register: nil game data store")
	}
	navigator, err := paimon.ResolveAs[paimon.Navigator](runtime.Services(), paimon.ServiceNavigator)
	if err != nil {
		return fmt.Errorf("news resolve navigator: %w", err)
	}
	sink, err := paimon.ResolveAs[paimon.SinkDispatcher](runtime.Services(), paimon.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("news resolve outbound dispatcher: %w", err)
	}

	m.navigator = navigator
	m.sink = sink

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *paimon.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if !strings.EqualFold(event.Command.Name, commandName) {
		return nil
	}
	if m.navigator == nil || m.sink == nil {
		return fmt.Errorf("news handle command: module not registered")
	}

	id, languageQuery := splitArguments(event.Command.Value)
	language := m.resolveLanguage(languageQuery)
	if id == "" {
		return m.sendList(ctx, event, language)
	}

	article, ok := m.store.Article(id)
	if !ok {
		return m.send(ctx, event, paimon.RichText{}.
			Plain("Couldn't find article in cache. Try to see if it exists on the forum: ").
			Plain(forumArticleURL+id))
	}

	pages := articlePages(article)
	if _, err := m.navigator.Navigate(ctx, paimon.NavigateRequest{
		Source: event,
		Bookmarks: []navigation.Bookmark{{
			Name:      "article",
			Provider:  navigation.StaticPages(pages...),
			PageCount: len(pages),
		}},
		Start: navigation.StartPage(0),
	}); err != nil {
		return fmt.Errorf("news navigate article %s: %w", article.ID, err)
	}

	return nil
}

// splitArguments reads "[language] [id]" in either order: a leading number
// is the post ID.
func splitArguments(value string) (id string, language string) {
	args := strings.Fields(value)
	first, second := "", ""
	if len(args) > 0 {
		first = args[0]
	}
	if len(args) > 1 {
		second = args[1]
	}
	if postIDPattern.MatchString(first) {
		return first, second
	}

	return second, first
}

// resolveLanguage fuzzy-matches a language code or name against the
// languages in the cache, falling back to English.
func (m *Module) resolveLanguage(query string) string {
	if query == "" {
		return defaultLanguage
	}

	languages := m.store.Languages()
	candidates := make([]string, 0, len(languages)*2)
	candidates = append(candidates, languages...)
	for _, language := range languages {
		candidates = append(candidates, languageName(language))
	}

	matched, ok := gamedata.FindFuzzy(candidates, query)
	if !ok {
		return defaultLanguage
	}
	for _, language := range languages {
		if matched == languageName(language) {
			return language
		}
	}

	return matched
}

func languageName(language string) string {
	if name, ok := languageNames[strings.ToLower(language)]; ok {
		return name
	}

	return language
}

func (m *Module) sendList(ctx context.Context, event *paimon.Event, language string) error {
	articles := m.store.Articles(language)
	text := paimon.RichText{}.Bold(fmt.Sprintf("Most recent %s news articles:", languageName(language))).Plain("\n\n")
	if len(articles) == 0 {
		text = text.Plain("No articles cached yet.")
		return m.send(ctx, event, text)
	}

	lines := make([]paimon.RichText, 0, len(articles))
	length := 0
	for _, article := range articles {
		line := paimon.RichText{}.Link(article.ID, articleLink(article)).Plain(": " + article.Subject)
		added := line.Len()
		if len(lines) > 0 {
			added++
		}
		if length+added > listBudget {
			break
		}
		length += added
		lines = append(lines, line)
	}
	for index, line := range lines {
		if index > 0 {
			text = text.Plain("\n")
		}
		text = text.Append(line)
	}
	text = text.Plain("\n\n").Italic("Use /news <post id> to read a post.")

	return m.send(ctx, event, text)
}

func articleLink(article gamedata.Article) string {
	if article.Link != "" {
		return article.Link
	}

	return forumArticleURL + article.ID
}

// articlePages packs the paragraphs of an article into pages; the first
// page carries the post details.
func articlePages(article gamedata.Article) []navigation.Content {
	bodies := navigation.PartitionWith(article.Paragraphs(), pageBudget, "\n\n")
	if len(bodies) == 0 {
		bodies = []string{"This post has no text."}
	}

	pages := make([]navigation.Content, 0, len(bodies))
	for index, body := range bodies {
		page := navigation.Content{Title: article.Subject, Body: body}
		if index == 0 {
			page.ImageURL = article.Image
			if article.Author != "" {
				page.Fields = append(page.Fields, navigation.Field{Name: "Author", Value: article.Author, Inline: true})
			}
			if article.Published != "" {
				page.Fields = append(page.Fields, navigation.Field{Name: "Published", Value: article.Published, Inline: true})
			}
			page.Fields = append(page.Fields, navigation.Field{Name: "Link", Value: articleLink(article)})
		}
		pages = append(pages, page)
	}

	return pages
}

func (m *Module) send(ctx context.Context, event *paimon.Event, text paimon.RichText) error {
	target, err := paimon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("news derive outbound target: %w", err)
	}
	if _, err := m.sink.SendMessage(ctx, paimon.SendMessageRequest{
		Target:             target,
		Text:               text.Text(),
		Entities:           text.Entities(),
		ReplyToMessageID:   event.Message.ID,
		DisableLinkPreview: true,
	}); err != nil {
		return fmt.Errorf("news send reply: %w", err)
	}

	return nil
}

var (
	_ paimon.Module          = (*Module)(nil)
	_ paimon.ModuleRegistrar = (*Module)(nil)
)
