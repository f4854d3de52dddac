package ask

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ex-paimon/pkg/llm"
	"ex-paimon/pkg/llm/config"
	"ex-paimon/pkg/paimon"
	"ex-paimon/pkg/paimon/paimontest"
)

func testAgent() config.Agent {
	return config.Agent{
		Provider:             "main",
		Model:                "paimon-1",
		SystemPromptTemplate: "You are Paimon. Answer {{.ActorName}} on {{.DateUTC}}.",
		MaxOutputTokens:      256,
		RequestTimeout:       time.Second,
	}
}

type fixture struct {
	module    *Module
	navigator *paimontest.Navigator
	sink      *paimontest.Sink
	provider  *stubProvider
}

func newFixture(t *testing.T, provider *stubProvider) *fixture {
	t.Helper()

	registry, err := llm.NewRegistry(map[string]paimon.LLMProvider{"main": provider})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	navigator := &paimontest.Navigator{}
	sink := &paimontest.Sink{}
	module := New(testAgent(), WithNow(func() time.Time {
		return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	}))
	services := paimontest.NewServices(map[string]any{
		paimon.ServiceNavigator:           navigator,
		paimon.ServiceSinkDispatcher:      sink,
		paimon.ServiceLLMProviderRegistry: registry,
	})
	if err := module.OnRegister(context.Background(), paimontest.Runtime{Registry: services}); err != nil {
		t.Fatalf("OnRegister failed: %v", err)
	}

	return &fixture{module: module, navigator: navigator, sink: sink, provider: provider}
}

func TestAskOpensSessionOnAnswer(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("Paimon knows everything. ", 16)
	provider := &stubProvider{answer: strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n")}
	f := newFixture(t, provider)

	event := paimontest.CommandEvent(commandName, "where is   Mondstadt?")
	if err := f.module.handleCommand(context.Background(), event); err != nil {
		t.Fatalf("handleCommand failed: %v", err)
	}

	request := provider.last()
	if request.Model != "paimon-1" || request.MaxOutputTokens != 256 {
		t.Fatalf("request = %+v", request)
	}
	if len(request.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(request.Messages))
	}
	if request.Messages[0].Content != "You are Paimon. Answer Traveler on 2026-10-19." {
		t.Fatalf("system prompt = %q", request.Messages[0].Content)
	}
	if request.Messages[1].Role != paimon.LLMMessageRoleUser || request.Messages[1].Content != "where is   Mondstadt?" {
		t.Fatalf("user message = %+v", request.Messages[1])
	}

	navigate, ok := f.navigator.Last()
	if !ok {
		t.Fatal("expected a navigate request")
	}
	pages, err := paimontest.Pages(navigate)
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if pages[0].Title != "where is Mondstadt?" {
		t.Fatalf("title = %q", pages[0].Title)
	}
	if strings.Count(pages[0].Body, "\n\n") != 1 || strings.Contains(pages[1].Body, "\n\n") {
		t.Fatalf("paragraphs split unexpectedly: %q / %q", pages[0].Body, pages[1].Body)
	}
	if len(f.sink.Sends()) != 0 {
		t.Fatalf("unexpected replies: %+v", f.sink.Sends())
	}
}

func TestAskReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		question  string
		provider  *stubProvider
		wantReply string
	}{
		{
			name:      "empty question",
			provider:  &stubProvider{answer: "unused"},
			wantReply: "Ask me something: /ask <question>",
		},
		{
			name:      "provider failure",
			question:  "hello",
			provider:  &stubProvider{err: errors.New("upstream unavailable")},
			wantReply: "Paimon couldn't come up with an answer right now. Try again later!",
		},
		{
			name:      "blank answer",
			question:  "hello",
			provider:  &stubProvider{answer: " \n\n "},
			wantReply: "Paimon has nothing to say about that.",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, testCase.provider)
			if err := f.module.handleCommand(context.Background(), paimontest.CommandEvent(commandName, testCase.question)); err != nil {
				t.Fatalf("handleCommand failed: %v", err)
			}
			sends := f.sink.Sends()
			if len(sends) != 1 || sends[0].Text != testCase.wantReply {
				t.Fatalf("sends = %+v, want %q", sends, testCase.wantReply)
			}
			if len(f.navigator.Requests()) != 0 {
				t.Fatal("unexpected session")
			}
		})
	}
}

func TestAskOnRegisterRequiresProvider(t *testing.T) {
	t.Parallel()

	registry, err := llm.NewRegistry(map[string]paimon.LLMProvider{"other": &stubProvider{}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	services := paimontest.NewServices(map[string]any{
		paimon.ServiceNavigator:           &paimontest.Navigator{},
		paimon.ServiceSinkDispatcher:      &paimontest.Sink{},
		paimon.ServiceLLMProviderRegistry: registry,
	})
	err = New(testAgent()).OnRegister(context.Background(), paimontest.Runtime{Registry: services})
	if err == nil || !strings.Contains(err.Error(), "ask resolve provider main") {
		t.Fatalf("error = %v, want provider resolution failure", err)
	}
}

func TestQuestionTitle(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 100)
	title := questionTitle(long)
	if len([]rune(title)) != titleRunes || !strings.HasSuffix(title, "…") {
		t.Fatalf("title = %q", title)
	}
	if got := questionTitle("  short\nquestion "); got != "short question" {
		t.Fatalf("title = %q", got)
	}
}

type stubProvider struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []paimon.LLMGenerateRequest
}

func (p *stubProvider) Generate(_ context.Context, request paimon.LLMGenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	return p.answer, p.err
}

func (p *stubProvider) last() paimon.LLMGenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.requests) == 0 {
		return paimon.LLMGenerateRequest{}
	}
	return p.requests[len(p.requests)-1]
}

func TestAskSubscriptionOutlivesGeneration(t *testing.T) {
	t.Parallel()

	spec := New(testAgent()).Spec()
	if got := spec.Handlers[0].Subscription.HandlerTimeout; got != time.Second+replyGrace {
		t.Fatalf("handler timeout = %s, want %s", got, time.Second+replyGrace)
	}
}
