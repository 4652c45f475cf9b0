package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/heartbeathq/heartbeat/internal/analysis"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

type stubSummarizer struct {
	calls   int
	prompts []string
	errs    []error
	content string
}

func (s *stubSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if s.content != "" {
		return s.content, nil
	}
	return "<h2>Summary</h2><p>Team is doing well.</p>", nil
}

func analysisFixture(t *testing.T, emails []string, texts []string) (*AnalysisService, *stubSummarizer, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	pulses := NewPulseService(st)
	responses := NewResponseService(st)
	ctx := context.Background()

	p, err := pulses.Create(ctx, "1", "retro", emails, nil)
	if err != nil {
		t.Fatalf("create pulse: %v", err)
	}
	for i, text := range texts {
		if _, err := responses.Submit(ctx, p.ID, "tok-"+emails[i%len(emails)], text); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	sum := &stubSummarizer{}
	svc := NewAnalysisService(st, sum)
	svc.policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return svc, sum, st, p.ID
}

func TestAnalyzeStoresSummaryAndPurges(t *testing.T) {
	svc, _, st, id := analysisFixture(t,
		[]string{"a@x.com", "b@x.com"},
		[]string{"good sprint", "a bit stressed"})
	ctx := context.Background()

	res, err := svc.Analyze(ctx, id)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.IsExisting {
		t.Fatal("fresh analysis reported as existing")
	}
	if res.ResponseCount != 2 {
		t.Fatalf("count = %d, want 2", res.ResponseCount)
	}

	p, _ := st.GetPulse(ctx, id)
	if !p.HasAnalysis || p.AnalysisContent == "" {
		t.Fatalf("pulse not marked analyzed: %+v", p)
	}
	if p.ResponseCount != 2 {
		t.Fatalf("stored count = %d, want 2 after purge", p.ResponseCount)
	}
	left, _ := st.ListResponses(ctx, id)
	if len(left) != 0 {
		t.Fatalf("raw responses survived analysis: %d", len(left))
	}
	if _, err := st.GetAnalysis(ctx, id); err != nil {
		t.Fatalf("analysis row missing: %v", err)
	}
}

func TestAnalyzeRequiresEveryResponse(t *testing.T) {
	svc, sum, _, id := analysisFixture(t,
		[]string{"a@x.com", "b@x.com", "c@x.com"},
		[]string{"only one reply"})

	if _, err := svc.Analyze(context.Background(), id); !errors.Is(err, ErrNotAllResponses) {
		t.Fatalf("expected ErrNotAllResponses, got %v", err)
	}
	if sum.calls != 0 {
		t.Fatal("provider called despite failed precondition")
	}
}

func TestAnalyzeNoResponses(t *testing.T) {
	svc, _, _, id := analysisFixture(t, []string{"a@x.com"}, nil)
	if _, err := svc.Analyze(context.Background(), id); !errors.Is(err, ErrNoResponses) {
		t.Fatalf("expected ErrNoResponses, got %v", err)
	}
}

func TestAnalyzeReturnsExisting(t *testing.T) {
	svc, sum, st, id := analysisFixture(t,
		[]string{"a@x.com"},
		[]string{"fine"})
	ctx := context.Background()

	if _, err := svc.Analyze(ctx, id); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	res, err := svc.Analyze(ctx, id)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if !res.IsExisting {
		t.Fatal("second analyze did not return the stored summary")
	}
	if sum.calls != 1 {
		t.Fatalf("provider called %d times, want 1", sum.calls)
	}
	// The stored participation survives repeated analyze calls.
	p, _ := st.GetPulse(ctx, id)
	if p.ResponseCount != 1 {
		t.Fatalf("count = %d, want 1", p.ResponseCount)
	}
}

func TestAnalyzeRetriesRateLimitWithHint(t *testing.T) {
	svc, sum, _, id := analysisFixture(t,
		[]string{"a@x.com"},
		[]string{"ok"})

	var waited time.Duration
	svc.policy.Sleep = func(_ context.Context, d time.Duration) error {
		waited += d
		return nil
	}
	sum.errs = []error{&analysis.RateLimitError{RetryAfter: 3 * time.Second}}

	res, err := svc.Analyze(context.Background(), id)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Analysis == nil {
		t.Fatal("no analysis after retry")
	}
	if sum.calls != 2 {
		t.Fatalf("provider called %d times, want 2", sum.calls)
	}
	if waited < 3*time.Second {
		t.Fatalf("waited %s, want at least the provider hint", waited)
	}
}

func TestAnalyzeDoesNotRetryTimeout(t *testing.T) {
	svc, sum, _, id := analysisFixture(t,
		[]string{"a@x.com"},
		[]string{"ok"})
	sum.errs = []error{analysis.ErrTimeout}

	if _, err := svc.Analyze(context.Background(), id); !errors.Is(err, analysis.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if sum.calls != 1 {
		t.Fatalf("provider called %d times, want 1", sum.calls)
	}
}

func TestAnalyzeDoesNotRetryUpstreamErrors(t *testing.T) {
	svc, sum, _, id := analysisFixture(t,
		[]string{"a@x.com"},
		[]string{"ok"})
	sum.errs = []error{&analysis.UpstreamError{Status: 500, Message: "overloaded"}}

	var up *analysis.UpstreamError
	if _, err := svc.Analyze(context.Background(), id); !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if sum.calls != 1 {
		t.Fatalf("provider called %d times, want 1", sum.calls)
	}
}

func TestBuildPromptQuotesResponses(t *testing.T) {
	p := &models.Pulse{ID: "p1", RecipientEmails: []string{"a@x.com", "b@x.com"}}
	responses := []*models.Response{
		{Text: "great quarter"},
		{Text: "need more focus time"},
	}
	prompt := BuildPrompt(p, responses)

	if !strings.Contains(prompt, `1. "great quarter"`) || !strings.Contains(prompt, `2. "need more focus time"`) {
		t.Fatalf("responses not numbered and quoted:\n%s", prompt)
	}
	if !strings.Contains(prompt, DefaultQuestion) {
		t.Fatalf("default question missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "anonymous") {
		t.Fatalf("anonymity instructions missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "tenure") || !strings.Contains(prompt, "demographic") {
		t.Fatalf("identity-detail prohibitions missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, `<div class="warning">`) {
		t.Fatalf("warning container instruction missing:\n%s", prompt)
	}
}

func TestBuildPromptListsCustomQuestions(t *testing.T) {
	p := &models.Pulse{ID: "p1", CustomQuestions: []string{"How is the pace?", "What should change?"}}
	prompt := BuildPrompt(p, []*models.Response{{Text: "x"}})
	if !strings.Contains(prompt, "How is the pace?") || !strings.Contains(prompt, "What should change?") {
		t.Fatalf("custom questions missing:\n%s", prompt)
	}
}
