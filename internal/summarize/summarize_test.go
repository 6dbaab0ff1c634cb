package summarize

import (
    "context"
    "strings"
    "testing"
    "time"

    "github.com/nyxreach/newsagent/internal/content"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/llm"
)

type fakeLLM struct {
    content string
    err     error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
    if f.err != nil {
        return llm.Response{}, f.err
    }
    return llm.Response{Content: f.content}, nil
}

func sampleCollected() []content.ArticleContent {
    published := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
    return []content.ArticleContent{
        {URL: "https://example.com/a", Title: "First Article", Text: "Something happened today in the market.", PublishedDate: &published, AgeDays: 11},
        {URL: "https://example.com/b", Title: "Second Article", Text: "Something else happened in the same sector.", PublishedDate: &published, AgeDays: 11},
    }
}

func TestSummarize_UsesLLMBodyWhenCitationsResolve(t *testing.T) {
    s := &Summarizer{
        Model: "gpt-test",
        LLM:   &fakeLLM{content: "- First thing happened [1]\n- Second thing happened [2]\n"},
    }
    in := intent.Intent{Topic: "markets", MaxArticles: 5, OutputFormat: intent.FormatConciseBullets}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected 2 bullets, got %d: %v", len(got.BulletPoints), got.BulletPoints)
    }
    if len(got.Citations) != 2 {
        t.Fatalf("expected 2 citations, got %d", len(got.Citations))
    }
    if !strings.Contains(got.SummaryMarkdown, "References") {
        t.Fatalf("expected references section appended, got %q", got.SummaryMarkdown)
    }
    if got.Model != "gpt-test" {
        t.Fatalf("expected model passed through, got %q", got.Model)
    }
}

func TestSummarize_CitationsOrderedByFirstAppearanceInCollected(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{content: "- a [1]\n- b [2]\n"}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    collected := sampleCollected()
    got := s.Summarize(context.Background(), collected, in)

    if got.Citations[0].URL != collected[0].URL || got.Citations[1].URL != collected[1].URL {
        t.Fatalf("expected citations in collected order, got %+v", got.Citations)
    }
}

func TestSummarize_FallsBackToDeterministicBodyWhenBulletMissingCitation(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{content: "- First thing happened\n- Second thing happened [2]\n"}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    for _, b := range got.BulletPoints {
        if !strings.ContainsAny(b, "[") {
            t.Fatalf("expected every fallback bullet to carry a citation marker, got %q", b)
        }
    }
    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected one deterministic bullet per article, got %d", len(got.BulletPoints))
    }
}

func TestSummarize_FallsBackToDeterministicBodyWhenCitationOutOfRange(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{content: "- First thing happened [1]\n- Second thing happened [9]\n"}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected deterministic fallback with 2 bullets, got %d", len(got.BulletPoints))
    }
}

func TestSummarize_NoLLMConfiguredUsesDeterministicBody(t *testing.T) {
    s := &Summarizer{}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected 2 deterministic bullets, got %d", len(got.BulletPoints))
    }
    if !strings.Contains(got.BulletPoints[0], "[1]") {
        t.Fatalf("expected first bullet to cite [1], got %q", got.BulletPoints[0])
    }
}

func TestSummarize_LLMErrorUsesDeterministicBody(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{err: context.DeadlineExceeded}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected deterministic fallback bullets, got %d", len(got.BulletPoints))
    }
}

func TestSummarize_EmptyLLMResponseUsesDeterministicBody(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{content: "   "}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if len(got.BulletPoints) != 2 {
        t.Fatalf("expected deterministic fallback bullets, got %d", len(got.BulletPoints))
    }
}

func TestSummarize_ReferencesSectionListsEveryCitationWithDate(t *testing.T) {
    s := &Summarizer{LLM: &fakeLLM{content: "- x [1]\n- y [2]\n"}}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), sampleCollected(), in)

    if !strings.Contains(got.SummaryMarkdown, "2026-07-20") {
        t.Fatalf("expected published date rendered in references, got %q", got.SummaryMarkdown)
    }
    if !strings.Contains(got.SummaryMarkdown, "example.com/a") || !strings.Contains(got.SummaryMarkdown, "example.com/b") {
        t.Fatalf("expected both URLs rendered in references, got %q", got.SummaryMarkdown)
    }
}

func TestSummarize_NoCollectedArticlesProducesEmptyCitationsNoPanic(t *testing.T) {
    s := &Summarizer{}
    in := intent.Intent{Topic: "markets", MaxArticles: 5}
    got := s.Summarize(context.Background(), nil, in)

    if len(got.Citations) != 0 {
        t.Fatalf("expected no citations, got %d", len(got.Citations))
    }
    if len(got.BulletPoints) != 0 {
        t.Fatalf("expected no bullets, got %d", len(got.BulletPoints))
    }
}
