package dedup

import (
    "context"
    "testing"
    "time"

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

func at(hour int) time.Time {
    return time.Date(2026, 7, 31, hour, 0, 0, 0, time.UTC)
}

func TestDedupe_ExactURLMatchKeepsEarliestFetched(t *testing.T) {
    d := &Deduplicator{}
    articles := []Article{
        {URL: "https://example.com/story?utm_source=x", Text: "body one", FetchedAt: at(2)},
        {URL: "https://example.com/story", Text: "body one", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 1 {
        t.Fatalf("expected 1 article after exact dedupe, got %d", len(got))
    }
    if !got[0].FetchedAt.Equal(at(1)) {
        t.Fatalf("expected earliest-fetched member kept, got %v", got[0].FetchedAt)
    }
}

func TestDedupe_ExactContentHashMatchAcrossDifferentURLs(t *testing.T) {
    d := &Deduplicator{}
    articles := []Article{
        {URL: "https://a.example.com/story", Text: "identical body text here", FetchedAt: at(3)},
        {URL: "https://b.example.com/mirror", Text: "identical body text here", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 1 {
        t.Fatalf("expected content-hash match to collapse to 1 article, got %d", len(got))
    }
}

func TestDedupe_DistinctArticlesSurviveExactPhase(t *testing.T) {
    d := &Deduplicator{}
    articles := []Article{
        {URL: "https://a.example.com/story-1", Text: "body one", FetchedAt: at(1)},
        {URL: "https://a.example.com/story-2", Text: "body two", FetchedAt: at(2)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 2 {
        t.Fatalf("expected both distinct articles to survive, got %d", len(got))
    }
}

func TestDedupe_SemanticPhaseMergesLLMConfirmedDuplicates(t *testing.T) {
    llmClient := &fakeLLM{content: `{"items":[{"index_a":0,"index_b":1,"duplicate":true}]}`}
    d := &Deduplicator{LLM: llmClient}
    articles := []Article{
        {URL: "https://a.example.com/flooding-report", Title: "Regional flooding report", Text: "Heavy rain caused flooding across the region this week.", FetchedAt: at(2)},
        {URL: "https://b.example.com/flood-coverage", Title: "Flooding coverage continues", Text: "Officials say flooding from heavy rain continues to affect the region.", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 1 {
        t.Fatalf("expected semantic phase to merge duplicates, got %d", len(got))
    }
    if !got[0].FetchedAt.Equal(at(1)) {
        t.Fatalf("expected earliest-fetched member kept after merge, got %v", got[0].FetchedAt)
    }
}

func TestDedupe_SemanticPhaseLeavesUnrelatedArticlesSeparate(t *testing.T) {
    llmClient := &fakeLLM{content: `{"items":[{"index_a":0,"index_b":1,"duplicate":false}]}`}
    d := &Deduplicator{LLM: llmClient}
    articles := []Article{
        {URL: "https://a.example.com/flooding-report", Title: "Regional flooding report", Text: "Heavy rain caused flooding across the region.", FetchedAt: at(2)},
        {URL: "https://b.example.com/election-results", Title: "Election results announced", Text: "Election officials announced the final results today.", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 2 {
        t.Fatalf("expected unrelated articles to stay separate, got %d", len(got))
    }
}

func TestDedupe_SemanticPhaseSkippedWithoutTitleOverlap(t *testing.T) {
    llmClient := &fakeLLM{content: `{"items":[]}`}
    d := &Deduplicator{LLM: llmClient}
    articles := []Article{
        {URL: "https://a.example.com/a", Title: "Short", Text: "Some article body text that is long enough.", FetchedAt: at(2)},
        {URL: "https://b.example.com/b", Title: "Other", Text: "A different article body text entirely.", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 2 {
        t.Fatalf("expected no candidate pairs without shared title words, got %d", len(got))
    }
}

func TestDedupe_LLMErrorFallsBackToExactPhaseResult(t *testing.T) {
    llmClient := &fakeLLM{err: context.DeadlineExceeded}
    d := &Deduplicator{LLM: llmClient}
    articles := []Article{
        {URL: "https://a.example.com/flooding-report", Title: "Regional flooding report", Text: "Heavy rain caused flooding across the region.", FetchedAt: at(2)},
        {URL: "https://b.example.com/flood-coverage", Title: "Flooding coverage continues", Text: "Officials say flooding continues to affect the region.", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 2 {
        t.Fatalf("expected LLM failure to leave exact-phase result unchanged, got %d", len(got))
    }
}

func TestDedupe_NoLLMConfiguredSkipsSemanticPhase(t *testing.T) {
    d := &Deduplicator{}
    articles := []Article{
        {URL: "https://a.example.com/flooding-report", Title: "Regional flooding report", Text: "Heavy rain caused flooding across the region.", FetchedAt: at(2)},
        {URL: "https://b.example.com/flood-coverage", Title: "Flooding coverage continues", Text: "Officials say flooding continues to affect the region.", FetchedAt: at(1)},
    }
    got, err := d.Dedupe(context.Background(), articles)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(got) != 2 {
        t.Fatalf("expected no semantic merge without an LLM configured, got %d", len(got))
    }
}
