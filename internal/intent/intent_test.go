package intent

import (
    "context"
    "testing"

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

func TestExtract_NoLLMConfiguredReturnsError(t *testing.T) {
    e := &Extractor{}
    _, err := e.Extract(context.Background(), "anything")
    if err == nil {
        t.Fatalf("expected error when no LLM configured")
    }
}

func TestExtract_DefaultsWhenFieldsUnspecified(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"local elections","confidence":0.8}`}}
    in, err := e.Extract(context.Background(), "tell me about local elections")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.TimeRangeDays != defaultTimeRangeDays {
        t.Fatalf("expected default time range %d, got %d", defaultTimeRangeDays, in.TimeRangeDays)
    }
    if in.OutputFormat != FormatCategorizedBullets {
        t.Fatalf("expected default output format categorized_bullets, got %v", in.OutputFormat)
    }
    if in.MaxArticles != defaultMaxArticles {
        t.Fatalf("expected default max articles %d, got %d", defaultMaxArticles, in.MaxArticles)
    }
    if in.TargetSection != "" {
        t.Fatalf("expected empty target section by default, got %q", in.TargetSection)
    }
}

func TestExtract_TemporalPhrasingWithoutCountBoostsMaxArticles(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"ai news","has_temporal_phrasing":true}`}}
    in, err := e.Extract(context.Background(), "what's the recent news on AI?")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.MaxArticles != boostedMaxArticles {
        t.Fatalf("expected boosted max articles %d, got %d", boostedMaxArticles, in.MaxArticles)
    }
}

func TestExtract_ExplicitCountOverridesTemporalBoost(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"ai news","has_temporal_phrasing":true,"has_explicit_article_count":true,"max_articles":5}`}}
    in, err := e.Extract(context.Background(), "give me the 5 most recent AI articles")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.MaxArticles != 5 {
        t.Fatalf("expected explicit count 5 to win, got %d", in.MaxArticles)
    }
}

func TestExtract_WeeksConvertedToDays(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"x","has_explicit_time_range":true,"time_range_value":2,"time_range_unit":"weeks"}`}}
    in, err := e.Extract(context.Background(), "news from the last 2 weeks")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.TimeRangeDays != 14 {
        t.Fatalf("expected 14 days from 2 weeks, got %d", in.TimeRangeDays)
    }
}

func TestExtract_MonthsConvertedToDays(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"x","has_explicit_time_range":true,"time_range_value":1,"time_range_unit":"months"}`}}
    in, err := e.Extract(context.Background(), "news from the last month")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.TimeRangeDays != 30 {
        t.Fatalf("expected 30 days from 1 month, got %d", in.TimeRangeDays)
    }
}

func TestExtract_ExplicitTargetSectionPreserved(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"x","target_section":"forum"}`}}
    in, err := e.Extract(context.Background(), "check the forum for discussion on x")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.TargetSection != "forum" {
        t.Fatalf("expected target section 'forum', got %q", in.TargetSection)
    }
}

func TestExtract_ConfidenceClampedToUnitRange(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: `{"topic":"x","confidence":1.8}`}}
    in, err := e.Extract(context.Background(), "x")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if in.Confidence != 1 {
        t.Fatalf("expected confidence clamped to 1, got %v", in.Confidence)
    }
}

func TestExtract_MalformedJSONReturnsError(t *testing.T) {
    e := &Extractor{LLM: &fakeLLM{content: "not json"}}
    _, err := e.Extract(context.Background(), "x")
    if err == nil {
        t.Fatalf("expected parse error for malformed response")
    }
}
