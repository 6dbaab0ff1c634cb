package validate

import (
    "context"
    "strings"
    "testing"

    "github.com/nyxreach/newsagent/internal/llm"
)

func longArticleText(words int) string {
    return strings.Repeat("word ", words)
}

func TestArticleValidator_RejectsTooShort(t *testing.T) {
    v := &ArticleValidator{}
    res := v.Validate(context.Background(), "Only a handful of words here.")
    if res.Valid {
        t.Fatalf("expected invalid for short text")
    }
    found := false
    for _, iss := range res.Issues {
        if iss.Code == "too_short" {
            found = true
        }
    }
    if !found {
        t.Fatalf("expected too_short issue, got %+v", res.Issues)
    }
}

func TestArticleValidator_AcceptsLongCleanText(t *testing.T) {
    v := &ArticleValidator{}
    res := v.Validate(context.Background(), longArticleText(200))
    if !res.Valid {
        t.Fatalf("expected valid, got issues: %+v", res.Issues)
    }
    if res.WordCount != 200 {
        t.Fatalf("expected word count 200, got %d", res.WordCount)
    }
}

func TestArticleValidator_RejectsHighNoiseRatio(t *testing.T) {
    v := &ArticleValidator{}
    noisy := strings.Repeat("a1!@#$%^&*()_+-=<>?/|\\~`{}[] ", 60)
    res := v.Validate(context.Background(), noisy)
    if res.Valid {
        t.Fatalf("expected invalid for high noise ratio")
    }
    found := false
    for _, iss := range res.Issues {
        if iss.Code == "high_noise" {
            found = true
        }
    }
    if !found {
        t.Fatalf("expected high_noise issue, got %+v", res.Issues)
    }
}

func TestArticleValidator_DetectsPaywallByKeyword(t *testing.T) {
    v := &ArticleValidator{}
    text := longArticleText(200) + " Subscribe to continue reading this story."
    res := v.Validate(context.Background(), text)
    if res.Valid {
        t.Fatalf("expected invalid for paywalled content")
    }
    if !res.Paywalled {
        t.Fatalf("expected Paywalled true")
    }
}

type fakePaywallLLM struct {
    content string
    err     error
}

func (f *fakePaywallLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
    if f.err != nil {
        return llm.Response{}, f.err
    }
    return llm.Response{Content: f.content}, nil
}

func TestArticleValidator_LLMTierOverridesKeywordHeuristic(t *testing.T) {
    v := &ArticleValidator{LLM: &fakePaywallLLM{content: `{"paywalled": false}`}}
    text := longArticleText(200) + " subscribe to continue reading"
    res := v.Validate(context.Background(), text)
    if res.Paywalled {
        t.Fatalf("expected LLM verdict to override keyword match")
    }
    if !res.Valid {
        t.Fatalf("expected valid when LLM says not paywalled, got %+v", res.Issues)
    }
}

func TestArticleValidator_LLMErrorFallsBackToKeyword(t *testing.T) {
    v := &ArticleValidator{LLM: &fakePaywallLLM{err: context.DeadlineExceeded}}
    text := longArticleText(200) + " subscribe to continue reading"
    res := v.Validate(context.Background(), text)
    if !res.Paywalled {
        t.Fatalf("expected fallback to keyword heuristic on LLM error")
    }
}
