package validate

import (
    "context"
    "fmt"
    "strings"
    "unicode"

    "github.com/nyxreach/newsagent/internal/llm"
)

// minArticleWords rejects extraction results too thin to be a real article
// body rather than a stub, teaser, or navigation page.
const minArticleWords = 150

// maxNoiseRatio bounds the share of non-alphabetic runes tolerated in
// extracted body text; above this the page is probably boilerplate, a
// listing, or a script dump rather than prose.
const maxNoiseRatio = 0.35

// ArticleIssue is one deterministic or model-flagged reason extracted
// content failed validation.
type ArticleIssue struct {
    Code   string
    Detail string
}

func (i ArticleIssue) String() string {
    return fmt.Sprintf("%s: %s", i.Code, i.Detail)
}

// ArticleResult is the outcome of validating one extracted article body.
type ArticleResult struct {
    Valid        bool
    Paywalled    bool
    Issues       []ArticleIssue
    WordCount    int
    NoiseRatio   float64
}

// ArticleValidator checks extracted article content against the length,
// noise, and paywall rules every collected article must satisfy before it
// is handed to the summarizer.
type ArticleValidator struct {
    // LLM is used for paywall detection when set. A nil LLM falls back to
    // the deterministic keyword heuristic only.
    LLM llm.Client
}

// Validate runs the length, noise-ratio, and paywall checks over text and
// returns every issue found; Valid is false if any check failed.
func (v *ArticleValidator) Validate(ctx context.Context, text string) ArticleResult {
    words := CountWords(text)
    noise := noiseRatio(text)
    res := ArticleResult{WordCount: words, NoiseRatio: noise, Valid: true}

    if words < minArticleWords {
        res.Valid = false
        res.Issues = append(res.Issues, ArticleIssue{
            Code:   "too_short",
            Detail: fmt.Sprintf("%d words, minimum is %d", words, minArticleWords),
        })
    }
    if noise > maxNoiseRatio {
        res.Valid = false
        res.Issues = append(res.Issues, ArticleIssue{
            Code:   "high_noise",
            Detail: fmt.Sprintf("%.2f non-alphabetic ratio, maximum is %.2f", noise, maxNoiseRatio),
        })
    }

    paywalled := v.detectPaywall(ctx, text)
    res.Paywalled = paywalled
    if paywalled {
        res.Valid = false
        res.Issues = append(res.Issues, ArticleIssue{Code: "paywalled", Detail: "content appears to be behind a paywall"})
    }

    return res
}

// noiseRatio measures the fraction of non-alphabetic, non-space runes in s,
// a cheap proxy for markup leakage, ad copy, or script remnants that slipped
// past extraction.
func noiseRatio(s string) float64 {
    var letters, other int
    for _, r := range s {
        switch {
        case unicode.IsSpace(r):
            continue
        case unicode.IsLetter(r):
            letters++
        default:
            other++
        }
    }
    total := letters + other
    if total == 0 {
        return 0
    }
    return float64(other) / float64(total)
}

var paywallMarkers = []string{
    "subscribe to continue reading",
    "subscribe to read",
    "this content is for subscribers",
    "already a subscriber",
    "sign in to continue reading",
    "create a free account to continue",
    "to continue reading this article",
    "you have reached your limit of free articles",
    "become a member to read",
    "unlock this article",
}

// detectPaywall asks the model whether a page reads as paywalled; on a nil
// client, an error, or an unparseable response it falls back to the
// deterministic keyword heuristic rather than treating the article as
// invalid by default.
func (v *ArticleValidator) detectPaywall(ctx context.Context, text string) bool {
    if v.LLM != nil {
        if result, ok := v.detectPaywallViaLLM(ctx, text); ok {
            return result
        }
    }
    return containsPaywallMarker(text)
}

func containsPaywallMarker(text string) bool {
    low := strings.ToLower(text)
    for _, marker := range paywallMarkers {
        if strings.Contains(low, marker) {
            return true
        }
    }
    return false
}

type paywallResponse struct {
    Paywalled bool `json:"paywalled"`
}

func (v *ArticleValidator) detectPaywallViaLLM(ctx context.Context, text string) (bool, bool) {
    excerpt := text
    if len(excerpt) > 2000 {
        excerpt = excerpt[:2000]
    }
    resp, err := v.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: "You determine whether an article excerpt is behind a paywall or subscription wall rather than full free content. Respond with strict JSON only: {\"paywalled\": true or false}."},
            {Role: llm.RoleUser, Content: excerpt},
        },
        Temperature: 0,
    })
    if err != nil {
        return false, false
    }
    var parsed paywallResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return false, false
    }
    return parsed.Paywalled, true
}
