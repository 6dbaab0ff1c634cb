// Package content implements the Content Extractor component (spec.md
// §4.7): given a fetched page's cleaned text, it asks the smart model for
// structured article fields, attaches the date-parser's result, and
// validates its own output with the content validator before returning.
package content

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/nyxreach/newsagent/internal/budget"
    "github.com/nyxreach/newsagent/internal/dateparse"
    "github.com/nyxreach/newsagent/internal/llm"
    "github.com/nyxreach/newsagent/internal/validate"
)

// reservedOutputTokens is set aside for the model's structured reply when
// sizing the focus pre-filter's budget.
const reservedOutputTokens = 1024

// ArticleContent is the fully-populated per-article record (spec.md §3).
type ArticleContent struct {
    URL                  string
    Title                string
    Text                 string
    PublishedDate        *time.Time
    DateConfidence       dateparse.Confidence
    DateExtractionMethod dateparse.Method
    AgeDays              int
    FetchedAt            time.Time
    QualityScore         float64
    IsPaywalled          bool
    WordCount            int
}

// Extractor wraps the smart-model client used for structured extraction,
// the date parser, and the article validator.
type Extractor struct {
    LLM       llm.Client
    Model     string
    DateParse *dateparse.Parser
    Validator *validate.ArticleValidator
    Now       func() time.Time
}

func (e *Extractor) now() time.Time {
    if e.Now != nil {
        return e.Now()
    }
    return time.Now().UTC()
}

type llmExtractResponse struct {
    Title string `json:"title"`
    Text  string `json:"text"`
}

// Extract produces an ArticleContent from a fetched page's raw HTML and
// plain-text rendering. It focuses the input to a token budget, asks the
// model for structured fields, resolves the publish date via the three-tier
// dateparse strategy, and validates the extracted text before returning.
func (e *Extractor) Extract(ctx context.Context, pageURL string, rawHTML []byte, plainText string) (ArticleContent, error) {
    if e.LLM == nil {
        return ArticleContent{}, fmt.Errorf("content: no LLM configured")
    }

    focused := focus(plainText, e.Model, reservedOutputTokens)

    system := "You extract structured article data from a web page's text. " +
        `Respond with strict JSON only: {"title": string, "text": string}. ` +
        "\"text\" is the full article body, cleaned of navigation, ads, and boilerplate, preserving paragraph breaks. " +
        "Do not summarize or omit paragraphs; reproduce the article's own words."

    var user strings.Builder
    fmt.Fprintf(&user, "URL: %s\n\nPage text:\n%s", pageURL, focused)

    resp, err := e.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user.String()},
        },
        Temperature: 0.1,
    })
    if err != nil {
        return ArticleContent{}, fmt.Errorf("content: llm call: %w", err)
    }

    var parsed llmExtractResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return ArticleContent{}, fmt.Errorf("content: parse response: %w", err)
    }

    text := strings.TrimSpace(parsed.Text)
    if text == "" {
        text = strings.TrimSpace(plainText)
    }

    fetchedAt := e.now()
    ac := ArticleContent{
        URL:       pageURL,
        Title:     strings.TrimSpace(parsed.Title),
        Text:      text,
        FetchedAt: fetchedAt,
        WordCount: validate.CountWords(text),
    }

    if e.DateParse != nil {
        dr := e.DateParse.Parse(ctx, pageURL, rawHTML)
        ac.PublishedDate = dr.Date
        ac.DateConfidence = dr.Confidence
        ac.DateExtractionMethod = dr.Method
        if dr.Date != nil {
            ac.AgeDays = int(fetchedAt.Sub(*dr.Date).Hours() / 24)
            if ac.AgeDays < 0 {
                ac.AgeDays = 0
            }
        }
    }

    if e.Validator != nil {
        result := e.Validator.Validate(ctx, ac.Text)
        ac.IsPaywalled = result.Paywalled
        ac.QualityScore = qualityScore(result)
        if !result.Valid {
            return ac, fmt.Errorf("content: validation failed: %v", result.Issues)
        }
    }

    return ac, nil
}

// qualityScore derives a coarse [0,1] score from the validator's findings:
// a clean article starts at 1.0 and loses ground for each issue found.
func qualityScore(r validate.ArticleResult) float64 {
    score := 1.0
    score -= float64(len(r.Issues)) * 0.3
    if r.NoiseRatio > 0 {
        score -= r.NoiseRatio * 0.2
    }
    if score < 0 {
        return 0
    }
    if score > 1 {
        return 1
    }
    return score
}

// focus shrinks text to fit within the model's context budget, grounded on
// the proportional excerpt-truncation idiom used for report synthesis: compute
// the tokens available after the prompt scaffolding and trim to that byte
// budget on a rune boundary rather than blindly truncating (spec.md §4.7's
// focus pre-filter). Text already within the budget is returned unchanged.
func focus(text string, model string, reservedForOutput int) string {
    maxCtx := budget.ModelContextTokens(model)
    headroom := budget.HeadroomTokens(model)
    available := maxCtx - reservedForOutput - headroom
    if available <= 0 {
        available = maxCtx / 2
    }
    maxBytes := available * 4 // inverse of budget's ~4 chars/token heuristic
    if maxBytes <= 0 || len(text) <= maxBytes {
        return text
    }
    return trimByByteLimitPreservingRunes(text, maxBytes)
}

// trimByByteLimitPreservingRunes truncates s to at most maxBytes bytes
// without splitting a multi-byte UTF-8 rune.
func trimByByteLimitPreservingRunes(s string, maxBytes int) string {
    if len(s) <= maxBytes {
        return s
    }
    b := []byte(s)[:maxBytes]
    for len(b) > 0 {
        r := b[len(b)-1]
        if r < 0x80 || r >= 0xC0 {
            break
        }
        b = b[:len(b)-1]
    }
    return string(b)
}
