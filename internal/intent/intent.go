// Package intent implements the Intent Extractor component (spec.md
// §4.10): a pure LLM extraction of a free-form user prompt into a
// structured Intent, followed by deterministic post-processing of the
// model's raw fields.
package intent

import (
    "context"
    "fmt"
    "strings"

    "github.com/nyxreach/newsagent/internal/llm"
)

// OutputFormat selects how the summarizer renders the final result.
type OutputFormat string

const (
    FormatExecutiveSummary  OutputFormat = "executive_summary"
    FormatCategorizedBullets OutputFormat = "categorized_bullets"
    FormatConciseBullets    OutputFormat = "concise_bullets"
    FormatDetailed          OutputFormat = "detailed"
)

const defaultTimeRangeDays = 7
const defaultMaxArticles = 10
const boostedMaxArticles = 20

// Intent is the parsed user request (spec.md §3 "Intent").
type Intent struct {
    Topic         string
    TargetSection string
    TimeRangeDays int
    OutputFormat  OutputFormat
    FocusAreas    []string
    MaxArticles   int
    Confidence    float64
}

// Extractor turns a free-form prompt into an Intent via a single LLM call.
type Extractor struct {
    LLM llm.Client
}

type llmIntentResponse struct {
    Topic           string   `json:"topic"`
    TargetSection   string   `json:"target_section"`
    TimeRangeValue  int      `json:"time_range_value"`
    TimeRangeUnit   string   `json:"time_range_unit"` // days|weeks|months
    HasExplicitDays bool     `json:"has_explicit_time_range"`
    OutputFormat    string   `json:"output_format"`
    FocusAreas      []string `json:"focus_areas"`
    HasExplicitCount bool    `json:"has_explicit_article_count"`
    MaxArticles     int      `json:"max_articles"`
    Confidence      float64  `json:"confidence"`
    HasTemporalPhrasing bool `json:"has_temporal_phrasing"`
}

// Extract parses prompt into an Intent, applying the post-processing rules
// from spec.md §4.10 after the model's structured response comes back.
func (e *Extractor) Extract(ctx context.Context, prompt string) (Intent, error) {
    if e.LLM == nil {
        return Intent{}, fmt.Errorf("intent: no LLM configured")
    }

    system := "You parse a user's news-gathering request into structured fields. " +
        `Respond with strict JSON only: {"topic": string, "target_section": string (empty if not named), ` +
        `"time_range_value": int, "time_range_unit": "days"|"weeks"|"months", "has_explicit_time_range": bool, ` +
        `"output_format": "executive_summary"|"categorized_bullets"|"concise_bullets"|"detailed"|"" (empty if unspecified), ` +
        `"focus_areas": string[], "has_explicit_article_count": bool, "max_articles": int, ` +
        `"has_temporal_phrasing": bool (true for phrases like "recent", "lately", "last N days/weeks/months" even without an explicit count), ` +
        `"confidence": 0..1}. Never guess target_section: leave it empty unless the user names a section like "forum" or "news" explicitly.`

    resp, err := e.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: prompt},
        },
        Temperature: 0,
    })
    if err != nil {
        return Intent{}, fmt.Errorf("intent: llm call: %w", err)
    }

    var parsed llmIntentResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return Intent{}, fmt.Errorf("intent: parse response: %w", err)
    }

    return postProcess(parsed), nil
}

// postProcess applies spec.md §4.10's deterministic rules over the model's
// raw fields: temporal-phrasing boost, unit conversion to days, format
// default, and never-guess target_section.
func postProcess(r llmIntentResponse) Intent {
    in := Intent{
        Topic:         strings.TrimSpace(r.Topic),
        TargetSection: strings.TrimSpace(r.TargetSection),
        Confidence:    clamp01(r.Confidence),
    }

    if r.HasExplicitDays && r.TimeRangeValue > 0 {
        in.TimeRangeDays = toDays(r.TimeRangeValue, r.TimeRangeUnit)
    } else {
        in.TimeRangeDays = defaultTimeRangeDays
    }
    if in.TimeRangeDays < 1 {
        in.TimeRangeDays = 1
    }

    in.OutputFormat = OutputFormat(strings.TrimSpace(r.OutputFormat))
    if in.OutputFormat == "" {
        in.OutputFormat = FormatCategorizedBullets
    }

    in.FocusAreas = r.FocusAreas

    switch {
    case r.HasExplicitCount && r.MaxArticles > 0:
        in.MaxArticles = r.MaxArticles
    case r.HasTemporalPhrasing:
        in.MaxArticles = boostedMaxArticles
    default:
        in.MaxArticles = defaultMaxArticles
    }
    if in.MaxArticles < 1 {
        in.MaxArticles = 1
    }

    return in
}

// toDays converts a time-range value expressed in days, weeks, or months
// into a day count (spec.md §4.10: "Weeks → days ×7; months → days ×30").
func toDays(value int, unit string) int {
    switch strings.ToLower(strings.TrimSpace(unit)) {
    case "week", "weeks":
        return value * 7
    case "month", "months":
        return value * 30
    default:
        return value
    }
}

func clamp01(f float64) float64 {
    if f < 0 {
        return 0
    }
    if f > 1 {
        return 1
    }
    return f
}
