// Package reflect implements the Reflector component (spec.md §4.12): a
// post-collection, non-blocking LLM judgment of whether the collected
// articles satisfy the run's intent. It never re-runs the pipeline and
// never fails the run; a failed judgment call degrades to a neutral
// reflection rather than surfacing an error.
package reflect

import (
    "context"
    "fmt"
    "strings"

    "github.com/nyxreach/newsagent/internal/content"
    "github.com/nyxreach/newsagent/internal/events"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/llm"
)

// Reflection is the outcome of a post-collection quality judgment
// (spec.md §3 "Reflection"). Non-blocking; recorded for observability.
type Reflection struct {
    QualityScore     float64
    CoverageOfIntent float64
    Notes            string
}

// Reflector judges a run's collected set against its intent.
type Reflector struct {
    LLM    llm.Client
    Events *events.Stream
}

type llmReflectionResponse struct {
    QualityScore     float64 `json:"quality_score"`
    CoverageOfIntent float64 `json:"coverage_of_intent"`
    Notes            string  `json:"notes"`
}

// Reflect asks the small model to judge whether collected satisfies in,
// emitting reflect:complete regardless of outcome. A nil LLM, a call
// failure, or an unparseable reply degrades to a neutral reflection
// instead of returning an error, since this step is purely observational.
func (r *Reflector) Reflect(ctx context.Context, collected []content.ArticleContent, in intent.Intent) Reflection {
    reflection := r.judge(ctx, collected, in)
    r.emit(reflection, len(collected))
    return reflection
}

func (r *Reflector) judge(ctx context.Context, collected []content.ArticleContent, in intent.Intent) Reflection {
    if r.LLM == nil {
        return neutralReflection(collected, in)
    }

    system := "You judge whether a collected set of news articles satisfies a user's stated intent. " +
        `Respond with strict JSON only: {"quality_score": 0..1, "coverage_of_intent": 0..1, "notes": string}. ` +
        "quality_score reflects how substantive and well-sourced the articles are; coverage_of_intent reflects how well the set as a whole addresses the topic, target section, and requested count."

    var user strings.Builder
    fmt.Fprintf(&user, "Intent topic: %s\n", in.Topic)
    if in.TargetSection != "" {
        fmt.Fprintf(&user, "Target section: %s\n", in.TargetSection)
    }
    fmt.Fprintf(&user, "Requested up to %d articles within %d days.\n\n", in.MaxArticles, in.TimeRangeDays)
    fmt.Fprintf(&user, "Collected %d articles:\n", len(collected))
    for i, a := range collected {
        fmt.Fprintf(&user, "%d. %s (%d words)\n", i+1, a.Title, a.WordCount)
    }

    resp, err := r.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user.String()},
        },
        Temperature: 0,
    })
    if err != nil {
        return neutralReflection(collected, in)
    }

    var parsed llmReflectionResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return neutralReflection(collected, in)
    }

    return Reflection{
        QualityScore:     clamp01(parsed.QualityScore),
        CoverageOfIntent: clamp01(parsed.CoverageOfIntent),
        Notes:            strings.TrimSpace(parsed.Notes),
    }
}

// neutralReflection derives a deterministic fallback from the collected
// count alone, so a failed or unconfigured LLM still yields something
// meaningful rather than an empty struct.
func neutralReflection(collected []content.ArticleContent, in intent.Intent) Reflection {
    if in.MaxArticles <= 0 {
        return Reflection{Notes: "no LLM configured for reflection"}
    }
    coverage := float64(len(collected)) / float64(in.MaxArticles)
    return Reflection{
        CoverageOfIntent: clamp01(coverage),
        Notes:            "deterministic fallback: no LLM judgment available",
    }
}

func (r *Reflector) emit(reflection Reflection, collectedCount int) {
    if r.Events == nil {
        return
    }
    r.Events.Emit(events.TypeReflectComplete, map[string]any{
        "quality_score":      reflection.QualityScore,
        "coverage_of_intent":  reflection.CoverageOfIntent,
        "notes":               reflection.Notes,
        "collected_count":     collectedCount,
    })
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
