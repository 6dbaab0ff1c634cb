// Package summarize implements the Summarizer component (spec.md §4.13):
// it renders the final SummaryResult from the collected articles and the
// run's intent, varying structure by output_format, and guarantees every
// bullet carries a resolvable [n] citation marker before returning.
package summarize

import (
    "context"
    "fmt"
    "strings"

    "github.com/nyxreach/newsagent/internal/content"
    "github.com/nyxreach/newsagent/internal/events"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/llm"
    "github.com/nyxreach/newsagent/internal/validate"
)

// Citation is one entry in a SummaryResult's ordered reference list
// (spec.md §3 "SummaryResult").
type Citation struct {
    URL     string
    Label   string
    Title   string
    Date    string
    AgeDays int
}

// SummaryResult is the terminal output of a run (spec.md §3).
type SummaryResult struct {
    SummaryMarkdown string
    BulletPoints    []string
    Citations       []Citation
    Model           string
}

// Summarizer renders a SummaryResult from the collected set.
type Summarizer struct {
    LLM    llm.Client
    Model  string
    Events *events.Stream
}

// Summarize builds citations in first-appearance order, asks the model for
// format-appropriate markdown body text, appends a deterministic
// references section, and falls back to a deterministic per-article
// bullet list if the model's output does not satisfy the citation-closure
// rule (spec.md §4.13: "every bullet must carry at least one [n] citation
// marker resolvable to an entry in the citations list").
func (s *Summarizer) Summarize(ctx context.Context, collected []content.ArticleContent, in intent.Intent) SummaryResult {
    citations := buildCitations(collected)
    body := s.renderBody(ctx, collected, citations, in)

    bullets := extractBullets(body)
    if !citationsResolve(bullets, len(citations)) {
        body = deterministicBody(collected, citations, in)
        bullets = extractBullets(body)
    }

    full := body + "\n\n" + renderReferencesSection(citations)

    return SummaryResult{
        SummaryMarkdown: full,
        BulletPoints:    bullets,
        Citations:       citations,
        Model:           s.Model,
    }
}

func buildCitations(collected []content.ArticleContent) []Citation {
    out := make([]Citation, 0, len(collected))
    for _, a := range collected {
        date := ""
        if a.PublishedDate != nil {
            date = a.PublishedDate.Format("2006-01-02")
        }
        out = append(out, Citation{
            URL:     a.URL,
            Label:   a.Title,
            Title:   a.Title,
            Date:    date,
            AgeDays: a.AgeDays,
        })
    }
    return out
}

func (s *Summarizer) renderBody(ctx context.Context, collected []content.ArticleContent, citations []Citation, in intent.Intent) string {
    if s.LLM == nil {
        return deterministicBody(collected, citations, in)
    }

    system := buildSystemPrompt(in.OutputFormat)
    user := buildUserPrompt(collected, citations, in)

    resp, err := s.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user},
        },
        Temperature: 0.2,
    })
    if err != nil {
        return deterministicBody(collected, citations, in)
    }
    out := strings.TrimSpace(resp.Content)
    if out == "" {
        return deterministicBody(collected, citations, in)
    }
    return out
}

func buildSystemPrompt(format intent.OutputFormat) string {
    base := "You write a news briefing from a set of numbered source articles. Cite every claim with a bracketed index like [1] that matches the numbered source list. Do not invent facts or sources. "
    switch format {
    case intent.FormatExecutiveSummary:
        return base + "Write one tight narrative paragraph, then 3-5 headline bullet points (lines starting with '- '), each citing at least one source."
    case intent.FormatConciseBullets:
        return base + "Write exactly one bullet point per source article (lines starting with '- '), each citing its source."
    case intent.FormatDetailed:
        return base + "Write a full breakdown per article: a heading, a paragraph of detail, and at least one direct quote, each section citing its source. Include at least one bullet point per article (lines starting with '- ') summarizing it."
    default: // categorized_bullets
        return base + "Group bullet points under semantic category headers. For each article, include a subsection titled 'Article [n]: <title>' with 3 or more bullet points (lines starting with '- '), each citing [n]."
    }
}

func buildUserPrompt(collected []content.ArticleContent, citations []Citation, in intent.Intent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "Topic: %s\n", in.Topic)
    if in.TargetSection != "" {
        fmt.Fprintf(&b, "Target section: %s\n", in.TargetSection)
    }
    b.WriteString("\nSources:\n")
    for i, a := range collected {
        fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, a.Title, a.URL)
        excerpt := a.Text
        if len(excerpt) > 1500 {
            excerpt = excerpt[:1500]
        }
        b.WriteString(excerpt)
        b.WriteString("\n\n")
    }
    _ = citations
    return b.String()
}

// extractBullets collects markdown bullet lines (leading '-' or '*') from
// body, in order of appearance.
func extractBullets(body string) []string {
    var out []string
    for _, line := range strings.Split(body, "\n") {
        t := strings.TrimSpace(line)
        if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") {
            out = append(out, strings.TrimSpace(t[2:]))
        }
    }
    return out
}

// citationsResolve reports whether bullets exist and every one carries at
// least one [n] marker with 1 <= n <= numCitations.
func citationsResolve(bullets []string, numCitations int) bool {
    if len(bullets) == 0 {
        return false
    }
    for _, b := range bullets {
        result := validate.ValidateCitations(b, numCitations)
        if len(result.InRange) == 0 || len(result.OutOfRange) > 0 {
            return false
        }
    }
    return true
}

// deterministicBody renders a guaranteed-valid body: one bullet per
// article citing its own index, grouped the same way regardless of
// output_format, used when the model is unavailable or its output fails
// citation closure.
func deterministicBody(collected []content.ArticleContent, citations []Citation, in intent.Intent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(in.Topic))
    for i, a := range collected {
        n := i + 1
        summary := firstSentence(a.Text)
        fmt.Fprintf(&b, "- %s [%d]\n", summary, n)
        _ = citations
    }
    return b.String()
}

func firstSentence(text string) string {
    t := strings.TrimSpace(text)
    if idx := strings.IndexAny(t, ".!?"); idx > 0 {
        t = t[:idx+1]
    }
    if len(t) > 240 {
        t = t[:240]
    }
    return strings.TrimSpace(t)
}

func renderReferencesSection(citations []Citation) string {
    var b strings.Builder
    b.WriteString("## References\n\n")
    for i, c := range citations {
        fmt.Fprintf(&b, "%d. %s — %s", i+1, c.Title, c.URL)
        if c.Date != "" {
            fmt.Fprintf(&b, " (%s)", c.Date)
        }
        b.WriteString("\n")
    }
    return b.String()
}

