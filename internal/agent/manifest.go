package agent

import (
    "strconv"
    "strings"
    "time"

    "github.com/nyxreach/newsagent/internal/content"
)

// ManifestEntry is one collected article's provenance record (supplemented
// feature, SPEC_FULL.md §5: "reproducibility footer and sidecar manifest"),
// grounded on internal/app/manifest.go's manifestEntry shape but trimmed to
// the fields this domain actually has: no content hash, since
// content.ArticleContent already carries a quality_score from validation.
type ManifestEntry struct {
    URL          string
    FetchedAt    time.Time
    QualityScore float64
}

// BuildManifest projects the collected set into its provenance records, in
// collection order.
func BuildManifest(collected []content.ArticleContent) []ManifestEntry {
    out := make([]ManifestEntry, 0, len(collected))
    for _, c := range collected {
        out = append(out, ManifestEntry{URL: c.URL, FetchedAt: c.FetchedAt, QualityScore: c.QualityScore})
    }
    return out
}

// AppendManifestSection appends a compact Markdown manifest to markdown,
// mirroring internal/app/manifest.go's appendEmbeddedManifest but keyed by
// a run ID instead of a model/cache summary (the agent's SummaryResult
// already carries the model field).
func AppendManifestSection(markdown string, runID string, entries []ManifestEntry) string {
    var b strings.Builder
    b.WriteString(markdown)
    b.WriteString("\n\n## Manifest\n\n")
    b.WriteString("- Run ID: ")
    b.WriteString(runID)
    b.WriteString("\n- Articles: ")
    b.WriteString(strconv.Itoa(len(entries)))
    b.WriteString("\n\n")
    for i, e := range entries {
        b.WriteString(strconv.Itoa(i + 1))
        b.WriteString(". ")
        b.WriteString(e.URL)
        b.WriteString(" — fetched=")
        b.WriteString(e.FetchedAt.UTC().Format(time.RFC3339))
        b.WriteString("; quality_score=")
        b.WriteString(strconv.FormatFloat(e.QualityScore, 'f', 2, 64))
        b.WriteString("\n")
    }
    return b.String()
}
