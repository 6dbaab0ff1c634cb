// Package linkextract implements the Link Extractor component (spec.md
// §4.6): a two-stage pipeline that enumerates a listing page's anchors with
// goquery, classifies them with the fast model in batches, then filters and
// ranks the article-shaped candidates by relevance to the caller's intent.
package linkextract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/nyxreach/newsagent/internal/llm"
	"github.com/nyxreach/newsagent/internal/urlnorm"
)

// maxLinksPerPage caps the ranked output returned for a single page
// (spec.md §4.6: "bounded to 20 per page").
const maxLinksPerPage = 20

// classifyBatchSize bounds how many anchors are sent to the model per
// classification call, keeping individual prompts small.
const classifyBatchSize = 25

// Class is the per-anchor classification produced by stage one.
type Class string

const (
	ClassArticle    Class = "article"
	ClassCategory   Class = "category"
	ClassNavigation Class = "navigation"
	ClassOther      Class = "other"
)

// Anchor is one raw anchor enumerated from the page before classification.
type Anchor struct {
	Text string
	URL  string
}

// LinkCandidate is a ranked article link, ready for the navigator to
// recurse into (spec.md §3 "LinkCandidate").
type LinkCandidate struct {
	URL           string
	AnchorText    string
	DetectedDate  string
	Relevance     float64
}

// Intent is the slice of intent fields the extractor needs for ranking.
type Intent struct {
	Topic         string
	TargetSection string
}

// Extractor runs the two-stage classify-then-rank pipeline.
type Extractor struct {
	// Classify is the fast-tier model used for the cheap article/category/
	// navigation/other pass.
	Classify llm.Client
	// Rank is the model used for relevance scoring; may be the same client
	// as Classify for deployments with a single tier configured.
	Rank llm.Client
	// MaxConcurrentBatches bounds concurrent classification calls.
	MaxConcurrentBatches int
}

// ExtractLinks enumerates anchors on rawHTML relative to baseURL, classifies
// them, filters to article-shaped links, scores them against intent, and
// returns the top candidates sorted by relevance (spec.md §4.6).
func (e *Extractor) ExtractLinks(ctx context.Context, rawHTML []byte, baseURL string, intent Intent) ([]LinkCandidate, error) {
	anchors := enumerateAnchors(rawHTML, baseURL)
	if len(anchors) == 0 {
		return nil, nil
	}

	classified, err := e.classifyAnchors(ctx, anchors)
	if err != nil {
		return nil, err
	}

	var articleLinks []Anchor
	for i, c := range classified {
		if c == ClassArticle {
			articleLinks = append(articleLinks, anchors[i])
		}
	}
	if len(articleLinks) == 0 {
		return nil, nil
	}

	ranked, err := e.rankCandidates(ctx, articleLinks, intent)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Relevance > ranked[j].Relevance })
	if len(ranked) > maxLinksPerPage {
		ranked = ranked[:maxLinksPerPage]
	}
	return ranked, nil
}

// EnumerateAnchors exposes the raw anchor enumeration for callers that need
// the page's actual link set before classification, such as the
// navigator's page-decision step (spec.md §4.8: "Extract available links").
func EnumerateAnchors(rawHTML []byte, baseURL string) []Anchor {
    return enumerateAnchors(rawHTML, baseURL)
}

// enumerateAnchors walks every <a href> on the page, resolving relative
// hrefs against baseURL and deduplicating by normalized URL.
func enumerateAnchors(rawHTML []byte, baseURL string) []Anchor {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	var out []Anchor
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := urlnorm.Resolve(baseURL, href)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		text := strings.TrimSpace(sel.Text())
		out = append(out, Anchor{Text: text, URL: abs})
	})
	return out
}

type classifyResponseItem struct {
	Index int    `json:"index"`
	Class string `json:"class"`
}

type classifyResponse struct {
	Items []classifyResponseItem `json:"items"`
}

// classifyAnchors batches anchors to respect token limits and classifies
// each as article|category|navigation|other, issuing batches concurrently.
func (e *Extractor) classifyAnchors(ctx context.Context, anchors []Anchor) ([]Class, error) {
	result := make([]Class, len(anchors))
	for i := range result {
		result[i] = ClassOther
	}
	if e.Classify == nil {
		return result, nil
	}

	type batch struct {
		start int
		items []Anchor
	}
	var batches []batch
	for start := 0; start < len(anchors); start += classifyBatchSize {
		end := start + classifyBatchSize
		if end > len(anchors) {
			end = len(anchors)
		}
		batches = append(batches, batch{start: start, items: anchors[start:end]})
	}

	limit := e.MaxConcurrentBatches
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			classes, err := e.classifyOneBatch(gctx, b.items)
			if err != nil {
				return nil // a failed batch degrades to "other", isolating the failure
			}
			for i, c := range classes {
				result[b.start+i] = c
			}
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

func (e *Extractor) classifyOneBatch(ctx context.Context, anchors []Anchor) ([]Class, error) {
	system := "You classify hyperlinks found on a web page. For each numbered link, respond with exactly one of: article, category, navigation, other. " +
		"article = a link to a single news/blog/forum post with substantive content. category = a link to a listing/index/tag page. navigation = site chrome (menu, footer, login, pagination). other = anything else. " +
		`Respond with strict JSON only: {"items": [{"index": 0, "class": "article"}, ...]}, one entry per link, indices matching the input order.`

	var b strings.Builder
	for i, a := range anchors {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i, a.Text, a.URL)
	}

	resp, err := e.Classify.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var parsed classifyResponse
	if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
		return nil, err
	}

	classes := make([]Class, len(anchors))
	for i := range classes {
		classes[i] = ClassOther
	}
	for _, item := range parsed.Items {
		if item.Index < 0 || item.Index >= len(classes) {
			continue
		}
		classes[item.Index] = normalizeClass(item.Class)
	}
	return classes, nil
}

func normalizeClass(s string) Class {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case ClassArticle:
		return ClassArticle
	case ClassCategory:
		return ClassCategory
	case ClassNavigation:
		return ClassNavigation
	default:
		return ClassOther
	}
}

type rankResponseItem struct {
	Index        int     `json:"index"`
	Relevance    float64 `json:"relevance"`
	DetectedDate string  `json:"detected_date"`
}

type rankResponse struct {
	Items []rankResponseItem `json:"items"`
}

// rankCandidates scores each article-classified anchor against intent,
// attaching a detected date where the anchor text or surrounding markup
// makes one visible.
func (e *Extractor) rankCandidates(ctx context.Context, anchors []Anchor, intent Intent) ([]LinkCandidate, error) {
	candidates := make([]LinkCandidate, len(anchors))
	for i, a := range anchors {
		candidates[i] = LinkCandidate{URL: a.URL, AnchorText: a.Text, Relevance: 0.5}
	}

	client := e.Rank
	if client == nil {
		client = e.Classify
	}
	if client == nil || len(anchors) == 0 {
		return candidates, nil
	}

	system := fmt.Sprintf(
		"You score candidate article links for relevance to a news-gathering intent. Topic: %q.%s "+
			`Respond with strict JSON only: {"items": [{"index": 0, "relevance": 0.0..1.0, "detected_date": "" or a visible date string}, ...]}, one entry per link.`,
		intent.Topic, targetSectionClause(intent.TargetSection))

	var b strings.Builder
	for i, a := range anchors {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i, a.Text, a.URL)
	}

	resp, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: 0,
	})
	if err != nil {
		return candidates, nil // keep the neutral-relevance defaults on failure
	}

	var parsed rankResponse
	if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
		return candidates, nil
	}
	for _, item := range parsed.Items {
		if item.Index < 0 || item.Index >= len(candidates) {
			continue
		}
		candidates[item.Index].Relevance = clamp01(item.Relevance)
		candidates[item.Index].DetectedDate = strings.TrimSpace(item.DetectedDate)
	}
	return candidates, nil
}

func targetSectionClause(section string) string {
	if section == "" {
		return ""
	}
	return fmt.Sprintf(" Target section: %q.", section)
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
