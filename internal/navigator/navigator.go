// Package navigator implements the Navigator component (spec.md §4.8): the
// recursive core that walks a seed URL through listing pages to article
// pages, calling the fetcher, link extractor, page decision, and content
// extractor at each step, with depth and collection-size bounds enforced
// in code.
package navigator

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/nyxreach/newsagent/internal/content"
    "github.com/nyxreach/newsagent/internal/decision"
    "github.com/nyxreach/newsagent/internal/events"
    "github.com/nyxreach/newsagent/internal/extract"
    "github.com/nyxreach/newsagent/internal/fetch"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/linkextract"
    "github.com/nyxreach/newsagent/internal/llm"
    "github.com/nyxreach/newsagent/internal/planner"
    "github.com/nyxreach/newsagent/internal/urlnorm"
)

// maxDepth is the normal recursion bound (spec.md §4.8: "depth ≥ max_depth
// (max_depth = 2) → return"). The hard ceiling of 3 lives in
// internal/decision's own depth-rule enforcement as a second, independent
// safety net.
const maxDepth = 2

// htmlExcerptLen bounds how much sanitized HTML the page-decision prompt
// sees, keeping the decision call's token cost small.
const htmlExcerptLen = 4000

// State is the transient per-run navigation state (spec.md §3
// "NavigationState"): visited URLs, the collected set so far, the cutoff
// time frozen at intent-creation, and this run's own fetch results so a
// bounded-fan-out prefetch (see dispatchExtractLinks) is never re-fetched
// by the sequential recursion that follows it.
type State struct {
    Visited    map[string]struct{}
    Fetched    map[string]fetch.Result
    Collected  []content.ArticleContent
    CutoffTime time.Time
}

// NewState creates a State with the cutoff snapshot computed once, per
// spec.md §3's invariant that the cutoff is frozen for the run.
func NewState(now time.Time, timeRangeDays int) *State {
    return &State{
        Visited:    map[string]struct{}{},
        Fetched:    map[string]fetch.Result{},
        CutoffTime: now.AddDate(0, 0, -timeRangeDays),
    }
}

// Navigator wires the components the recursive walk depends on.
type Navigator struct {
    Fetcher          *fetch.Client
    LinkExtractor    *linkextract.Extractor
    Decider          *decision.Decider
    ContentExtractor *content.Extractor
    Events           *events.Stream

    // RelevanceCheck is the model used for the post-validation topic
    // quick-check (spec.md §4.8: "check topic relevance ... it judges
    // topic fit only"). A nil client skips the check and treats every
    // date-valid article as relevant.
    RelevanceCheck llm.Client

    // PageExtractor converts a fetched page's raw HTML into plain text
    // before the content extractor sees it. A nil value falls back to
    // extract.HeuristicExtractor.
    PageExtractor extract.Extractor

    Now func() time.Time
}

func (n *Navigator) now() time.Time {
    if n.Now != nil {
        return n.Now()
    }
    return time.Now().UTC()
}

func (n *Navigator) extractPage(rawHTML []byte, pageURL string) extract.Document {
    if n.PageExtractor != nil {
        return n.PageExtractor.Extract(rawHTML, pageURL)
    }
    return extract.HeuristicExtractor{}.Extract(rawHTML, pageURL)
}

// RunSeed walks one seed URL to completion, applying the seed-as-article
// fallback (spec.md §4.8) if navigation collects nothing.
func (n *Navigator) RunSeed(ctx context.Context, seedURL string, in intent.Intent, plan planner.Plan, state *State) error {
    if err := n.Navigate(ctx, seedURL, in, plan, 0, state); err != nil {
        return err
    }
    if len(state.Collected) != 0 {
        return nil
    }
    return n.fallbackSeedAsArticle(ctx, seedURL, in, state)
}

// fetchPage fetches pageURL at most once per run: a result already in
// state.Fetched (this page's own earlier fetch, including one warmed by
// dispatchExtractLinks's bounded-fan-out prefetch) is served directly
// without re-emitting fetch events, preserving the no-double-fetch
// invariant (spec.md §8 property 2) across the recursion.
func (n *Navigator) fetchPage(ctx context.Context, pageURL string, state *State) (fetch.Result, error) {
    normURL, err := urlnorm.Normalize(pageURL)
    if err != nil {
        normURL = pageURL
    }
    if res, ok := state.Fetched[normURL]; ok {
        return res, nil
    }
    res, err := n.Fetcher.Get(ctx, pageURL)
    if err != nil {
        return fetch.Result{}, err
    }
    state.Fetched[normURL] = res
    return res, nil
}

func (n *Navigator) fallbackSeedAsArticle(ctx context.Context, seedURL string, in intent.Intent, state *State) error {
    n.emit(events.TypeFetchFallbackStart, map[string]any{"url": seedURL})
    res, err := n.fetchPage(ctx, seedURL, state)
    if err != nil {
        n.emit(events.TypeFetchFallbackDone, map[string]any{"url": seedURL, "collected": false})
        return nil // nothing collected is an acceptable terminal outcome
    }
    doc := n.extractPage(res.HTML, seedURL)
    if strings.TrimSpace(doc.Text) == "" {
        n.emit(events.TypeFetchFallbackDone, map[string]any{"url": seedURL, "collected": false})
        return nil
    }
    ac, err := n.ContentExtractor.Extract(ctx, seedURL, res.HTML, doc.Text)
    if err != nil {
        n.emit(events.TypeFetchFallbackDone, map[string]any{"url": seedURL, "collected": false})
        return nil
    }
    if !n.passesTimeWindow(ac, state.CutoffTime) || !n.checkTopicRelevance(ctx, ac.Title, ac.Text, in.Topic) {
        n.emit(events.TypeFetchFallbackDone, map[string]any{"url": seedURL, "collected": false})
        return nil
    }
    state.Collected = append(state.Collected, ac)
    n.emit(events.TypeNavExtractionSucc, map[string]any{"url": seedURL, "fallback": true})
    n.emit(events.TypeFetchFallbackDone, map[string]any{"url": seedURL, "collected": true})
    return nil
}

// Navigate implements navigate(url, intent, collected, depth, visited,
// plan) → updated collected from spec.md §4.8, checking termination
// conditions in the documented order before doing any work.
func (n *Navigator) Navigate(ctx context.Context, pageURL string, in intent.Intent, plan planner.Plan, depth int, state *State) error {
    if depth >= maxDepth {
        return nil
    }
    if len(state.Collected) >= in.MaxArticles {
        return nil
    }
    normURL, err := urlnorm.Normalize(pageURL)
    if err != nil {
        normURL = pageURL
    }
    if _, seen := state.Visited[normURL]; seen {
        return nil
    }
    state.Visited[normURL] = struct{}{}

    n.emit(events.TypeNavAnalyzing, map[string]any{"url": pageURL, "depth": depth})

    res, err := n.fetchPage(ctx, pageURL, state)
    if err != nil {
        return nil
    }

    links := linkextract.EnumerateAnchors(res.HTML, pageURL)
    decisionLinks := make([]decision.Link, len(links))
    for i, l := range links {
        decisionLinks[i] = decision.Link{AnchorText: l.Text, URL: l.URL}
    }

    pd, err := n.Decider.Decide(ctx, pageURL, htmlExcerptFor(res.HTML), decision.Intent{
        Topic:         in.Topic,
        TargetSection: in.TargetSection,
        TimeRangeDays: in.TimeRangeDays,
    }, decision.Plan{
        ListingType:    plan.ListingType,
        EstimatedDepth: plan.EstimatedDepth,
    }, depth, decisionLinks)
    if err != nil {
        return nil
    }

    if depth == 0 && pd.Action == decision.ActionExtractContent && pd.ReadyToExtract {
        n.emit(events.TypeNavDirectExtraction, map[string]any{"url": pageURL, "reason": "seed is a self-contained article"})
    }

    switch pd.Action {
    case decision.ActionExtractContent:
        return n.dispatchExtractContent(ctx, pageURL, res.HTML, in, state)
    case decision.ActionExtractLinks:
        return n.dispatchExtractLinks(ctx, pageURL, res.HTML, in, plan, depth, state)
    case decision.ActionNavigateTo:
        return n.dispatchNavigateTo(ctx, pd.TargetURL, in, plan, depth, state)
    default:
        return nil
    }
}

func (n *Navigator) dispatchExtractContent(ctx context.Context, pageURL string, rawHTML []byte, in intent.Intent, state *State) error {
    doc := n.extractPage(rawHTML, pageURL)
    if strings.TrimSpace(doc.Text) == "" {
        return nil
    }
    ac, err := n.ContentExtractor.Extract(ctx, pageURL, rawHTML, doc.Text)
    if err != nil {
        return nil
    }
    if !n.passesTimeWindow(ac, state.CutoffTime) {
        return nil
    }
    if !n.checkTopicRelevance(ctx, ac.Title, ac.Text, in.Topic) {
        return nil
    }
    state.Collected = append(state.Collected, ac)
    n.emit(events.TypeNavExtractionSucc, map[string]any{"url": pageURL})
    return nil
}

func (n *Navigator) dispatchExtractLinks(ctx context.Context, pageURL string, rawHTML []byte, in intent.Intent, plan planner.Plan, depth int, state *State) error {
    n.emit(events.TypeNavExtractingLinks, map[string]any{"url": pageURL, "depth": depth})
    candidates, err := n.LinkExtractor.ExtractLinks(ctx, rawHTML, pageURL, linkextract.Intent{
        Topic:         in.Topic,
        TargetSection: in.TargetSection,
    })
    if err != nil {
        return nil
    }

    n.prefetchCandidates(ctx, candidates, state)

    for _, c := range candidates {
        if len(state.Collected) >= in.MaxArticles {
            return nil
        }
        if err := n.Navigate(ctx, c.URL, in, plan, depth+1, state); err != nil {
            return err
        }
    }
    return nil
}

// prefetchCandidates warms state.Fetched with concurrent fetches of
// candidate links not already visited or fetched, bounded by
// fetch.Client.MaxConcurrent (spec.md §5: "bounded fan-out (recommended
// cap: 5)"). The sequential Navigate recursion in dispatchExtractLinks
// then reads each result from the cache via fetchPage instead of issuing
// a second fetch for the same normalized URL.
func (n *Navigator) prefetchCandidates(ctx context.Context, candidates []linkextract.LinkCandidate, state *State) {
    seen := map[string]struct{}{}
    var toFetch []string
    for _, c := range candidates {
        normURL, err := urlnorm.Normalize(c.URL)
        if err != nil {
            normURL = c.URL
        }
        if _, visited := state.Visited[normURL]; visited {
            continue
        }
        if _, fetched := state.Fetched[normURL]; fetched {
            continue
        }
        if _, dup := seen[normURL]; dup {
            continue
        }
        seen[normURL] = struct{}{}
        toFetch = append(toFetch, c.URL)
    }
    if len(toFetch) == 0 {
        return
    }
    for _, res := range n.Fetcher.GetMany(ctx, toFetch) {
        normURL, err := urlnorm.Normalize(res.URL)
        if err != nil {
            normURL = res.URL
        }
        state.Fetched[normURL] = res
    }
}

func (n *Navigator) dispatchNavigateTo(ctx context.Context, targetURL string, in intent.Intent, plan planner.Plan, depth int, state *State) error {
    if targetURL == "" {
        return nil
    }
    return n.Navigate(ctx, targetURL, in, plan, depth+1, state)
}

// passesTimeWindow enforces the intent's time-range cutoff (spec.md §3):
// articles with an unknown publish date are never excluded by the time
// window, only by an explicit out-of-range date.
func (n *Navigator) passesTimeWindow(ac content.ArticleContent, cutoff time.Time) bool {
    if ac.PublishedDate == nil {
        return true
    }
    return !ac.PublishedDate.Before(cutoff)
}

type llmRelevanceResponse struct {
    Relevant bool `json:"relevant"`
}

// checkTopicRelevance asks the quick-check model whether an already
// date-validated article fits the intent's topic (spec.md §4.8: "date
// validation already occurred — it judges topic fit only"). On a nil
// client, an error, or an unparseable reply it defaults to relevant,
// since this check is advisory and must never be the sole reason a
// legitimate article is dropped.
func (n *Navigator) checkTopicRelevance(ctx context.Context, title, text, topic string) bool {
    if n.RelevanceCheck == nil {
        return true
    }
    system := "An article has already passed date validation; judge only whether it is topically relevant to the given topic. " +
        `Respond with strict JSON only: {"relevant": bool}.`
    excerpt := text
    if len(excerpt) > 1000 {
        excerpt = excerpt[:1000]
    }
    user := fmt.Sprintf("Topic: %s\n\nArticle title: %s\n\nExcerpt:\n%s", topic, title, excerpt)

    resp, err := n.RelevanceCheck.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user},
        },
        Temperature: 0,
    })
    if err != nil {
        return true
    }
    var parsed llmRelevanceResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return true
    }
    return parsed.Relevant
}

func htmlExcerptFor(rawHTML []byte) string {
    sanitized := extract.SanitizeHTML(string(rawHTML))
    if len(sanitized) > htmlExcerptLen {
        return sanitized[:htmlExcerptLen]
    }
    return sanitized
}

func (n *Navigator) emit(eventType string, payload map[string]any) {
    if n.Events != nil {
        n.Events.Emit(eventType, payload)
    }
}
