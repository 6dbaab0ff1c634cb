// Package decision implements the Page Decision component (spec.md §4.5):
// the LLM call that chooses whether to extract an article, extract links,
// navigate to another page, or stop, with depth and link-set safety rules
// enforced in code regardless of what the model returns.
package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyxreach/newsagent/internal/events"
	"github.com/nyxreach/newsagent/internal/llm"
)

// Action is one of the four moves the navigator can make for a page.
type Action string

const (
	ActionExtractContent Action = "EXTRACT_CONTENT"
	ActionExtractLinks   Action = "EXTRACT_LINKS"
	ActionNavigateTo     Action = "NAVIGATE_TO"
	ActionStop           Action = "STOP"
)

// PageType classifies the shape of a page, used to bias the decision prompt
// and inform the navigator's listing-preference heuristic.
type PageType string

const (
	PageTypeArticle        PageType = "article"
	PageTypeForumThread    PageType = "forum_thread"
	PageTypeForumListing   PageType = "forum_listing"
	PageTypeNewsListing    PageType = "news_listing"
	PageTypeCompanyProfile PageType = "company_profile"
	PageTypeBlogListing    PageType = "blog_listing"
	PageTypeOther          PageType = "other"
)

// Link is one anchor on the current page, available to the model as the
// constrained set a NAVIGATE_TO target must belong to.
type Link struct {
	AnchorText string
	URL        string
}

// Intent is the minimal slice of the intent struct the decision prompt
// needs; the full type lives in internal/intent to avoid an import cycle.
type Intent struct {
	Topic         string
	TargetSection string
	TimeRangeDays int
}

// Plan is the minimal slice of the planner's output the decision prompt
// uses; the full type lives in internal/planner.
type Plan struct {
	ListingType    string
	EstimatedDepth int
}

// PageDecision is the outcome of Decide, after depth and link-set rules
// have been applied.
type PageDecision struct {
	Action     Action
	Reasoning  string
	Confidence float64
	PageType   PageType
	// TargetURL is only meaningful when Action == ActionNavigateTo.
	TargetURL string
	// ReadyToExtract signals, for EXTRACT_CONTENT at depth 0, that the seed
	// itself is the article so the navigator can short-circuit listing
	// logic entirely (spec.md §4.5 "Direct-extraction short-circuit").
	ReadyToExtract bool
}

// Decider calls the smart model to choose a page action and enforces the
// depth-rule table and link-set validity in code afterward.
type Decider struct {
	LLM    llm.Client
	Events *events.Stream
}

type llmDecisionResponse struct {
	Action         string  `json:"action"`
	Reasoning      string  `json:"reasoning"`
	Confidence     float64 `json:"confidence"`
	PageType       string  `json:"page_type"`
	TargetURL      string  `json:"target_url"`
	ReadyToExtract bool    `json:"ready_to_extract"`
}

// Decide implements decide(url, html, intent, plan, depth, available_links)
// → PageDecision from spec.md §4.5.
func (d *Decider) Decide(ctx context.Context, pageURL string, htmlExcerpt string, intent Intent, plan Plan, depth int, availableLinks []Link) (PageDecision, error) {
	if d.LLM == nil {
		return PageDecision{}, fmt.Errorf("decision: no LLM configured")
	}

	system := buildSystemPrompt(depth, plan)
	user := buildUserPrompt(pageURL, htmlExcerpt, intent, depth, availableLinks)

	resp, err := d.LLM.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return PageDecision{}, fmt.Errorf("decision: llm call: %w", err)
	}

	var parsed llmDecisionResponse
	if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
		return PageDecision{}, fmt.Errorf("decision: parse response: %w", err)
	}

	pd := PageDecision{
		Action:         Action(strings.ToUpper(strings.TrimSpace(parsed.Action))),
		Reasoning:      strings.TrimSpace(parsed.Reasoning),
		Confidence:     clamp01(parsed.Confidence),
		PageType:       PageType(strings.ToLower(strings.TrimSpace(parsed.PageType))),
		TargetURL:      strings.TrimSpace(parsed.TargetURL),
		ReadyToExtract: parsed.ReadyToExtract,
	}

	pd = enforceLinkSetValidity(pd, availableLinks)
	pd = enforceDepthRules(pd, depth)

	d.emit(pageURL, depth, pd)
	return pd, nil
}

// enforceLinkSetValidity downgrades NAVIGATE_TO to STOP when the chosen
// target_url is not a member of the page's actual link set (spec.md §4.5).
func enforceLinkSetValidity(pd PageDecision, links []Link) PageDecision {
	if pd.Action != ActionNavigateTo {
		return pd
	}
	for _, l := range links {
		if l.URL == pd.TargetURL {
			return pd
		}
	}
	pd.Action = ActionStop
	pd.TargetURL = ""
	pd.Reasoning = "downgraded to STOP: target_url not in available link set"
	return pd
}

// enforceDepthRules applies spec.md §4.5's depth-rule table in code,
// overriding the model regardless of what it chose.
func enforceDepthRules(pd PageDecision, depth int) PageDecision {
	if depth >= 2 {
		switch pd.Action {
		case ActionExtractLinks, ActionNavigateTo:
			pd.Action = ActionStop
			pd.TargetURL = ""
			pd.Reasoning = "forced to STOP: depth >= 2 disallows further navigation"
		}
	}
	return pd
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

func buildSystemPrompt(depth int, plan Plan) string {
	var b strings.Builder
	b.WriteString("You decide what to do with a web page during a bounded news-gathering crawl. ")
	b.WriteString("Respond with strict JSON only, no narration. The schema is ")
	b.WriteString(`{"action": "EXTRACT_CONTENT"|"EXTRACT_LINKS"|"NAVIGATE_TO"|"STOP", "reasoning": string, "confidence": 0..1, "page_type": "article"|"forum_thread"|"forum_listing"|"news_listing"|"company_profile"|"blog_listing"|"other", "target_url": string (only for NAVIGATE_TO, must be copied exactly from the supplied link list), "ready_to_extract": bool}. `)
	b.WriteString("Choose exactly one action. ")
	if depth == 0 {
		b.WriteString("This is the seed page. If it is a self-contained article, prefer EXTRACT_CONTENT with ready_to_extract=true. If it is a listing page with multiple article-shaped links, prefer EXTRACT_LINKS over navigating elsewhere. ")
	}
	if depth >= 2 {
		b.WriteString("This page is at the maximum navigation depth: EXTRACT_LINKS and NAVIGATE_TO will be forced to STOP regardless of your choice, so only EXTRACT_CONTENT or STOP are meaningful. ")
	}
	if plan.ListingType != "" {
		b.WriteString(fmt.Sprintf("The plan predicts this site's listing type is %q. ", plan.ListingType))
	}
	return b.String()
}

func buildUserPrompt(pageURL, htmlExcerpt string, intent Intent, depth int, links []Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nDepth: %d\n", pageURL, depth)
	fmt.Fprintf(&b, "Intent topic: %s\n", intent.Topic)
	if intent.TargetSection != "" {
		fmt.Fprintf(&b, "Intent target section: %s\n", intent.TargetSection)
	}
	fmt.Fprintf(&b, "Intent time range (days): %d\n", intent.TimeRangeDays)

	b.WriteString("\nAvailable links (target_url must be copied exactly from this list):\n")
	for i, l := range links {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, l.AnchorText, l.URL)
	}

	b.WriteString("\nPage HTML excerpt:\n")
	b.WriteString(htmlExcerpt)
	return b.String()
}

func (d *Decider) emit(pageURL string, depth int, pd PageDecision) {
	if d.Events == nil {
		return
	}
	d.Events.Emit(events.TypeNavDecision, map[string]any{
		"url":         pageURL,
		"depth":       depth,
		"action":      string(pd.Action),
		"page_type":   string(pd.PageType),
		"confidence":  pd.Confidence,
		"target_url":  pd.TargetURL,
	})
}
