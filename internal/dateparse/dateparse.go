// Package dateparse determines an article's publication date using a
// three-tier strategy: an LLM asked to read a cleaned excerpt, structured
// page metadata, and finally regex pattern matching, in that order.
package dateparse

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/nyxreach/newsagent/internal/events"
	"github.com/nyxreach/newsagent/internal/llm"
)

// Confidence mirrors the ArticleContent.date_confidence enum from spec.md §3.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Method mirrors ArticleContent.date_extraction_method.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodMetadata Method = "metadata"
	MethodPattern  Method = "pattern"
	MethodNone     Method = "none"
)

// Result is the outcome of Parse: a possibly-nil date, the confidence in it,
// and which tier produced it.
type Result struct {
	Date       *time.Time
	Confidence Confidence
	Method     Method
}

// noneResult leaves the date null with low confidence, as spec.md §4.3
// requires: never silently drop an article for lacking a date.
var noneResult = Result{Confidence: ConfidenceLow, Method: MethodNone}

// Parser runs the three-tier date detection strategy.
type Parser struct {
	// LLM is the smart-tier client used for the primary strategy. When nil
	// the LLM tier is skipped and metadata/regex tiers are tried directly.
	LLM    llm.Client
	Now    func() time.Time
	Events *events.Stream
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Parse determines the publication date for the article at pageURL given
// its raw HTML. Today's date is supplied explicitly to the LLM and regex
// tiers so the model and regexes never have to reason about "now" themselves.
func (p *Parser) Parse(ctx context.Context, pageURL string, rawHTML []byte) Result {
	today := p.now()

	res := p.parse(ctx, pageURL, rawHTML, today)
	p.emit(pageURL, res)
	return res
}

func (p *Parser) parse(ctx context.Context, pageURL string, rawHTML []byte, today time.Time) Result {
	if p.LLM != nil {
		if res, ok := p.viaLLM(ctx, pageURL, rawHTML, today); ok {
			return res
		}
	}
	if res, ok := viaMetadata(rawHTML); ok {
		return res
	}
	if res, ok := viaRegex(rawHTML, today); ok {
		return res
	}
	return noneResult
}

// emit fires date:extracted (spec.md §6), carrying an empty date string when
// no tier succeeded, so the event stream reports every parse attempt, not
// only successful ones.
func (p *Parser) emit(pageURL string, res Result) {
	if p.Events == nil {
		return
	}
	dateStr := ""
	if res.Date != nil {
		dateStr = res.Date.Format("2006-01-02")
	}
	p.Events.Emit(events.TypeDateExtracted, map[string]any{
		"url":        pageURL,
		"date":       dateStr,
		"confidence": string(res.Confidence),
		"method":     string(res.Method),
	})
}

type llmDateResponse struct {
	Date       string  `json:"date"`
	Confidence float64 `json:"confidence"`
}

func (p *Parser) viaLLM(ctx context.Context, pageURL string, rawHTML []byte, today time.Time) (Result, bool) {
	excerpt := excerptFor(rawHTML)
	if excerpt == "" {
		return Result{}, false
	}
	system := fmt.Sprintf(
		"You identify the publication date of a news article. Today's date is %s. "+
			"Respond with strict JSON only: {\"date\": \"YYYY-MM-DD\" or \"null\" or \"unknown\", \"confidence\": 0..1}.",
		today.Format("2006-01-02"))
	user := fmt.Sprintf("URL: %s\n\nHTML excerpt:\n%s", pageURL, excerpt)

	resp, err := p.LLM.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return Result{}, false
	}
	var parsed llmDateResponse
	if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
		return Result{}, false
	}
	if parsed.Date == "" || strings.EqualFold(parsed.Date, "null") || strings.EqualFold(parsed.Date, "unknown") {
		return Result{}, false
	}
	t, err := time.Parse("2006-01-02", parsed.Date)
	if err != nil {
		return Result{}, false
	}
	conf := ConfidenceMedium
	if parsed.Confidence >= 0.75 {
		conf = ConfidenceHigh
	} else if parsed.Confidence < 0.4 {
		conf = ConfidenceLow
	}
	return Result{Date: &t, Confidence: conf, Method: MethodLLM}, true
}

// excerptFor keeps the LLM date-detection prompt small: the first 4000 bytes
// of raw HTML, where head metadata and bylines usually live.
func excerptFor(rawHTML []byte) string {
	max := 4000
	if len(rawHTML) < max {
		return string(rawHTML)
	}
	return string(rawHTML[:max])
}

// viaMetadata scans for JSON-LD datePublished, OpenGraph
// article:published_time, <time datetime>, and <meta name="date">.
func viaMetadata(rawHTML []byte) (Result, bool) {
	node, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil || node == nil {
		return Result{}, false
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "meta":
				name, content := "", ""
				for _, a := range n.Attr {
					switch strings.ToLower(a.Key) {
					case "property":
						if strings.EqualFold(a.Val, "article:published_time") {
							name = a.Val
						}
					case "name":
						if strings.EqualFold(a.Val, "date") || strings.EqualFold(a.Val, "pubdate") {
							name = a.Val
						}
					case "content":
						content = a.Val
					}
				}
				if name != "" && content != "" {
					found = content
					return
				}
			case "time":
				for _, a := range n.Attr {
					if strings.EqualFold(a.Key, "datetime") && a.Val != "" {
						found = a.Val
						return
					}
				}
			case "script":
				isLD := false
				for _, a := range n.Attr {
					if strings.EqualFold(a.Key, "type") && strings.EqualFold(a.Val, "application/ld+json") {
						isLD = true
					}
				}
				if isLD && n.FirstChild != nil {
					if v := extractDatePublishedFromJSONLD(n.FirstChild.Data); v != "" {
						found = v
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil && found == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	if found == "" {
		return Result{}, false
	}
	t, err := dateparse.ParseAny(found)
	if err != nil {
		return Result{}, false
	}
	return Result{Date: &t, Confidence: ConfidenceHigh, Method: MethodMetadata}, true
}

var jsonLDDatePattern = regexp.MustCompile(`"datePublished"\s*:\s*"([^"]+)"`)

func extractDatePublishedFromJSONLD(raw string) string {
	m := jsonLDDatePattern.FindStringSubmatch(raw)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

var relativePattern = regexp.MustCompile(`(?i)\b(\d+)\s*(hour|hours|day|days|week|weeks)\s+ago\b`)
var todayYesterdayPattern = regexp.MustCompile(`(?i)\b(today|yesterday)\b`)

// viaRegex matches relative phrases ("3 days ago", "yesterday") and common
// absolute date formats against the page's raw HTML, markup included.
func viaRegex(rawHTML []byte, today time.Time) (Result, bool) {
	text := string(rawHTML)

	if m := relativePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			unit := strings.ToLower(m[2])
			var d time.Duration
			switch {
			case strings.HasPrefix(unit, "hour"):
				d = time.Duration(n) * time.Hour
			case strings.HasPrefix(unit, "day"):
				d = time.Duration(n) * 24 * time.Hour
			case strings.HasPrefix(unit, "week"):
				d = time.Duration(n) * 7 * 24 * time.Hour
			}
			t := today.Add(-d)
			return Result{Date: &t, Confidence: ConfidenceMedium, Method: MethodPattern}, true
		}
	}
	if m := todayYesterdayPattern.FindStringSubmatch(text); m != nil {
		t := today
		if strings.EqualFold(m[1], "yesterday") {
			t = today.Add(-24 * time.Hour)
		}
		return Result{Date: &t, Confidence: ConfidenceMedium, Method: MethodPattern}, true
	}

	if t, err := dateparse.ParseAny(firstPlausibleDateToken(text)); err == nil && !t.IsZero() {
		return Result{Date: &t, Confidence: ConfidenceLow, Method: MethodPattern}, true
	}
	return Result{}, false
}

var absoluteDateToken = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b[A-Z][a-z]{2,8}\s+\d{1,2},\s*\d{4}\b`)

func firstPlausibleDateToken(text string) string {
	return absoluteDateToken.FindString(text)
}
