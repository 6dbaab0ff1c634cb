package dateparse

import (
	"context"
	"testing"
	"time"

	"github.com/nyxreach/newsagent/internal/llm"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestParse_JSONLD_DatePublished(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type":"NewsArticle","datePublished":"2026-07-20T10:00:00Z"}</script>
	</head><body><p>Some article body.</p></body></html>`

	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/a", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected metadata method, got %v", res.Method)
	}
	if res.Date == nil || res.Date.Year() != 2026 || res.Date.Month() != 7 || res.Date.Day() != 20 {
		t.Fatalf("expected 2026-07-20, got %v", res.Date)
	}
	if res.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence, got %v", res.Confidence)
	}
}

func TestParse_OpenGraphPublishedTime(t *testing.T) {
	html := `<html><head>
		<meta property="article:published_time" content="2026-06-01" />
	</head><body><p>Body</p></body></html>`

	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/b", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected metadata method, got %v", res.Method)
	}
	if res.Date == nil || res.Date.Month() != 6 {
		t.Fatalf("expected June date, got %v", res.Date)
	}
}

func TestParse_TimeElementDatetime(t *testing.T) {
	html := `<html><body><time datetime="2026-05-15">May 15</time><p>Body text</p></body></html>`

	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/c", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected metadata method, got %v", res.Method)
	}
	if res.Date == nil || res.Date.Day() != 15 {
		t.Fatalf("expected day 15, got %v", res.Date)
	}
}

func TestParse_MetaNameDate(t *testing.T) {
	html := `<html><head><meta name="date" content="2026-01-02"></head><body><p>x</p></body></html>`
	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/d", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected metadata method, got %v", res.Method)
	}
}

func TestParse_RelativePhraseDaysAgo(t *testing.T) {
	html := `<html><body><p>Published 3 days ago by staff writer.</p></body></html>`
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	p := &Parser{Now: fixedNow(now)}
	res := p.Parse(context.Background(), "https://example.com/e", []byte(html))
	if res.Method != MethodPattern {
		t.Fatalf("expected pattern method, got %v", res.Method)
	}
	want := now.Add(-3 * 24 * time.Hour)
	if res.Date == nil || !res.Date.Equal(want) {
		t.Fatalf("expected %v, got %v", want, res.Date)
	}
	if res.Confidence != ConfidenceMedium {
		t.Fatalf("expected medium confidence, got %v", res.Confidence)
	}
}

func TestParse_RelativePhraseYesterday(t *testing.T) {
	html := `<html><body><p>Posted yesterday afternoon.</p></body></html>`
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	p := &Parser{Now: fixedNow(now)}
	res := p.Parse(context.Background(), "https://example.com/f", []byte(html))
	if res.Method != MethodPattern {
		t.Fatalf("expected pattern method, got %v", res.Method)
	}
	want := now.Add(-24 * time.Hour)
	if res.Date == nil || !res.Date.Equal(want) {
		t.Fatalf("expected %v, got %v", want, res.Date)
	}
}

func TestParse_AbsoluteDateInText(t *testing.T) {
	html := `<html><body><p>This was reported on 2026-03-10 by local media.</p></body></html>`
	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/g", []byte(html))
	if res.Method != MethodPattern {
		t.Fatalf("expected pattern method, got %v", res.Method)
	}
	if res.Date == nil || res.Date.Month() != 3 || res.Date.Day() != 10 {
		t.Fatalf("expected 2026-03-10, got %v", res.Date)
	}
	if res.Confidence != ConfidenceLow {
		t.Fatalf("expected low confidence for bare regex match, got %v", res.Confidence)
	}
}

func TestParse_NoDateFound_ReturnsLowConfidenceNone(t *testing.T) {
	html := `<html><body><p>No temporal markers here at all.</p></body></html>`
	p := &Parser{Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))}
	res := p.Parse(context.Background(), "https://example.com/h", []byte(html))
	if res.Method != MethodNone {
		t.Fatalf("expected none method, got %v", res.Method)
	}
	if res.Date != nil {
		t.Fatalf("expected nil date, got %v", res.Date)
	}
	if res.Confidence != ConfidenceLow {
		t.Fatalf("expected low confidence, got %v", res.Confidence)
	}
}

// fakeLLM is a scripted llm.Client used to exercise the LLM tier without a
// real provider.
type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content}, nil
}

func TestParse_LLMTierTakesPrecedence(t *testing.T) {
	html := `<html><head>
		<meta property="article:published_time" content="2026-06-01" />
	</head><body><p>Body text long enough to pass the excerpt threshold check easily.</p></body></html>`

	p := &Parser{
		LLM: &fakeLLM{content: `{"date": "2026-07-29", "confidence": 0.9}`},
		Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)),
	}
	res := p.Parse(context.Background(), "https://example.com/i", []byte(html))
	if res.Method != MethodLLM {
		t.Fatalf("expected llm method to take precedence, got %v", res.Method)
	}
	if res.Date == nil || res.Date.Day() != 29 {
		t.Fatalf("expected day 29, got %v", res.Date)
	}
	if res.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence for 0.9, got %v", res.Confidence)
	}
}

func TestParse_LLMTierFallsBackToMetadataWhenUnknown(t *testing.T) {
	html := `<html><head>
		<meta property="article:published_time" content="2026-06-01" />
	</head><body><p>Body</p></body></html>`

	p := &Parser{
		LLM: &fakeLLM{content: `{"date": "unknown", "confidence": 0}`},
		Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)),
	}
	res := p.Parse(context.Background(), "https://example.com/j", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected fallback to metadata, got %v", res.Method)
	}
}

func TestParse_LLMErrorFallsBackToMetadata(t *testing.T) {
	html := `<html><body><time datetime="2026-02-02">Feb 2</time><p>Body</p></body></html>`
	p := &Parser{
		LLM: &fakeLLM{err: context.DeadlineExceeded},
		Now: fixedNow(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)),
	}
	res := p.Parse(context.Background(), "https://example.com/k", []byte(html))
	if res.Method != MethodMetadata {
		t.Fatalf("expected fallback to metadata on llm error, got %v", res.Method)
	}
}
