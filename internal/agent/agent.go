// Package agent implements the run entrypoint (spec.md §6 "Run invocation"):
// the only method the surrounding system calls, sequencing Intent → Plan →
// Navigate(seeds) → Deduplicate → Reflect → Summarize and returning a
// well-formed SummaryResult even when the run fails partway through.
package agent

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/nyxreach/newsagent/internal/cache"
    "github.com/nyxreach/newsagent/internal/content"
    "github.com/nyxreach/newsagent/internal/dateparse"
    "github.com/nyxreach/newsagent/internal/decision"
    "github.com/nyxreach/newsagent/internal/dedup"
    "github.com/nyxreach/newsagent/internal/events"
    "github.com/nyxreach/newsagent/internal/fetch"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/linkextract"
    "github.com/nyxreach/newsagent/internal/llm"
    "github.com/nyxreach/newsagent/internal/navigator"
    "github.com/nyxreach/newsagent/internal/planner"
    "github.com/nyxreach/newsagent/internal/reflect"
    "github.com/nyxreach/newsagent/internal/robots"
    "github.com/nyxreach/newsagent/internal/summarize"
    "github.com/nyxreach/newsagent/internal/validate"
)

// Sentinel errors matching spec.md §6's "Error modes" for Run invocation.
// Everything else recoverable is absorbed locally (spec.md §7).
var (
    ErrInvalidInput     = errors.New("invalid_input")
    ErrLLMUnavailable   = errors.New("llm_unavailable")
    ErrAllFetchesFailed = errors.New("all_fetches_failed")
    ErrCancelled        = errors.New("cancelled")
)

// Config is the immutable per-run configuration an Agent is built from.
// Unlike the teacher's package-global app.Config, one Config backs exactly
// one run: nothing here is shared mutable state across concurrent runs.
type Config struct {
    // Proxy is the external unblocking-proxy collaborator (spec.md §6); the
    // core never implements fetching itself.
    Proxy fetch.Proxy

    FastLLM      llm.Client // classification, relevance, validation tier
    SmartLLM     llm.Client // decision, extraction, summarization tier
    SmartModel   string     // name of the model backing SmartLLM, for budgeting and provenance
    FastModel    string     // name of the model backing FastLLM

    UserAgent     string
    CacheDir      string
    MaxConcurrent int

    // RenderPDF, when true, additionally renders the final SummaryResult to
    // a PDF sidecar alongside the markdown (supplemented feature).
    RenderPDF    bool
    PDFOutPath   string
    ManifestPath string

    Events *events.Stream
    Now    func() time.Time
}

func (c Config) now() time.Time {
    if c.Now != nil {
        return c.Now()
    }
    return time.Now().UTC()
}

// Agent wires every component named in spec.md §2 for a single run.
type Agent struct {
    cfg Config

    intentExtractor *intent.Extractor
    llmPlanner      *planner.LLMPlanner
    fallbackPlanner *planner.FallbackPlanner
    nav             *navigator.Navigator
    dedup           *dedup.Deduplicator
    reflector       *reflect.Reflector
    summarizer      *summarize.Summarizer
}

// New builds an Agent from cfg, wiring the fetch client (cache, robots
// policy, circuit breaker), the decision/link/content/date/validate
// components the navigator depends on, and the planner/dedup/reflect/
// summarize stages, mirroring internal/app.New's wiring order.
func New(cfg Config) *Agent {
    var httpCache *cache.HTTPCache
    if cfg.CacheDir != "" {
        httpCache = &cache.HTTPCache{Dir: cfg.CacheDir}
    }
    var llmCache *cache.LLMCache
    if cfg.CacheDir != "" {
        llmCache = &cache.LLMCache{Dir: cfg.CacheDir}
    }

    fetcher := &fetch.Client{
        Proxy:         cfg.Proxy,
        UserAgent:     cfg.UserAgent,
        Cache:         httpCache,
        Robots:        &robots.Manager{UserAgent: cfg.UserAgent, Cache: httpCache},
        Events:        cfg.Events,
        MaxConcurrent: cfg.MaxConcurrent,
    }

    dateParser := &dateparse.Parser{LLM: cfg.SmartLLM, Now: cfg.Now, Events: cfg.Events}
    articleValidator := &validate.ArticleValidator{LLM: cfg.FastLLM}
    contentExtractor := &content.Extractor{
        LLM:       cfg.SmartLLM,
        Model:     cfg.SmartModel,
        DateParse: dateParser,
        Validator: articleValidator,
        Now:       cfg.Now,
    }
    linkExtractor := &linkextract.Extractor{Classify: cfg.FastLLM, Rank: cfg.FastLLM}
    decider := &decision.Decider{LLM: cfg.SmartLLM, Events: cfg.Events}

    nav := &navigator.Navigator{
        Fetcher:          fetcher,
        LinkExtractor:    linkExtractor,
        Decider:          decider,
        ContentExtractor: contentExtractor,
        RelevanceCheck:   cfg.FastLLM,
        Events:           cfg.Events,
        Now:              cfg.Now,
    }

    var llmPlanner *planner.LLMPlanner
    if cfg.SmartLLM != nil {
        llmPlanner = &planner.LLMPlanner{Client: cfg.SmartLLM, Model: cfg.SmartModel, Cache: llmCache}
    }

    return &Agent{
        cfg:             cfg,
        intentExtractor: &intent.Extractor{LLM: cfg.SmartLLM},
        llmPlanner:      llmPlanner,
        fallbackPlanner: &planner.FallbackPlanner{},
        nav:             nav,
        dedup:           &dedup.Deduplicator{LLM: cfg.FastLLM},
        reflector:       &reflect.Reflector{LLM: cfg.FastLLM, Events: cfg.Events},
        summarizer:      &summarize.Summarizer{LLM: cfg.SmartLLM, Model: cfg.SmartModel, Events: cfg.Events},
    }
}

// Run executes the full pipeline for prompt + seedURLs (spec.md §6's "Run
// invocation"). maxArticlesOverride, when > 0, overrides the intent
// extractor's parsed max_articles (spec.md §6: "optional max_articles:
// int"). It always returns a well-formed SummaryResult on success or
// run-level degradation; the error kinds that escape are invalid_input,
// llm_unavailable (intent extraction failed) and cancelled.
func (a *Agent) Run(ctx context.Context, prompt string, seedURLs []string, maxArticlesOverride int) (summarize.SummaryResult, error) {
    runID := uuid.NewString()
    log.Info().Str("run_id", runID).Int("seed_count", len(seedURLs)).Msg("run starting")

    if strings.TrimSpace(prompt) == "" || len(seedURLs) == 0 {
        a.emit(events.TypeError, map[string]any{"error": ErrInvalidInput.Error()})
        return summarize.SummaryResult{}, fmt.Errorf("%w: prompt and at least one seed URL are required", ErrInvalidInput)
    }

    a.emit(events.TypeInit, map[string]any{"prompt": prompt, "seed_count": len(seedURLs)})

    in, err := a.intentExtractor.Extract(ctx, prompt)
    if err != nil {
        if ctx.Err() != nil {
            return summarize.SummaryResult{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
        }
        return summarize.SummaryResult{}, fmt.Errorf("%w: intent extraction: %v", ErrLLMUnavailable, err)
    }
    if maxArticlesOverride > 0 {
        in.MaxArticles = maxArticlesOverride
    }
    a.emit(events.TypeIntentExtracted, map[string]any{"intent": in})

    plan := a.plan(ctx, in, seedURLs)
    a.emit(events.TypePlanCreated, map[string]any{"plan": plan})

    state := navigator.NewState(a.cfg.now(), in.TimeRangeDays)
    for _, seed := range seedURLs {
        if ctx.Err() != nil {
            return a.degrade(ctx, runID, in, state, ErrCancelled)
        }
        if len(state.Collected) >= in.MaxArticles {
            break
        }
        if err := a.nav.RunSeed(ctx, seed, in, plan, state); err != nil {
            log.Warn().Err(err).Str("seed", seed).Msg("seed navigation failed")
        }
    }

    if len(state.Collected) == 0 {
        return a.degrade(ctx, runID, in, state, ErrAllFetchesFailed)
    }

    a.emit(events.TypeDedupStart, map[string]any{"count": len(state.Collected)})
    deduped, err := a.dedup.Dedupe(ctx, toDedupArticles(state.Collected))
    if err != nil {
        log.Warn().Err(err).Msg("dedup failed; continuing with pre-dedup set")
        deduped = toDedupArticles(state.Collected)
    }
    collected := reconcileDeduped(state.Collected, deduped)
    a.emit(events.TypeDedupComplete, map[string]any{"unique_count": len(collected)})

    reflection := a.reflector.Reflect(ctx, collected, in)
    _ = reflection // already emitted by Reflector

    a.emit(events.TypeSummarizeStart, map[string]any{"items_count": len(collected)})
    result := a.summarizer.Summarize(ctx, collected, in)

    if a.cfg.ManifestPath != "" {
        result.SummaryMarkdown = AppendManifestSection(result.SummaryMarkdown, runID, BuildManifest(collected))
    }
    if a.cfg.RenderPDF && a.cfg.PDFOutPath != "" {
        if err := RenderPDF(result.SummaryMarkdown, a.cfg.PDFOutPath); err != nil {
            log.Warn().Err(err).Msg("pdf render failed; continuing with markdown only")
        }
    }

    a.emit(events.TypeComplete, map[string]any{"data": result})
    return result, nil
}

// plan uses the LLM planner with a deterministic fallback, mirroring
// internal/app.App.planQueries's facade.
func (a *Agent) plan(ctx context.Context, in intent.Intent, seedURLs []string) planner.Plan {
    if a.llmPlanner != nil {
        if p, err := a.llmPlanner.Plan(ctx, in, seedURLs); err == nil {
            return p
        } else {
            log.Warn().Err(err).Msg("planner failed, using fallback")
        }
    }
    p, _ := a.fallbackPlanner.Plan(ctx, in, seedURLs)
    return p
}

// degrade builds the run-level failure SummaryResult spec.md §7 requires:
// well-formed, empty citations, a summary explaining the failure. It emits
// `error` followed by `complete` as the event taxonomy mandates.
func (a *Agent) degrade(ctx context.Context, runID string, in intent.Intent, state *navigator.State, cause error) (summarize.SummaryResult, error) {
    a.emit(events.TypeError, map[string]any{"error": cause.Error()})
    result := summarize.SummaryResult{
        SummaryMarkdown: fmt.Sprintf("# %s\n\nNo articles could be collected for this run (%s).\n", strings.TrimSpace(in.Topic), cause.Error()),
    }
    a.emit(events.TypeComplete, map[string]any{"data": result})
    if errors.Is(cause, ErrCancelled) {
        return result, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
    }
    return result, nil
}

func (a *Agent) emit(eventType string, payload map[string]any) {
    if a.cfg.Events != nil {
        a.cfg.Events.Emit(eventType, payload)
    }
}

func toDedupArticles(collected []content.ArticleContent) []dedup.Article {
    out := make([]dedup.Article, len(collected))
    for i, c := range collected {
        out[i] = dedup.Article{URL: c.URL, Title: c.Title, Text: c.Text, FetchedAt: c.FetchedAt}
    }
    return out
}

// reconcileDeduped maps the deduped dedup.Article set back to the full
// content.ArticleContent records (by URL) so dedup's exact+semantic phases
// can run over the smaller Article projection without losing the richer
// fields the summarizer and manifest need.
func reconcileDeduped(original []content.ArticleContent, deduped []dedup.Article) []content.ArticleContent {
    byURL := make(map[string]content.ArticleContent, len(original))
    for _, c := range original {
        byURL[c.URL] = c
    }
    out := make([]content.ArticleContent, 0, len(deduped))
    for _, d := range deduped {
        if c, ok := byURL[d.URL]; ok {
            out = append(out, c)
        }
    }
    return out
}
