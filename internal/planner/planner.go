package planner

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/rs/zerolog/log"

    "github.com/nyxreach/newsagent/internal/cache"
    "github.com/nyxreach/newsagent/internal/intent"
    "github.com/nyxreach/newsagent/internal/llm"
)

// maxAdvisoryDepth bounds what the planner itself will ever propose; the
// navigator's own depth-rule enforcement is the actual safety bound
// (spec.md §4.11: "never exceeds system-level depth ceiling").
const maxAdvisoryDepth = 2

// Plan is strategic guidance for the navigator (spec.md §3 "Plan"). It is
// advisory only: the navigator never lets it override safety bounds.
type Plan struct {
    ListingType        string   `json:"listing_type"`
    EstimatedDepth      int      `json:"estimated_depth"`
    SuccessCriteria     []string `json:"success_criteria"`
    FallbackStrategies  []string `json:"fallback_strategies"`
}

// Planner produces a Plan from a parsed intent and the run's seed URLs.
type Planner interface {
    Plan(ctx context.Context, in intent.Intent, seedURLs []string) (Plan, error)
}

// LLMPlanner calls the smart model and enforces a JSON-only contract.
type LLMPlanner struct {
    Client  llm.Client
    Model   string
    Cache   *cache.LLMCache
    Verbose bool
    // CacheOnly, when true, returns from cache and fails fast if missing.
    CacheOnly bool
}

type llmPlanResponse struct {
    ListingType        string   `json:"listing_type"`
    EstimatedDepth      int      `json:"estimated_depth"`
    SuccessCriteria     []string `json:"success_criteria"`
    FallbackStrategies  []string `json:"fallback_strategies"`
}

func buildSystemMessage() string {
    return "You are a planning assistant for a bounded news-gathering crawl. Given a parsed intent and seed URL(s), predict the seed's listing type and whether it already is a listing page (typical depth=1) or needs one navigation hop first (depth=2). " +
        `Respond with strict JSON only: {"listing_type": string, "estimated_depth": 1 or 2, "success_criteria": string[], "fallback_strategies": string[]}. ` +
        "Never propose a depth above 2."
}

func buildUserPrompt(in intent.Intent, seedURLs []string) string {
    var sb strings.Builder
    sb.WriteString("Intent topic: ")
    sb.WriteString(in.Topic)
    if in.TargetSection != "" {
        sb.WriteString("\nTarget section: ")
        sb.WriteString(in.TargetSection)
    }
    sb.WriteString(fmt.Sprintf("\nTime range (days): %d", in.TimeRangeDays))
    sb.WriteString(fmt.Sprintf("\nMax articles: %d", in.MaxArticles))
    sb.WriteString("\nSeed URLs:")
    for _, u := range seedURLs {
        sb.WriteString("\n- ")
        sb.WriteString(u)
    }
    return sb.String()
}

// Plan implements Planner using the configured LLM client. If the model
// returns non-JSON or the payload cannot be parsed, an error is returned so
// callers can fall back to FallbackPlanner.
func (p *LLMPlanner) Plan(ctx context.Context, in intent.Intent, seedURLs []string) (Plan, error) {
    if p.Client == nil || p.Model == "" {
        return Plan{}, errors.New("planner not configured")
    }

    system := buildSystemMessage()
    user := buildUserPrompt(in, seedURLs)

    if p.Cache != nil {
        key := cache.KeyFrom(p.Model, system+"\n\n"+user)
        if raw, ok, _ := p.Cache.Get(ctx, key); ok {
            var plan Plan
            if err := json.Unmarshal(raw, &plan); err == nil {
                return plan, nil
            }
        }
    }
    if p.CacheOnly {
        return Plan{}, errors.New("planner cache-only: not found")
    }
    if p.Verbose {
        log.Debug().Str("stage", "planner").Str("model", p.Model).Int("system_len", len(system)).Int("user_len", len(user)).Msg("planner prompt")
    }

    resp, err := p.Client.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user},
        },
        Temperature: 0.1,
    })
    if err != nil {
        return Plan{}, fmt.Errorf("planner call: %w", err)
    }

    var parsed llmPlanResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return Plan{}, fmt.Errorf("parse planner json: %w", err)
    }

    plan := Plan{
        ListingType:       strings.TrimSpace(parsed.ListingType),
        EstimatedDepth:    clampDepth(parsed.EstimatedDepth),
        SuccessCriteria:   sanitizeStrings(parsed.SuccessCriteria),
        FallbackStrategies: sanitizeStrings(parsed.FallbackStrategies),
    }
    if len(plan.SuccessCriteria) == 0 {
        return Plan{}, errors.New("insufficient planner output")
    }

    if p.Cache != nil {
        if b, err := json.Marshal(plan); err == nil {
            _ = p.Cache.Save(ctx, cache.KeyFrom(p.Model, system+"\n\n"+user), b)
        }
    }
    return plan, nil
}

// FallbackPlanner produces a deterministic plan when the LLM planner is
// unavailable or returns invalid output.
type FallbackPlanner struct{}

func (p *FallbackPlanner) Plan(_ context.Context, in intent.Intent, _ []string) (Plan, error) {
    criteria := []string{
        fmt.Sprintf("collect up to %d articles matching %q", in.MaxArticles, in.Topic),
        fmt.Sprintf("restrict to the last %d days", in.TimeRangeDays),
    }
    if in.TargetSection != "" {
        criteria = append(criteria, fmt.Sprintf("prefer the %q section", in.TargetSection))
    }
    return Plan{
        ListingType:    "unknown",
        EstimatedDepth: 1,
        SuccessCriteria: criteria,
        FallbackStrategies: []string{
            "if the seed is not a listing, treat it as a standalone article",
            "if no article-shaped links are found, stop rather than guess",
        },
    }, nil
}

func clampDepth(d int) int {
    if d < 1 {
        return 1
    }
    if d > maxAdvisoryDepth {
        return maxAdvisoryDepth
    }
    return d
}

func sanitizeStrings(in []string) []string {
    out := make([]string, 0, len(in))
    seen := map[string]struct{}{}
    for _, s := range in {
        t := strings.TrimSpace(s)
        if t == "" {
            continue
        }
        key := strings.ToLower(t)
        if _, ok := seen[key]; ok {
            continue
        }
        seen[key] = struct{}{}
        out = append(out, t)
    }
    return out
}
