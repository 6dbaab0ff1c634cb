package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nyxreach/newsagent/internal/agent"
	"github.com/nyxreach/newsagent/internal/cache"
	"github.com/nyxreach/newsagent/internal/llm"
)

// seedList collects repeated -seed flags into a slice, since the standard
// flag package has no built-in repeatable string flag.
type seedList []string

func (s *seedList) String() string { return strings.Join(*s, ",") }

func (s *seedList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// firstNonEmpty returns the first non-empty string, letting a config-file
// value fall through to an environment-variable default.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// A -config file is pre-scanned with its own flag set so its values can
	// seed the main flag set's defaults before flag.Parse runs; any flag the
	// caller passes explicitly still wins, since flag.Parse applies last.
	var configPath string
	pre := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	pre.StringVar(&configPath, "config", "", "")
	pre.SetOutput(io.Discard)
	_ = pre.Parse(os.Args[1:])

	fc, err := loadFileConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config file")
		os.Exit(1)
	}

	var (
		prompt        string
		seeds         seedList
		outputPath    string
		fastBaseURL   string
		fastModel     string
		fastKey       string
		smartKey      string
		smartModel    string
		maxArticles   int
		cacheDir      string
		userAgent     string
		renderPDF     bool
		pdfOutPath    string
		manifestPath  string
		verbose       bool
		cacheMaxAge   time.Duration
		cacheMaxMB    int64
		cacheMaxFiles int
		cachePurge    bool
	)

	flag.StringVar(&configPath, "config", configPath, "Optional YAML file overlaying flag defaults")
	flag.StringVar(&prompt, "prompt", fc.Prompt, "Free-form research prompt describing what to collect")
	seeds = fc.Seeds
	flag.Var(&seeds, "seed", "Seed URL to navigate from (repeatable); adds to any seeds already in -config")
	flag.StringVar(&outputPath, "output", firstNonEmpty(fc.Output, "summary.md"), "Path to write the final Markdown summary")
	flag.StringVar(&fastBaseURL, "fast.base", firstNonEmpty(fc.Fast.Base, os.Getenv("FAST_LLM_BASE_URL")), "OpenAI-compatible base URL for the fast tier")
	flag.StringVar(&fastModel, "fast.model", firstNonEmpty(fc.Fast.Model, os.Getenv("FAST_LLM_MODEL")), "Model name for the fast tier")
	flag.StringVar(&fastKey, "fast.key", firstNonEmpty(fc.Fast.Key, os.Getenv("FAST_LLM_API_KEY")), "API key for the fast tier")
	flag.StringVar(&smartModel, "smart.model", firstNonEmpty(fc.Smart.Model, os.Getenv("SMART_LLM_MODEL")), "Model name for the smart tier (Anthropic)")
	flag.StringVar(&smartKey, "smart.key", firstNonEmpty(fc.Smart.Key, os.Getenv("SMART_LLM_API_KEY")), "API key for the smart tier")
	flag.IntVar(&maxArticles, "max.articles", fc.Max.Articles, "Override the intent-extracted max article count (0 keeps the extracted value)")
	flag.StringVar(&cacheDir, "cache.dir", firstNonEmpty(fc.Cache.Dir, ".newsagent-cache"), "Cache directory path")
	flag.StringVar(&userAgent, "user-agent", firstNonEmpty(fc.UserAgent, "newsagent/1.0"), "User-Agent header sent by the fetch proxy stand-in")
	flag.BoolVar(&renderPDF, "pdf", fc.PDF, "Also render a PDF sidecar alongside the Markdown summary")
	flag.StringVar(&pdfOutPath, "pdf.output", "summary.pdf", "Path to write the PDF sidecar when -pdf is set")
	flag.StringVar(&manifestPath, "manifest", "", "When non-empty, append a provenance manifest section (keyed by run ID) to the Markdown summary; nothing is written to this path")
	flag.BoolVar(&verbose, "v", fc.Verbose, "Verbose logging")
	flag.BoolVar(&cachePurge, "cache.purge", false, "Wipe -cache.dir entirely before the run instead of reusing it")
	flag.DurationVar(&cacheMaxAge, "cache.max-age", 0, "Evict cache entries older than this before the run (0 disables)")
	flag.Int64Var(&cacheMaxMB, "cache.max-mb", 0, "Evict least-recently-used cache entries once the cache exceeds this many megabytes (0 disables)")
	flag.IntVar(&cacheMaxFiles, "cache.max-files", 0, "Evict least-recently-used cache entries once the cache holds more than this many files (0 disables)")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := maintainCache(cacheDir, cachePurge, cacheMaxAge, cacheMaxMB*1024*1024, cacheMaxFiles); err != nil {
		log.Error().Err(err).Msg("cache maintenance failed")
		os.Exit(1)
	}

	if err := run(runArgs{
		prompt:       prompt,
		seeds:        seeds,
		outputPath:   outputPath,
		fastBaseURL:  fastBaseURL,
		fastModel:    fastModel,
		fastKey:      fastKey,
		smartModel:   smartModel,
		smartKey:     smartKey,
		maxArticles:  maxArticles,
		cacheDir:     cacheDir,
		userAgent:    userAgent,
		renderPDF:    renderPDF,
		pdfOutPath:   pdfOutPath,
		manifestPath: manifestPath,
	}); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit code policy mirrors cmd/goresearch: invalid input is the
		// caller's mistake (exit 2); run-level degradation is absorbed by
		// the agent as a well-formed result, so main's error path is reached
		// only when provider construction fails, the run stops with
		// llm_unavailable or cancelled, or the summary cannot be written —
		// exit 1.
		if errors.Is(err, agent.ErrInvalidInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// maintainCache applies -cache.purge/-cache.max-age/-cache.max-mb/-cache.max-files
// against cacheDir before the run starts. The HTTP and LLM caches share one
// directory, so each walk just filters by the entry's own file-naming
// convention (see internal/cache.PurgeHTTPCacheByAge and PurgeLLMCacheByAge).
func maintainCache(cacheDir string, purge bool, maxAge time.Duration, maxBytes int64, maxFiles int) error {
	if cacheDir == "" {
		return nil
	}
	if purge {
		if err := cache.ClearDir(cacheDir); err != nil {
			return fmt.Errorf("purge cache dir: %w", err)
		}
		log.Info().Str("dir", cacheDir).Msg("cache wiped")
		return nil
	}
	if _, err := os.Stat(cacheDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if maxAge > 0 {
		httpRemoved, err := cache.PurgeHTTPCacheByAge(cacheDir, maxAge)
		if err != nil {
			return fmt.Errorf("purge aged http cache: %w", err)
		}
		llmRemoved, err := cache.PurgeLLMCacheByAge(cacheDir, maxAge)
		if err != nil {
			return fmt.Errorf("purge aged llm cache: %w", err)
		}
		if httpRemoved+llmRemoved > 0 {
			log.Info().Int("http_removed", httpRemoved).Int("llm_removed", llmRemoved).Dur("max_age", maxAge).Msg("aged cache entries evicted")
		}
	}
	if maxBytes > 0 || maxFiles > 0 {
		httpRemoved, err := cache.EnforceHTTPCacheLimits(cacheDir, maxBytes, maxFiles)
		if err != nil {
			return fmt.Errorf("enforce http cache limits: %w", err)
		}
		llmRemoved, err := cache.EnforceLLMCacheLimits(cacheDir, maxBytes, maxFiles)
		if err != nil {
			return fmt.Errorf("enforce llm cache limits: %w", err)
		}
		if httpRemoved+llmRemoved > 0 {
			log.Info().Int("http_removed", httpRemoved).Int("llm_removed", llmRemoved).Msg("oversized cache evicted lru entries")
		}
	}
	return nil
}

type runArgs struct {
	prompt       string
	seeds        []string
	outputPath   string
	fastBaseURL  string
	fastModel    string
	fastKey      string
	smartModel   string
	smartKey     string
	maxArticles  int
	cacheDir     string
	userAgent    string
	renderPDF    bool
	pdfOutPath   string
	manifestPath string
}

func run(a runArgs) error {
	ctx := context.Background()

	var fastLLM llm.Client
	if a.fastKey != "" {
		fastLLM = llm.NewOpenAIProvider(a.fastKey, a.fastBaseURL, a.fastModel)
	}
	var smartLLM llm.Client
	if a.smartKey != "" {
		provider, err := llm.NewAnthropicProvider(a.smartKey, a.smartModel)
		if err != nil {
			return fmt.Errorf("init smart-tier provider: %w", err)
		}
		smartLLM = provider
	}

	ag := agent.New(agent.Config{
		Proxy:        newDirectHTTPProxy(a.userAgent, true),
		FastLLM:      fastLLM,
		SmartLLM:     smartLLM,
		SmartModel:   a.smartModel,
		UserAgent:    a.userAgent,
		CacheDir:     a.cacheDir,
		RenderPDF:    a.renderPDF,
		PDFOutPath:   a.pdfOutPath,
		ManifestPath: a.manifestPath,
	})

	result, err := ag.Run(ctx, a.prompt, a.seeds, a.maxArticles)
	if err != nil {
		return err
	}

	if err := os.WriteFile(a.outputPath, []byte(result.SummaryMarkdown), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	log.Info().Str("output", a.outputPath).Int("citations", len(result.Citations)).Msg("summary written")
	return nil
}
