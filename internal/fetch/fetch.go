package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/nyxreach/newsagent/internal/cache"
	"github.com/nyxreach/newsagent/internal/events"
	"github.com/nyxreach/newsagent/internal/robots"
)

// MaxAttempts is the number of fetch attempts per URL, including the first.
const MaxAttempts = 5

// perAttemptTimeout bounds a single proxy round trip.
const perAttemptTimeout = 60 * time.Second

// backoff returns the delay before attempt n (1-indexed): 0s, 2s, 4s, 8s, 16s.
func backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(1<<uint(attempt-2)) * 2 * time.Second
}

// Proxy is the external unblocking proxy contract: it fetches a page on the
// caller's behalf, handling JS rendering and anti-bot evasion out of band.
type Proxy interface {
	Fetch(ctx context.Context, targetURL string, timeout time.Duration) (html []byte, statusCode int, contentType string, err error)
}

// Result is a successful fetch outcome.
type Result struct {
	URL         string
	HTML        []byte
	ContentType string
}

// Client fetches URLs through a Proxy, applying robots.txt policy, bounded
// exponential-backoff retry, and a per-host circuit breaker so a single
// failing host cannot stall an entire run.
type Client struct {
	Proxy     Proxy
	UserAgent string
	Cache     *cache.HTTPCache
	Robots    *robots.Manager
	Events    *events.Stream

	// MaxConcurrent bounds in-flight fetches issued via GetMany. Zero means
	// defaultMaxConcurrent (5), spec.md §5's recommended fan-out cap.
	MaxConcurrent int

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

// permanentError marks a failure that must not be retried: the resource does
// not exist or access is denied, so further attempts would only waste time.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error  { return p.err }

func permanentStatus(status int) bool {
	return status == 401 || status == 403 || status == 404
}

func retryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status <= 599)
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if c.breakers == nil {
		c.breakers = make(map[string]*gobreaker.CircuitBreaker)
	}
	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Only permanent (non-retryable) failures count against the breaker,
		// so transient errors still get all MaxAttempts attempts.
		IsSuccessful: func(err error) bool {
			var perm *permanentError
			return err == nil || !errors.As(err, &perm)
		},
	})
	c.breakers[host] = b
	return b
}

// Get fetches targetURL, honoring robots.txt and retrying transient failures
// with exponential backoff. It emits fetch:start, fetch:retry, and
// fetch:error events as the attempt sequence unfolds.
func (c *Client) Get(ctx context.Context, targetURL string) (Result, error) {
	c.emit(events.TypeFetchStart, map[string]any{"url": targetURL})

	host, err := hostOf(targetURL)
	if err != nil {
		c.emit(events.TypeFetchError, map[string]any{"url": targetURL, "reason": err.Error()})
		return Result{}, err
	}

	if allowed, rerr := c.checkRobots(ctx, targetURL); rerr == nil && !allowed {
		err := fmt.Errorf("disallowed by robots.txt: %s", targetURL)
		c.emit(events.TypeFetchError, map[string]any{"url": targetURL, "reason": err.Error()})
		return Result{}, err
	}

	breaker := c.breakerFor(host)

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if d := backoff(attempt); d > 0 {
			c.emit(events.TypeFetchRetry, map[string]any{"url": targetURL, "attempt": attempt, "backoff_seconds": d.Seconds()})
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(d):
			}
		}

		out, err := breaker.Execute(func() (any, error) {
			return c.tryOnce(ctx, targetURL)
		})
		if err == nil {
			res := out.(Result)
			if c.Cache != nil {
				_ = c.Cache.Save(ctx, targetURL, res.ContentType, "", "", res.HTML)
			}
			return res, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			c.emit(events.TypeFetchError, map[string]any{"url": targetURL, "reason": err.Error(), "permanent": true})
			return Result{}, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.emit(events.TypeFetchError, map[string]any{"url": targetURL, "reason": err.Error(), "circuit_open": true})
			return Result{}, err
		}
		lastErr = err
	}

	c.emit(events.TypeFetchError, map[string]any{"url": targetURL, "reason": lastErr.Error(), "attempts_exhausted": true})
	return Result{}, fmt.Errorf("fetch %s: attempts exhausted: %w", targetURL, lastErr)
}

func (c *Client) tryOnce(ctx context.Context, targetURL string) (Result, error) {
	if c.Proxy == nil {
		return Result{}, &permanentError{err: errors.New("fetch: no proxy configured")}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	html, status, contentType, err := c.Proxy.Fetch(attemptCtx, targetURL, perAttemptTimeout)
	if err != nil {
		return Result{}, err
	}
	if permanentStatus(status) {
		return Result{}, &permanentError{err: fmt.Errorf("proxy status %d", status)}
	}
	if retryableStatus(status) {
		return Result{}, fmt.Errorf("proxy status %d", status)
	}
	if status < 200 || status > 299 {
		return Result{}, &permanentError{err: fmt.Errorf("unexpected proxy status %d", status)}
	}
	if len(html) == 0 {
		return Result{}, errors.New("empty response body")
	}
	return Result{URL: targetURL, HTML: html, ContentType: contentType}, nil
}

func (c *Client) checkRobots(ctx context.Context, targetURL string) (bool, error) {
	if c.Robots == nil {
		return true, nil
	}
	u, err := url.Parse(targetURL)
	if err != nil {
		return true, err
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	rules, _, err := c.Robots.Get(ctx, robotsURL)
	if err != nil {
		// Unable to confirm policy: proceed, since Manager.Get already
		// folds network failures into a disallow-all ruleset itself.
		return true, err
	}
	return rules.IsAllowed(c.UserAgent, u.Path), nil
}

func (c *Client) emit(eventType string, payload map[string]any) {
	if c.Events != nil {
		c.Events.Emit(eventType, payload)
	}
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url missing host: %q", rawURL)
	}
	return strings.ToLower(u.Host), nil
}

// defaultMaxConcurrent is spec.md §5's "bounded fan-out (recommended cap:
// 5)" for same-level article and listing-link fetches.
const defaultMaxConcurrent = 5

// GetMany fetches urls concurrently, bounded by MaxConcurrent, and returns
// only the successful results in a stable order matching urls. Individual
// failures are isolated: one bad URL never aborts the batch.
func (c *Client) GetMany(ctx context.Context, urls []string) []Result {
	c.emit(events.TypeFetchPhaseStart, map[string]any{"total_urls": len(urls)})

	limit := c.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	results := make([]Result, len(urls))
	ok := make([]bool, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := c.Get(gctx, u)
			if err != nil {
				return nil
			}
			results[i] = res
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Result, 0, len(urls))
	for i, present := range ok {
		if present {
			out = append(out, results[i])
		}
	}
	return out
}
