package robots

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nyxreach/newsagent/internal/cache"
)

type Source int

const (
	SourceNetwork Source = iota
	SourceMemory
	SourceCache304
)

type Rules struct {
	Groups []Group
}

type Group struct {
	Agents     []string
	Allow      []string
	Disallow   []string
	CrawlDelay *time.Duration
}

type Manager struct {
	HTTPClient        *http.Client
	Cache             *cache.HTTPCache
	UserAgent         string
	EntryExpiry       time.Duration
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	rules  Rules
	expiry time.Time
}

// disallowAllRules is substituted when the origin cannot be reached or
// answers with a server error, so the crawler backs off rather than
// guessing at permission.
func disallowAllRules() Rules {
	return Rules{Groups: []Group{{Agents: []string{"*"}, Disallow: []string{"/"}}}}
}

// Get fetches and caches robots.txt for robotsURL. A 404 is treated as an
// empty, allow-everything ruleset per convention. A network error, timeout,
// or 5xx/401/403 response is treated as a temporary disallow-all so callers
// never crawl a host whose policy could not be confirmed; both outcomes are
// reported as SourceNetwork with a nil error and cached in memory like any
// other result.
func (m *Manager) Get(ctx context.Context, robotsURL string) (Rules, Source, error) {
	if m.now == nil {
		m.now = time.Now
	}
	if m.mem == nil {
		m.mem = make(map[string]memEntry)
	}
	u, err := url.Parse(robotsURL)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("parse url: %w", err)
	}
	if u == nil || !isHTTPScheme(u) {
		return Rules{}, SourceNetwork, fmt.Errorf("unsupported url scheme: %q", robotsURL)
	}
	host := u.Hostname()
	if !m.AllowPrivateHosts && isLocalOrPrivateHost(host) {
		return Rules{}, SourceNetwork, fmt.Errorf("private host not allowed: %s", host)
	}

	m.mu.Lock()
	if ent, ok := m.mem[robotsURL]; ok && m.now().Before(ent.expiry) {
		r := ent.rules
		m.mu.Unlock()
		return r, SourceMemory, nil
	}
	m.mu.Unlock()

	var etag, lastMod string
	if m.Cache != nil {
		if meta, err := m.Cache.LoadMeta(ctx, robotsURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("new request: %w", err)
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		rules := disallowAllRules()
		m.storeMem(robotsURL, rules)
		return rules, SourceNetwork, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && m.Cache != nil {
		body, err := m.Cache.LoadBody(ctx, robotsURL)
		if err != nil {
			return Rules{}, SourceCache304, fmt.Errorf("load cached robots: %w", err)
		}
		rules := parseRobots(string(body))
		m.storeMem(robotsURL, rules)
		return rules, SourceCache304, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		rules := Rules{}
		m.storeMem(robotsURL, rules)
		return rules, SourceNetwork, nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
		rules := disallowAllRules()
		m.storeMem(robotsURL, rules)
		return rules, SourceNetwork, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Rules{}, SourceNetwork, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Rules{}, SourceNetwork, fmt.Errorf("read robots: %w", err)
	}
	if m.Cache != nil {
		_ = m.Cache.Save(ctx, robotsURL, "text/plain", resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), data)
	}
	rules := parseRobots(string(data))
	m.storeMem(robotsURL, rules)
	return rules, SourceNetwork, nil
}

func (m *Manager) storeMem(key string, rules Rules) {
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = 30 * time.Minute
	}
	m.mu.Lock()
	m.mem[key] = memEntry{rules: rules, expiry: m.now().Add(exp)}
	m.mu.Unlock()
}

func parseRobots(text string) Rules {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var groups []Group
	current := Group{}
	flush := func() {
		if len(current.Agents) == 0 && len(current.Allow) == 0 && len(current.Disallow) == 0 && current.CrawlDelay == nil {
			return
		}
		groups = append(groups, current)
		current = Group{}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent", "useragent":
			if len(current.Agents) > 0 && (len(current.Allow) > 0 || len(current.Disallow) > 0 || current.CrawlDelay != nil) {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			current.Allow = append(current.Allow, val)
		case "disallow":
			current.Disallow = append(current.Disallow, val)
		case "crawl-delay", "crawldelay":
			if s := strings.TrimSpace(val); s != "" {
				if d, err := time.ParseDuration(s + "s"); err == nil {
					dd := d
					current.CrawlDelay = &dd
				}
			}
		}
	}
	flush()
	return Rules{Groups: groups}
}

// matchingGroup returns the group whose Agents list contains an exact,
// case-insensitive match for ua, falling back to the "*" wildcard group.
// An exact product-token match always beats the wildcard regardless of
// declaration order.
func matchingGroup(groups []Group, ua string) (Group, bool) {
	ua = strings.ToLower(strings.TrimSpace(ua))
	var wildcard Group
	haveWildcard := false
	for _, g := range groups {
		for _, a := range g.Agents {
			if a == ua {
				return g, true
			}
			if a == "*" {
				wildcard = g
				haveWildcard = true
			}
		}
	}
	return wildcard, haveWildcard
}

// rulePattern holds one compiled Allow/Disallow line, ordered longest-match-wins.
type rulePattern struct {
	raw     string
	allow   bool
	anchor  bool // pattern ends with "$"
	literal string
}

func collectPatterns(g Group) []rulePattern {
	patterns := make([]rulePattern, 0, len(g.Allow)+len(g.Disallow))
	for _, p := range g.Allow {
		patterns = append(patterns, rulePattern{raw: p, allow: true, anchor: strings.HasSuffix(p, "$"), literal: strings.TrimSuffix(p, "$")})
	}
	for _, p := range g.Disallow {
		patterns = append(patterns, rulePattern{raw: p, allow: false, anchor: strings.HasSuffix(p, "$"), literal: strings.TrimSuffix(p, "$")})
	}
	return patterns
}

// matchLength returns the length of the matched prefix of pattern against
// path, honoring "*" as a zero-or-more-characters wildcard and a trailing
// "$" as an exact-end anchor. Returns -1 when the pattern does not match.
func matchLength(pattern rulePattern, path string) int {
	if pattern.literal == "" {
		// Empty Disallow value means "allow all" per convention; empty
		// Allow value matches nothing.
		return -1
	}
	segs := strings.Split(pattern.literal, "*")
	pos := 0
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx < 0 {
			return -1
		}
		if i == 0 && idx != 0 {
			return -1
		}
		pos += idx + len(seg)
	}
	if pattern.anchor && pos != len(path) {
		return -1
	}
	return pos
}

// IsAllowed evaluates the ruleset for the given user agent and request path,
// preferring an exact user-agent group over the wildcard group, then
// selecting the longest-matching Allow/Disallow rule within that group
// (Allow wins ties). An empty ruleset allows everything.
func (r Rules) IsAllowed(ua, path string) bool {
	if len(r.Groups) == 0 {
		return true
	}
	group, ok := matchingGroup(r.Groups, ua)
	if !ok {
		return true
	}
	patterns := collectPatterns(group)
	if len(patterns) == 0 {
		return true
	}
	best := -1
	bestAllow := true
	for _, p := range patterns {
		n := matchLength(p, path)
		if n < 0 {
			continue
		}
		if n > best || (n == best && p.allow) {
			best = n
			bestAllow = p.allow
		}
	}
	if best < 0 {
		return true
	}
	return bestAllow
}

// CrawlDelayFor returns the Crawl-delay declared for the matching group, or
// nil when none is set.
func (r Rules) CrawlDelayFor(ua string) *time.Duration {
	group, ok := matchingGroup(r.Groups, ua)
	if !ok {
		return nil
	}
	return group.CrawlDelay
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return true
		}
	}
	return false
}
