// Package urlnorm normalizes URLs so that two links pointing at the same
// resource compare equal regardless of host case, fragment, trailing slash,
// or tracking query parameters.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParamPrefixes and trackingParamExact list query keys stripped
// during normalization. Prefixed
// entries ("utm_") are matched by prefix; exact entries must match fully.
var trackingParamPrefixes = []string{"utm_"}

var trackingParamExact = map[string]struct{}{
	"fbclid":     {},
	"gclid":      {},
	"msclkid":    {},
	"mc_cid":     {},
	"mc_eid":     {},
	"ref":        {},
	"ref_src":    {},
	"ref_url":    {},
	"igshid":     {},
	"spm":        {},
	"_hsenc":     {},
	"_hsmi":      {},
	"yclid":      {},
}

// Normalize returns the canonical form of rawURL: lowercased host, no
// fragment, no trailing slash on the path, and tracking query parameters
// removed. It returns an error only when rawURL fails to parse.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if _, ok := trackingParamExact[lower]; ok {
				q.Del(key)
				continue
			}
			for _, prefix := range trackingParamPrefixes {
				if strings.HasPrefix(lower, prefix) {
					q.Del(key)
					break
				}
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	return u.String(), nil
}

// encodeSorted encodes url.Values with keys sorted, avoiding order-induced
// false mismatches between otherwise-identical URLs.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		for j, v := range q[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Equal reports whether two URLs normalize to the same canonical form.
func Equal(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return na == nb
}

// Resolve joins a possibly-relative href against a base URL and normalizes
// the result. Used by the link extractor to turn anchor hrefs into absolute,
// canonical URLs.
func Resolve(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	resolved := baseURL.ResolveReference(ref)
	return Normalize(resolved.String())
}
