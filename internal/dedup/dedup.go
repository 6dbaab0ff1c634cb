// Package dedup implements the Deduplicator component (spec.md §4.9): an
// exact phase over normalized URL and content hash, followed by a semantic
// phase using LLM pairwise judgment over the remaining near-duplicates.
// Within each equivalence class the earliest-fetched member is kept.
package dedup

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "strings"
    "time"

    "golang.org/x/text/unicode/norm"

    "github.com/nyxreach/newsagent/internal/llm"
    "github.com/nyxreach/newsagent/internal/urlnorm"
)

// Article is the minimal slice of content.ArticleContent the deduplicator
// needs; kept local (rather than importing internal/content) so this
// package has no dependency on the extraction pipeline's internals.
type Article struct {
    URL       string
    Title     string
    Text      string
    FetchedAt time.Time
}

// Deduplicator removes exact and near-duplicate articles from a collected
// set.
type Deduplicator struct {
    // LLM drives the semantic phase. A nil LLM skips semantic dedup and
    // returns the exact-phase result unchanged.
    LLM llm.Client
}

type pairResponseItem struct {
    IndexA     int  `json:"index_a"`
    IndexB     int  `json:"index_b"`
    Duplicate  bool `json:"duplicate"`
}

type pairResponse struct {
    Items []pairResponseItem `json:"items"`
}

// Dedupe runs the exact phase (normalized URL + content hash) and then, if
// an LLM is configured, a semantic phase clustering near-duplicates the
// exact phase missed (same story covered by different outlets, paraphrased
// wire copy, and the like). It returns the surviving articles, one per
// equivalence class, keeping the earliest-fetched member of each class.
func (d *Deduplicator) Dedupe(ctx context.Context, articles []Article) ([]Article, error) {
    exact := exactDedupe(articles)
    if d.LLM == nil || len(exact) < 2 {
        return exact, nil
    }
    return d.semanticDedupe(ctx, exact)
}

// exactDedupe groups articles by normalized URL and by content hash,
// keeping the earliest-fetched member of each group.
func exactDedupe(articles []Article) []Article {
    byURL := map[string]int{}
    byHash := map[string]int{}
    kept := make([]Article, 0, len(articles))

    for _, a := range articles {
        normURL, err := urlnorm.Normalize(a.URL)
        if err != nil {
            normURL = a.URL
        }
        hash := contentHash(a.Text)

        if idx, ok := byURL[normURL]; ok {
            kept[idx] = earlier(kept[idx], a)
            continue
        }
        if idx, ok := byHash[hash]; ok {
            kept[idx] = earlier(kept[idx], a)
            byURL[normURL] = idx
            continue
        }

        kept = append(kept, a)
        idx := len(kept) - 1
        byURL[normURL] = idx
        byHash[hash] = idx
    }
    return kept
}

func contentHash(text string) string {
    sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
    return hex.EncodeToString(sum[:])
}

func earlier(a, b Article) Article {
    if b.FetchedAt.Before(a.FetchedAt) {
        return b
    }
    return a
}

// semanticDedupe asks the model to judge candidate pairs (articles sharing
// at least one significant title word, to keep prompts small) as
// duplicates or not, then collapses confirmed duplicates via union-find,
// keeping the earliest-fetched member of each resulting class. On any LLM
// or parse failure it returns the exact-phase input unchanged rather than
// risking an incorrect merge.
func (d *Deduplicator) semanticDedupe(ctx context.Context, articles []Article) ([]Article, error) {
    pairs := candidatePairs(articles)
    if len(pairs) == 0 {
        return articles, nil
    }

    system := "You judge whether two news article excerpts describe the same underlying story (possibly from different outlets, with different wording). " +
        `Respond with strict JSON only: {"items": [{"index_a": int, "index_b": int, "duplicate": bool}, ...]}, one entry per pair.`

    var user strings.Builder
    for i, p := range pairs {
        fmt.Fprintf(&user, "Pair %d:\nA. %s\n%s\n\nB. %s\n%s\n\n", i, articles[p[0]].Title, excerpt(articles[p[0]].Text), articles[p[1]].Title, excerpt(articles[p[1]].Text))
    }

    resp, err := d.LLM.Complete(ctx, llm.Request{
        Messages: []llm.Message{
            {Role: llm.RoleSystem, Content: system},
            {Role: llm.RoleUser, Content: user.String()},
        },
        Temperature: 0,
    })
    if err != nil {
        return articles, nil
    }

    var parsed pairResponse
    if err := llm.ExtractJSON(resp.Content, &parsed); err != nil {
        return articles, nil
    }

    uf := newUnionFind(len(articles))
    for _, item := range parsed.Items {
        if !item.Duplicate {
            continue
        }
        if item.IndexA < 0 || item.IndexA >= len(articles) || item.IndexB < 0 || item.IndexB >= len(articles) {
            continue
        }
        uf.union(item.IndexA, item.IndexB)
    }

    classes := map[int]int{} // root -> kept index in output
    out := make([]Article, 0, len(articles))
    for i, a := range articles {
        root := uf.find(i)
        if idx, ok := classes[root]; ok {
            out[idx] = earlier(out[idx], a)
            continue
        }
        out = append(out, a)
        classes[root] = len(out) - 1
    }
    return out, nil
}

func excerpt(s string) string {
    const maxLen = 500
    if len(s) > maxLen {
        return s[:maxLen]
    }
    return s
}

// candidatePairs limits the semantic phase to pairs sharing a significant
// title word, avoiding an O(n^2) LLM prompt over unrelated articles.
func candidatePairs(articles []Article) [][2]int {
    var pairs [][2]int
    for i := 0; i < len(articles); i++ {
        wordsI := significantWords(articles[i].Title)
        for j := i + 1; j < len(articles); j++ {
            if sharesWord(wordsI, significantWords(articles[j].Title)) {
                pairs = append(pairs, [2]int{i, j})
            }
        }
    }
    return pairs
}

// significantWords tokenizes a title into its 5+-letter words, NFC-normalizing
// first so headlines from outlets that compose accents differently (e.g. a
// combining acute accent vs. a precomposed character) still compare equal.
func significantWords(title string) map[string]struct{} {
    out := map[string]struct{}{}
    normalized := norm.NFC.String(title)
    for _, w := range strings.Fields(strings.ToLower(normalized)) {
        if len(w) >= 5 {
            out[w] = struct{}{}
        }
    }
    return out
}

func sharesWord(a, b map[string]struct{}) bool {
    for w := range a {
        if _, ok := b[w]; ok {
            return true
        }
    }
    return false
}

type unionFind struct {
    parent []int
}

func newUnionFind(n int) *unionFind {
    parent := make([]int, n)
    for i := range parent {
        parent[i] = i
    }
    return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
    for u.parent[x] != x {
        u.parent[x] = u.parent[u.parent[x]]
        x = u.parent[x]
    }
    return x
}

func (u *unionFind) union(a, b int) {
    ra, rb := u.find(a), u.find(b)
    if ra != rb {
        u.parent[ra] = rb
    }
}
