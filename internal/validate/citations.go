package validate

import (
    "sort"
    "regexp"
)

// Citations represents the validation result for inline [n] citations
// relative to a references list of length N.
type Citations struct {
    // InRange lists citation indices that are valid (1..N)
    InRange []int
    // OutOfRange lists citation indices that reference >N or <1
    OutOfRange []int
    // MissingReferences is true if N == 0 while citations exist
    MissingReferences bool
}

var citeRe = regexp.MustCompile(`\[(\d+)\]`)

// ValidateCitations scans the markdown body for [n] patterns and compares
// against the number of references (spec.md §4.9: every summary citation
// must resolve to a collected article).
func ValidateCitations(markdown string, numReferences int) Citations {
    matches := citeRe.FindAllStringSubmatch(markdown, -1)
    seen := map[int]struct{}{}
    var inRange []int
    var outRange []int
    for _, m := range matches {
        if len(m) != 2 {
            continue
        }
        var n int
        for _, ch := range m[1] {
            n = n*10 + int(ch-'0')
        }
        if _, ok := seen[n]; ok {
            continue
        }
        seen[n] = struct{}{}
        if n >= 1 && n <= numReferences {
            inRange = append(inRange, n)
        } else {
            outRange = append(outRange, n)
        }
    }
    sort.Ints(inRange)
    sort.Ints(outRange)
    return Citations{InRange: inRange, OutOfRange: outRange, MissingReferences: numReferences == 0 && len(matches) > 0}
}

// CountWords counts whitespace-delimited tokens, the same measure used for
// the word-count thresholds in article validation (spec.md §4.9) and
// audience-length accounting in internal/content.
func CountWords(s string) int {
    n := 0
    in := false
    for i := 0; i < len(s); i++ {
        b := s[i]
        if b == ' ' || b == '\n' || b == '\t' || b == '\r' {
            if in {
                n++
                in = false
            }
        } else {
            in = true
        }
    }
    if in {
        n++
    }
    return n
}
