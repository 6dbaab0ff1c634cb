package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON defensively recovers a JSON object from raw model output:
// it strips Markdown code fences, locates the outermost {...} block, and
// attempts one repair pass (single-quote normalization) before giving up.
// This is the one JSON-parsing path every component in this repository
// routes through (spec.md §6, §9 "LLM-JSON parsing").
func ExtractJSON(raw string, out any) error {
	candidate := stripCodeFences(raw)
	candidate = locateObject(candidate)
	if candidate == "" {
		return fmt.Errorf("extractjson: no JSON object found in model output")
	}
	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}
	repaired := repairQuotes(candidate)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("extractjson: repair failed: %w", err)
	}
	return nil
}

// stripCodeFences removes a leading/trailing ``` or ```json fence, if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// locateObject returns the outermost balanced {...} substring, tracking
// string literals so braces inside quoted values don't confuse the scan.
func locateObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// repairQuotes converts a common LLM slip — single-quoted keys/strings —
// into valid double-quoted JSON. This is a best-effort, single pass; it does
// not attempt to fix every malformed-JSON shape, only the one the teacher's
// prompts and the pack's models are observed to produce.
func repairQuotes(s string) string {
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && !inDouble:
			inDouble = true
			b.WriteByte(c)
		case c == '"' && inDouble:
			inDouble = false
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
