package search

import (
	"strings"
	"unicode"
)

// DefaultSnippetLength is the target snippet size in bytes.
const DefaultSnippetLength = 200

// BuildSnippet extracts a window of content around the first matched
// term, trimmed to word boundaries with ellipses marking cuts. When no
// term matches, the snippet is the start of the content.
func BuildSnippet(content string, terms []string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLength
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if len(content) <= maxLen {
		return content
	}

	matchPos := firstMatch(content, terms)

	// Center the window on the match; lead with the document otherwise.
	start := 0
	if matchPos > maxLen/2 {
		start = matchPos - maxLen/2
	}
	end := start + maxLen
	if end > len(content) {
		end = len(content)
		start = end - maxLen
	}

	// Expand to rune boundaries, then trim partial words at the edges.
	for start > 0 && !isRuneStart(content[start]) {
		start--
	}
	for end < len(content) && !isRuneStart(content[end]) {
		end++
	}

	snippet := content[start:end]
	if start > 0 {
		if idx := strings.IndexFunc(snippet, unicode.IsSpace); idx >= 0 {
			snippet = snippet[idx:]
		}
		snippet = "…" + strings.TrimLeftFunc(snippet, unicode.IsSpace)
	}
	if end < len(content) {
		if idx := strings.LastIndexFunc(snippet, unicode.IsSpace); idx >= 0 {
			snippet = snippet[:idx]
		}
		snippet = strings.TrimRightFunc(snippet, unicode.IsSpace) + "…"
	}

	return snippet
}

// firstMatch returns the byte offset of the earliest case-insensitive
// occurrence of any term, or 0 when none match.
func firstMatch(content string, terms []string) int {
	lower := strings.ToLower(content)
	best := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(term)); idx >= 0 {
			if best == -1 || idx < best {
				best = idx
			}
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
