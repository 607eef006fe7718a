package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnippet_ShortContentReturnedWhole(t *testing.T) {
	content := "a short document"
	assert.Equal(t, content, BuildSnippet(content, []string{"short"}, 200))
}

func TestBuildSnippet_WindowsAroundFirstMatch(t *testing.T) {
	content := strings.Repeat("filler words here ", 30) +
		"the important revenue figure appears " +
		strings.Repeat("trailing text ", 30)

	snippet := BuildSnippet(content, []string{"revenue"}, 100)

	assert.Contains(t, snippet, "revenue")
	assert.LessOrEqual(t, len(snippet), 120, "snippet stays near the target length")
	assert.True(t, strings.HasPrefix(snippet, "…"), "cut at the front is marked")
	assert.True(t, strings.HasSuffix(snippet, "…"), "cut at the back is marked")
}

func TestBuildSnippet_MatchIsCaseInsensitive(t *testing.T) {
	content := strings.Repeat("x ", 200) + "Revenue grew" + strings.Repeat(" y", 200)
	snippet := BuildSnippet(content, []string{"revenue"}, 80)
	assert.Contains(t, snippet, "Revenue")
}

func TestBuildSnippet_NoMatchLeadsWithContent(t *testing.T) {
	content := strings.Repeat("leading words ", 50)
	snippet := BuildSnippet(content, []string{"absent"}, 60)

	assert.True(t, strings.HasPrefix(snippet, "leading"))
	assert.True(t, strings.HasSuffix(snippet, "…"))
}

func TestBuildSnippet_EmptyContent(t *testing.T) {
	assert.Equal(t, "", BuildSnippet("   ", []string{"term"}, 100))
}
