package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_Basic(t *testing.T) {
	tok := NewTokenizer(DefaultTextIndexConfig())

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits on punctuation",
			text: "Quarterly Report: Revenue, Expenses.",
			want: []string{"quarterly", "report", "revenue", "expenses"},
		},
		{
			name: "drops stop words",
			text: "the quick fox and the hound",
			want: []string{"quick", "fox", "hound"},
		},
		{
			name: "drops short tokens",
			text: "a b cd efg",
			want: []string{"cd", "efg"},
		},
		{
			name: "keeps digits",
			text: "invoice 2024 q3",
			want: []string{"invoice", "2024", "q3"},
		},
		{
			name: "unicode letters",
			text: "résumé straße",
			want: []string{"résumé", "straße"},
		},
		{
			name: "empty input",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Tokenize(tt.text))
		})
	}
}

func TestTokenizer_CustomConfig(t *testing.T) {
	tok := NewTokenizer(TextIndexConfig{
		StopWords:      []string{"foo"},
		MinTokenLength: 4,
	})

	got := tok.Tokenize("foo bars bazz it")
	assert.Equal(t, []string{"bars", "bazz"}, got)
	assert.True(t, tok.IsStopWord("FOO"))
	assert.False(t, tok.IsStopWord("bars"))
}
