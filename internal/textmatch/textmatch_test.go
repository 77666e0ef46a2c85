package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Wingman Keychain", "wingman keychain"},
		{"punctuation", "Wingman: Keychain!", "wingman keychain"},
		{"whitespace runs", "Wingman   \t Keychain", "wingman keychain"},
		{"mixed", "  VALORANT // Wingman (Keychain)  ", "valorant wingman keychain"},
		{"digits kept", "Tier-2 Pin", "tier 2 pin"},
		{"empty", "", ""},
		{"only punctuation", "--- !!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"Wingman Keychain", "wingman keychain"},
		{"WINGMAN-KEYCHAIN", "wingman,    keychain"},
		{"wingman  keychain", "Wingman Keychain."},
	}
	for _, p := range pairs {
		assert.Equal(t, Normalize(p[0]), Normalize(p[1]), "pair %q / %q", p[0], p[1])
	}
}

func TestMatchExact(t *testing.T) {
	res := Match("Wingman Keychain!", []string{"wingman keychain"}, 0.5)
	assert.True(t, res.Matched)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "wingman keychain", res.MatchedName)
}

func TestMatchContainment(t *testing.T) {
	res := Match("Valorant Wingman Keychain", []string{"Wingman"}, 0.5)
	assert.True(t, res.Matched)
	assert.GreaterOrEqual(t, res.Score, 0.85)
}

func TestMatchTokenOverlap(t *testing.T) {
	// "wingman" and "keychain" both appear; order and extra words differ
	// enough that containment fails.
	res := Match("Keychain of the Wingman, Limited", []string{"Wingman Keychain"}, 0.5)
	assert.True(t, res.Matched)
	assert.GreaterOrEqual(t, res.Score, 0.8)
}

func TestMatchUnrelated(t *testing.T) {
	res := Match("Completely Unrelated Item", []string{"Wingman Keychain"}, 0.5)
	assert.False(t, res.Matched)
	assert.Less(t, res.Score, 0.5)
}

func TestMatchSynonymOrder(t *testing.T) {
	// Both targets contain the label; the first in the list wins.
	res := Match("Wingman", []string{"Wingman Keychain", "Wingman Plush"}, 0.5)
	assert.True(t, res.Matched)
	assert.Equal(t, "Wingman Keychain", res.MatchedName)
}

func TestMatchEmptyLabel(t *testing.T) {
	res := Match("   ", []string{"Wingman"}, 0.5)
	assert.False(t, res.Matched)
	assert.Zero(t, res.Score)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("wingman", "wingman"))
	assert.Equal(t, 0.0, Similarity("wingman", ""))
	assert.Greater(t, Similarity("wingman keychain", "wngmn keychain"), 0.5)
	assert.Less(t, Similarity("wingman", "poster"), 0.3)
}

func TestRank(t *testing.T) {
	labels := []string{
		"Gaming Poster",
		"Wingman Keychain",
		"Wingman Plush",
		"Coffee Mug",
		"Desk Mat",
		"Wingman Sticker Pack",
	}
	top := Rank(labels, []string{"Wingman Keychain"}, 5)
	assert.Len(t, top, 5)
	assert.Equal(t, "Wingman Keychain", top[0].Label)
	assert.Equal(t, 1.0, top[0].Score)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i].Score, top[i-1].Score)
	}
}
