package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNormalizeFixesHyphenationAndLigatures(t *testing.T) {
	tn := NewTextNormalizer(zap.NewNop())
	out, stats := tn.Normalize("The ﬁrst ab-\nweichung   was\t\tnoted.", DefaultNormalizeOptions())

	assert.Equal(t, "The first abweichung was noted.", out)
	assert.Equal(t, 1, stats.HyphenFixes)
	assert.Equal(t, 1, stats.NumPages)
}

func TestNormalizeRemovesRunningHeadersAndPageNumbers(t *testing.T) {
	pages := []string{
		"Journal of Tests 2024\nAlpha body text.\n1",
		"Journal of Tests 2024\nBeta body text.\n2",
		"Journal of Tests 2024\nGamma body text.\n3",
	}
	tn := NewTextNormalizer(zap.NewNop())
	out, stats := tn.Normalize(strings.Join(pages, "\f"), DefaultNormalizeOptions())

	assert.Equal(t, 3, stats.NumPages)
	assert.Equal(t, 3, stats.HeadersRemoved)
	assert.Equal(t, 3, stats.FootersRemoved)
	assert.NotContains(t, out, "Journal of Tests")
	assert.Contains(t, out, "Alpha body text.")
	assert.Contains(t, out, "Gamma body text.")
	assert.Equal(t, 2, strings.Count(out, "\f"))
}

func TestNormalizeKeepsRunningLinesWithCitations(t *testing.T) {
	pages := []string{
		"Repeated claim [1]\nAlpha body text.",
		"Repeated claim [1]\nBeta body text.",
		"Repeated claim [1]\nGamma body text.",
	}
	tn := NewTextNormalizer(zap.NewNop())
	out, stats := tn.Normalize(strings.Join(pages, "\f"), DefaultNormalizeOptions())

	assert.Zero(t, stats.HeadersRemoved)
	assert.Equal(t, 3, strings.Count(out, "Repeated claim [1]"))
}

func TestNormalizeTitleAndSurname(t *testing.T) {
	assert.Equal(t, "deep learning a review", NormalizeTitle("  Deep-Learning: A Review. "))
	assert.Equal(t, "muller", NormalizeSurname("Müller"))
	assert.Equal(t, "oconnor", NormalizeSurname("O'Connor"))
	assert.Equal(t, "Ecole", FoldDiacritics("École"))
}
