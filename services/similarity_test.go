package services

import (
	"testing"

	"paper-auditor/config"

	"github.com/stretchr/testify/assert"
)

func TestTitleSimilarity(t *testing.T) {
	w := config.DefaultScoring().Match

	assert.Equal(t, 1.0, TitleSimilarity("Deep Learning", "deep learning", w))
	assert.Equal(t, 1.0, TitleSimilarity("Über Zitate: eine Analyse", "uber zitate eine analyse", w))
	assert.GreaterOrEqual(t, TitleSimilarity("Attention is all you need", "Attention is all you need!", w), 0.95)
	assert.Less(t, TitleSimilarity("Deep learning", "Protein folding in yeast cells", w), 0.5)
	assert.Zero(t, TitleSimilarity("", "anything", w))
}

func TestSequenceRatio(t *testing.T) {
	assert.Equal(t, 1.0, SequenceRatio("abcd", "abcd"))
	assert.InDelta(t, 0.75, SequenceRatio("abcd", "abxd"), 1e-9)
	assert.Zero(t, SequenceRatio("abc", "xyz"))
	assert.Equal(t, 1.0, SequenceRatio("", ""))
}

func TestYearScore(t *testing.T) {
	s, ok := YearScore(2020, 2020, 0.5)
	assert.True(t, ok)
	assert.Equal(t, 1.0, s)

	s, ok = YearScore(2020, 2021, 0.5)
	assert.True(t, ok)
	assert.Equal(t, 0.5, s)

	s, ok = YearScore(2020, 2015, 0.5)
	assert.True(t, ok)
	assert.Zero(t, s)

	_, ok = YearScore(2020, 0, 0.5)
	assert.False(t, ok)
}

func TestAuthorOverlap(t *testing.T) {
	s, ok := AuthorOverlap([]string{"Müller", "Smith"}, []string{"Muller", "Jones", "Smyth"}, 0.8)
	assert.True(t, ok)
	assert.Equal(t, 1.0, s)

	s, ok = AuthorOverlap([]string{"Smith", "Lee"}, []string{"Smith"}, 0.8)
	assert.True(t, ok)
	assert.Equal(t, 0.5, s)

	_, ok = AuthorOverlap(nil, []string{"Smith"}, 0.8)
	assert.False(t, ok)
}

func TestScoreCandidate(t *testing.T) {
	w := config.DefaultScoring().Match
	cand := candidateFields{title: "Deep learning", year: 2015, authors: []string{"LeCun", "Bengio", "Hinton"}}

	full := ScoreCandidate("Deep Learning", 2015, []string{"LeCun"}, cand, w)
	assert.Equal(t, 1.0, full.Combined)

	// Without a cited title only year and authors count.
	noTitle := ScoreCandidate("", 2015, []string{"LeCun"}, cand, w)
	assert.Zero(t, noTitle.Title)
	assert.Equal(t, 1.0, noTitle.Combined)

	offYear := ScoreCandidate("Deep Learning", 2014, nil, cand, w)
	assert.InDelta(t, (0.6*1+0.2*0.5)/0.8, offYear.Combined, 1e-6)
}
