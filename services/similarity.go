package services

import (
	"math"
	"strings"

	"paper-auditor/config"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// SequenceRatio is the Ratcliff/Obershelp similarity of two strings:
// twice the number of matching characters divided by the total length.
func SequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, k := longestCommonSubstring(a, b)
	if k == 0 {
		return 0
	}
	return k + matchingChars(a[:i], b[:j]) + matchingChars(a[i+k:], b[j+k:])
}

// longestCommonSubstring returns the start in a, start in b and length of the
// earliest longest common run.
func longestCommonSubstring(a, b []rune) (int, int, int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	bestI, bestJ, bestK := 0, 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestK {
					bestI, bestJ, bestK = i-cur[j], j-cur[j], cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestK
}

// JaroWinkler returns the Jaro-Winkler similarity of two strings.
func JaroWinkler(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return strutil.Similarity(a, b, metrics.NewJaroWinkler())
}

// WordJaccard is the Jaccard overlap of the word sets of a and b.
func WordJaccard(a, b string) float64 {
	return jaccard(wordSet(a), wordSet(b))
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// TitleSimilarity blends sequence, Jaro-Winkler and word overlap similarity
// of the normalized titles. Titles equal after normalization score 1.
func TitleSimilarity(a, b string, w config.MatchScoring) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	sum := w.SequenceWeight + w.JaroWinklerWeight + w.JaccardWeight
	if sum <= 0 {
		return SequenceRatio(na, nb)
	}
	score := w.SequenceWeight*SequenceRatio(na, nb) +
		w.JaroWinklerWeight*JaroWinkler(na, nb) +
		w.JaccardWeight*WordJaccard(na, nb)
	return score / sum
}

// YearScore rates a candidate year. ok is false when either year is unknown.
func YearScore(cited, candidate int, nearCredit float64) (score float64, ok bool) {
	if cited <= 0 || candidate <= 0 {
		return 0, false
	}
	switch d := cited - candidate; {
	case d == 0:
		return 1, true
	case d == 1 || d == -1:
		return nearCredit, true
	}
	return 0, true
}

// AuthorOverlap returns the share of cited surnames found among the
// candidate's surnames, allowing fuzzy matches at or above threshold.
// ok is false when either list is empty.
func AuthorOverlap(cited, candidate []string, threshold float64) (score float64, ok bool) {
	var cs, ks []string
	for _, a := range cited {
		if n := NormalizeSurname(a); n != "" {
			cs = append(cs, n)
		}
	}
	for _, a := range candidate {
		if n := NormalizeSurname(a); n != "" {
			ks = append(ks, n)
		}
	}
	if len(cs) == 0 || len(ks) == 0 {
		return 0, false
	}
	used := make([]bool, len(ks))
	matched := 0
	for _, c := range cs {
		best, bestIdx := 0.0, -1
		for i, k := range ks {
			if used[i] {
				continue
			}
			s := 1.0
			if c != k {
				s = JaroWinkler(c, k)
			}
			if s > best {
				best, bestIdx = s, i
			}
		}
		if bestIdx >= 0 && best >= threshold {
			used[bestIdx] = true
			matched++
		}
	}
	return float64(matched) / float64(len(cs)), true
}

// MatchScore is the combined title/year/author score of one candidate.
type MatchScore struct {
	Title    float64
	Year     float64
	Authors  float64
	Combined float64
}

// ScoreCandidate combines title, year and author similarity with the
// configured weights. Dimensions missing on the cited side (or, for year
// and authors, on either side) are left out and the remaining weights
// renormalized.
func ScoreCandidate(title string, year int, authors []string, cand candidateFields, w config.MatchScoring) MatchScore {
	var s MatchScore
	var weighted, total float64
	if strings.TrimSpace(title) != "" {
		s.Title = TitleSimilarity(title, cand.title, w)
		weighted += w.TitleWeight * s.Title
		total += w.TitleWeight
	}
	if y, ok := YearScore(year, cand.year, w.NearYearCredit); ok {
		s.Year = y
		weighted += w.YearWeight * y
		total += w.YearWeight
	}
	if a, ok := AuthorOverlap(authors, cand.authors, w.AuthorSimilarity); ok {
		s.Authors = a
		weighted += w.AuthorWeight * a
		total += w.AuthorWeight
	}
	if total > 0 {
		s.Combined = weighted / total
	}
	s.Combined = math.Round(s.Combined*1e6) / 1e6
	return s
}

type candidateFields struct {
	title   string
	year    int
	authors []string
}
