package services

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeOptions control the clean-up heuristics applied to extracted text.
type NormalizeOptions struct {
	NormalizeUnicode      bool    `json:"normalize_unicode"`
	FixHyphenation        bool    `json:"fix_hyphenation"`
	CollapseWhitespace    bool    `json:"collapse_whitespace"`
	HeaderFooterDetection bool    `json:"header_footer_detection"`
	HeaderFooterThreshold float64 `json:"header_footer_threshold"`
}

// DefaultNormalizeOptions enables every heuristic.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		NormalizeUnicode:      true,
		FixHyphenation:        true,
		CollapseWhitespace:    true,
		HeaderFooterDetection: true,
		HeaderFooterThreshold: 0.6,
	}
}

// NormalizeStats counts what the normalizer changed.
type NormalizeStats struct {
	NumPages       int `json:"num_pages"`
	HyphenFixes    int `json:"hyphen_fixes"`
	HeadersRemoved int `json:"headers_removed"`
	FootersRemoved int `json:"footers_removed"`
}

// TextNormalizer cleans plain document text before extraction. Form feeds
// separating pages are preserved so page numbers can still be derived.
type TextNormalizer struct {
	logger *zap.Logger
}

func NewTextNormalizer(logger *zap.Logger) *TextNormalizer {
	return &TextNormalizer{logger: logger}
}

var (
	hyphenBreakRe  = regexp.MustCompile(`([\p{L}\p{N}])-[ \t]*\r?\n[ \t]*([\p{Ll}])`)
	inlineSpaceRe  = regexp.MustCompile("[\t\v \u00A0]+")
	manyNewlinesRe = regexp.MustCompile(`\n{3,}`)
	pageNumberRe   = regexp.MustCompile(`^(?:[Pp]age\s*)?\d+(?:\s*(?:/|of)\s*\d+)?$`)
	ligatures      = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
	)
)

// Normalize applies the enabled heuristics page by page.
func (tn *TextNormalizer) Normalize(text string, opts NormalizeOptions) (string, NormalizeStats) {
	if opts.HeaderFooterThreshold <= 0 {
		opts.HeaderFooterThreshold = 0.6
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	pages := strings.Split(text, "\f")
	stats := NormalizeStats{NumPages: len(pages)}

	headerCounts, footerCounts := map[string]int{}, map[string]int{}
	if opts.HeaderFooterDetection && len(pages) >= 3 {
		headerCounts, footerCounts = detectHeaderFooterLines(pages)
	}
	threshold := int(math.Ceil(opts.HeaderFooterThreshold * float64(len(pages))))

	for i, page := range pages {
		if opts.NormalizeUnicode {
			page = normalizeUnicodeAndLigatures(page)
		}
		if opts.FixHyphenation {
			var n int
			page, n = fixHyphenation(page)
			stats.HyphenFixes += n
		}
		if opts.HeaderFooterDetection && len(pages) >= 3 {
			var h, f int
			page, h, f = stripRunningLines(page, headerCounts, footerCounts, threshold)
			stats.HeadersRemoved += h
			stats.FootersRemoved += f
		}
		if opts.CollapseWhitespace {
			page = collapseWhitespace(page)
		}
		pages[i] = page
	}

	if stats.HeadersRemoved+stats.FootersRemoved > 0 {
		tn.logger.Debug("Removed running headers and footers",
			zap.Int("headers", stats.HeadersRemoved),
			zap.Int("footers", stats.FootersRemoved))
	}
	return strings.Join(pages, "\f"), stats
}

// detectHeaderFooterLines counts the top and bottom lines of every page.
func detectHeaderFooterLines(pages []string) (map[string]int, map[string]int) {
	headerCounts := map[string]int{}
	footerCounts := map[string]int{}
	for _, text := range pages {
		lines := strings.Split(text, "\n")
		for _, l := range firstNNonEmpty(lines, 2) {
			headerCounts[headerKey(l)]++
		}
		for _, l := range lastNNonEmpty(lines, 2) {
			footerCounts[headerKey(l)]++
		}
	}
	return headerCounts, footerCounts
}

// headerKey ignores digits so "Page 3" and "Page 4" count as the same line.
func headerKey(line string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return '#'
		}
		return r
	}, strings.TrimSpace(line))
}

func stripRunningLines(page string, headers, footers map[string]int, threshold int) (string, int, int) {
	lines := strings.Split(page, "\n")
	top := map[string]bool{}
	for _, l := range firstNNonEmpty(lines, 2) {
		if headers[headerKey(l)] >= threshold || isLikelyPageNumber(l) {
			top[strings.TrimSpace(l)] = true
		}
	}
	bottom := map[string]bool{}
	for _, l := range lastNNonEmpty(lines, 2) {
		if footers[headerKey(l)] >= threshold || isLikelyPageNumber(l) {
			bottom[strings.TrimSpace(l)] = true
		}
	}

	var kept []string
	var headersRemoved, footersRemoved int
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		// Lines carrying a citation marker are never dropped.
		switch {
		case top[trimmed] && !ContainsCitation(trimmed):
			headersRemoved++
			delete(top, trimmed)
			continue
		case bottom[trimmed] && !ContainsCitation(trimmed):
			footersRemoved++
			delete(bottom, trimmed)
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n"), headersRemoved, footersRemoved
}

// normalizeUnicodeAndLigatures replaces ligatures and applies NFC.
func normalizeUnicodeAndLigatures(s string) string {
	s = ligatures.Replace(s)
	normalized, _, err := transform.String(norm.NFC, s)
	if err != nil {
		return s
	}
	return normalized
}

// fixHyphenation joins words split across lines ("ab-\nweichung").
func fixHyphenation(s string) (string, int) {
	count := len(hyphenBreakRe.FindAllStringIndex(s, -1))
	if count == 0 {
		return s, 0
	}
	return hyphenBreakRe.ReplaceAllString(s, "$1$2"), count
}

func collapseWhitespace(s string) string {
	s = inlineSpaceRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	return manyNewlinesRe.ReplaceAllString(s, "\n\n")
}

func isLikelyPageNumber(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed != "" && pageNumberRe.MatchString(trimmed)
}

func firstNNonEmpty(lines []string, n int) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func lastNNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		out = append(out, lines[i])
		if len(out) == n {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// FoldDiacritics removes combining marks ("Müller" -> "Muller").
func FoldDiacritics(s string) string {
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTitle lower-cases, folds diacritics, turns punctuation into
// spaces and collapses whitespace. It is the canonical form used for title
// comparison, dedup and cache keys.
func NormalizeTitle(s string) string {
	s = strings.ToLower(FoldDiacritics(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSurname folds and lower-cases a surname for comparison.
func NormalizeSurname(s string) string {
	s = strings.ToLower(FoldDiacritics(strings.TrimSpace(s)))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
