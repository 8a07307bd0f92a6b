package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"paper-auditor/config"
	"paper-auditor/models"

	"go.uber.org/zap"
)

// CitationExtractor turns document text into in-text citation markers and a
// parsed reference list. It never fails on malformed input; problems are
// counted in the diagnostics of the result.
type CitationExtractor struct {
	Logger     *zap.Logger
	Scoring    config.MatchScoring
	normalizer *TextNormalizer
}

// Extraction is the result of one extractor run.
type Extraction struct {
	PaperTitle   string                  `json:"paper_title"`
	PaperAuthors []string                `json:"paper_authors"`
	Abstract     string                  `json:"abstract,omitempty"`
	Markers      []models.CitationMarker `json:"markers"`
	References   []models.Reference      `json:"references"`
	Diagnostics  models.Diagnostics      `json:"diagnostics"`
}

// NewCitationExtractor creates an extractor using the given match scoring
// for deduplication and surname matching.
func NewCitationExtractor(scoring config.MatchScoring, logger *zap.Logger) *CitationExtractor {
	return &CitationExtractor{
		Logger:     logger,
		Scoring:    scoring,
		normalizer: NewTextNormalizer(logger),
	}
}

// Extract parses markers and the reference section of text.
func (ce *CitationExtractor) Extract(text string) *Extraction {
	return ce.extract(text, nil)
}

// ExtractWithReferences parses markers from text but takes the reference list
// from an imported bibliography instead of the reference section.
func (ce *CitationExtractor) ExtractWithReferences(text string, refs []models.Reference) *Extraction {
	if refs == nil {
		refs = []models.Reference{}
	}
	return ce.extract(text, refs)
}

func (ce *CitationExtractor) extract(text string, imported []models.Reference) *Extraction {
	normalized, _ := ce.normalizer.Normalize(text, DefaultNormalizeOptions())
	front := ParseFrontMatter(normalized)
	result := &Extraction{
		PaperTitle:   front.Title,
		PaperAuthors: front.Authors,
		Abstract:     front.Abstract,
		Markers:      []models.CitationMarker{},
	}

	body, block, found := locateReferenceSection(normalized)
	if !found {
		ce.Logger.Warn("No references section found")
	}

	var refs []models.Reference
	if imported != nil {
		for _, r := range imported {
			r.Metadata = normalizeMetadata(r.Metadata)
			refs = append(refs, r)
		}
	} else {
		for _, entry := range splitReferenceEntries(block) {
			refs = append(refs, models.Reference{
				Number:   entry.number,
				RawText:  entry.text,
				Metadata: ParseReference(entry.text),
			})
		}
	}

	prepared := ce.prepareReferences(refs)
	result.References = prepared.refs
	result.Diagnostics.DroppedReferences = prepared.dropped
	result.Diagnostics.MergedDuplicates = prepared.merged

	hits := findMarkers(body, prepared.numbered, prepared.maxNumber)
	sentences := splitSentences(body)
	headings := findHeadings(body)
	paged := strings.Contains(normalized, "\f")

	for _, h := range hits {
		h.marker.Context = buildContext(body, h, hits, sentences, headings, paged)
		result.Markers = append(result.Markers, h.marker)

		targets, unresolved := ce.resolveMarker(h.marker, prepared)
		result.Diagnostics.UnresolvedMarkers += unresolved
		for _, idx := range targets {
			ref := &result.References[idx]
			ref.Contexts = append(ref.Contexts, h.marker.Context)
		}
	}
	result.Diagnostics.Markers = len(hits)

	ce.Logger.Info("Citation extraction completed",
		zap.Int("markers", len(hits)),
		zap.Int("references", len(result.References)),
		zap.Int("dropped_references", prepared.dropped),
		zap.Int("merged_duplicates", prepared.merged),
		zap.Int("unresolved_markers", result.Diagnostics.UnresolvedMarkers))
	return result
}

// resolveMarker maps a marker to reference indexes. Numbered markers use the
// entry number (or list position); author-year markers the first author
// surname and year.
func (ce *CitationExtractor) resolveMarker(m models.CitationMarker, p preparedReferences) ([]int, int) {
	var targets []int
	unresolved := 0
	seen := map[int]bool{}
	add := func(idx int) {
		if !seen[idx] {
			seen[idx] = true
			targets = append(targets, idx)
		}
	}
	for _, n := range m.Numbers {
		if idx, ok := p.byNumber[n]; ok {
			add(idx)
		} else {
			unresolved++
		}
	}
	for _, c := range m.Cites {
		if idx, ok := ce.findByAuthorYear(p.refs, c); ok {
			add(idx)
		} else {
			unresolved++
		}
	}
	return targets, unresolved
}

func (ce *CitationExtractor) findByAuthorYear(refs []models.Reference, c models.AuthorYear) (int, bool) {
	want := NormalizeSurname(c.Surname)
	if want == "" {
		return 0, false
	}
	fallback, fallbackCount := -1, 0
	for i, r := range refs {
		if len(r.Metadata.Authors) == 0 {
			continue
		}
		got := NormalizeSurname(r.Metadata.Authors[0])
		if got != want && JaroWinkler(got, want) < ce.Scoring.AuthorSimilarity {
			continue
		}
		if r.Metadata.Year == c.Year {
			return i, true
		}
		if r.Metadata.Year == 0 {
			fallback = i
			fallbackCount++
		}
	}
	if fallbackCount == 1 {
		return fallback, true
	}
	return 0, false
}

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

type markerHit struct {
	marker models.CitationMarker
	span   span
	strip  span // removed from the claim sentence
}

const yearPattern = `(?:1[89]|20)\d{2}`

var (
	numberedRe    = regexp.MustCompile(`\[(\d{1,3}(?:\s*[-–,;]\s*\d{1,3})*)\]`)
	parentheticRe = regexp.MustCompile(`\(([^()]*\b` + yearPattern + `[a-z]?\b[^()]*)\)`)
	authorYearRe  = regexp.MustCompile(`^(?:(?:see|e\.g\.|cf\.|also|i\.e\.)[,\s]+)*` +
		`([\p{Lu}][\p{L}'’\-]+(?:[\s,]+(?:[\p{Lu}][\p{L}'’\-]+|&|and|et\s+al\.?|van|von|de|der|den|la|le|di|da|del))*)` +
		`[,\s]+(` + yearPattern + `)[a-z]?` +
		`(?:[,:\s]+((?:pp?\.?\s*)?\d+(?:\s*[-–]\s*\d+)?))?$`)
	narrativeRe = regexp.MustCompile(`([\p{Lu}][\p{L}'’\-]+)(\s+et\s+al\.?|\s+(?:and|&)\s+[\p{Lu}][\p{L}'’\-]+)?\s+` +
		`(\((` + yearPattern + `)[a-z]?(?:,\s*((?:pp?\.?\s*)?\d+(?:[-–]\d+)?))?\))`)
	superscriptRe   = regexp.MustCompile(`[⁰¹²³⁴⁵⁶⁷⁸⁹]+(?:[,⁻–-][⁰¹²³⁴⁵⁶⁷⁸⁹]+)*`)
	trailingDigitRe = regexp.MustCompile(`[\p{Ll})\]"”'’.,;:](\d{1,3}(?:[,–-]\d{1,3})*)(?:[\s.,;:)]|$)`)
	authorYearHint  = regexp.MustCompile(`\([\p{Lu}][^()]*\b` + yearPattern + `[a-z]?\b[^()]*\)`)
)

var narrativeStopWords = map[string]bool{
	"In": true, "The": true, "See": true, "Since": true, "By": true, "From": true, "Until": true,
	"Year": true, "Table": true, "Figure": true, "Fig": true, "Section": true, "Eq": true,
	"Equation": true, "Appendix": true, "Chapter": true, "Version": true, "Before": true,
	"After": true, "During": true, "Of": true, "And": true, "This": true, "Summer": true,
	"Winter": true, "Spring": true, "Autumn": true,
}

var superscriptDigits = strings.NewReplacer(
	"⁰", "0", "¹", "1", "²", "2", "³", "3", "⁴", "4",
	"⁵", "5", "⁶", "6", "⁷", "7", "⁸", "8", "⁹", "9", "⁻", "-",
)

// ContainsCitation reports whether s carries a recognizable in-text marker.
func ContainsCitation(s string) bool {
	return numberedRe.MatchString(s) || authorYearHint.MatchString(s) || superscriptRe.MatchString(s)
}

// findMarkers applies the marker patterns in order. A span claimed by an
// earlier pattern is never matched again.
func findMarkers(body string, numbered bool, maxNumber int) []markerHit {
	var hits []markerHit
	free := func(s span) bool {
		for _, h := range hits {
			if h.span.overlaps(s) {
				return false
			}
		}
		return true
	}

	for _, m := range numberedRe.FindAllStringSubmatchIndex(body, -1) {
		s := span{m[0], m[1]}
		nums := expandNumbers(body[m[2]:m[3]])
		if len(nums) == 0 || !free(s) {
			continue
		}
		hits = append(hits, markerHit{
			marker: models.CitationMarker{Text: body[m[0]:m[1]], Family: models.FamilyNumbered, Offset: m[0], Numbers: nums},
			span:   s,
			strip:  s,
		})
	}

	for _, m := range parentheticRe.FindAllStringSubmatchIndex(body, -1) {
		s := span{m[0], m[1]}
		if !free(s) {
			continue
		}
		cites, harvard := parseAuthorYearGroup(body[m[2]:m[3]])
		if len(cites) == 0 {
			continue
		}
		family := models.FamilyAuthorYear
		if harvard {
			family = models.FamilyHarvard
		}
		hits = append(hits, markerHit{
			marker: models.CitationMarker{Text: body[m[0]:m[1]], Family: family, Offset: m[0], Cites: cites},
			span:   s,
			strip:  s,
		})
	}

	for _, m := range narrativeRe.FindAllStringSubmatchIndex(body, -1) {
		s := span{m[0], m[1]}
		surname := body[m[2]:m[3]]
		if narrativeStopWords[surname] || !free(s) {
			continue
		}
		year, _ := strconv.Atoi(body[m[8]:m[9]])
		cite := models.AuthorYear{Surname: surname, Year: year}
		family := models.FamilyNarrative
		if m[10] >= 0 {
			cite.Pages = body[m[10]:m[11]]
			family = models.FamilyHarvard
		}
		hits = append(hits, markerHit{
			marker: models.CitationMarker{Text: body[m[0]:m[1]], Family: family, Offset: m[0], Cites: []models.AuthorYear{cite}},
			span:   s,
			strip:  span{m[6], m[7]},
		})
	}

	for _, m := range superscriptRe.FindAllStringIndex(body, -1) {
		s := span{m[0], m[1]}
		nums := expandNumbers(superscriptDigits.Replace(body[m[0]:m[1]]))
		if len(nums) == 0 || !free(s) {
			continue
		}
		hits = append(hits, markerHit{
			marker: models.CitationMarker{Text: body[m[0]:m[1]], Family: models.FamilySuperscript, Offset: m[0], Numbers: nums},
			span:   s,
			strip:  s,
		})
	}

	// Plain trailing digits are only trusted for numbered reference lists.
	if numbered && maxNumber > 0 {
		for _, m := range trailingDigitRe.FindAllStringSubmatchIndex(body, -1) {
			s := span{m[2], m[3]}
			if isDecimalTail(body, m[2]) || !free(s) {
				continue
			}
			nums := expandNumbers(body[m[2]:m[3]])
			if len(nums) == 0 || nums[len(nums)-1] > maxNumber || !allInRange(nums, maxNumber) {
				continue
			}
			hits = append(hits, markerHit{
				marker: models.CitationMarker{Text: body[m[2]:m[3]], Family: models.FamilySuperscript, Offset: m[2], Numbers: nums},
				span:   s,
				strip:  s,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].span.start < hits[j].span.start })
	return hits
}

// isDecimalTail reports whether the digits at pos follow "<digit>." or "<digit>,".
func isDecimalTail(body string, pos int) bool {
	if pos < 2 {
		return false
	}
	sep := body[pos-1]
	return (sep == '.' || sep == ',') && body[pos-2] >= '0' && body[pos-2] <= '9'
}

func allInRange(nums []int, max int) bool {
	for _, n := range nums {
		if n < 1 || n > max {
			return false
		}
	}
	return true
}

// expandNumbers turns "1-3, 5" into [1 2 3 5].
func expandNumbers(s string) []int {
	var out []int
	seen := map[int]bool{}
	add := func(n int) {
		if n > 0 && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(strings.ReplaceAll(part, "–", "-"), "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil || b < a || b-a > 100 {
				continue
			}
			for n := a; n <= b; n++ {
				add(n)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			add(n)
		}
	}
	return out
}

// parseAuthorYearGroup parses "Smith, 2021; Jones et al., 2019, p. 4".
// harvard is true when any cite carries a page locator.
func parseAuthorYearGroup(group string) (cites []models.AuthorYear, harvard bool) {
	for _, part := range strings.Split(group, ";") {
		m := authorYearRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[2])
		cite := models.AuthorYear{Surname: firstAuthor(m[1]), Year: year, Pages: m[3]}
		if cite.Surname == "" {
			continue
		}
		if cite.Pages != "" {
			harvard = true
		}
		cites = append(cites, cite)
	}
	return cites, harvard
}

var firstAuthorCut = regexp.MustCompile(`\s*(?:,|&|\band\b|\bet\s+al\b)`)

func firstAuthor(authors string) string {
	if loc := firstAuthorCut.FindStringIndex(authors); loc != nil {
		authors = authors[:loc[0]]
	}
	return strings.TrimSpace(authors)
}

var sentenceAbbreviations = map[string]bool{
	"al": true, "e.g": true, "i.e": true, "cf": true, "vs": true, "etc": true, "dr": true,
	"prof": true, "fig": true, "figs": true, "tab": true, "eq": true, "eqs": true, "no": true,
	"vol": true, "pp": true, "p": true, "sec": true, "ch": true, "approx": true, "ref": true,
	"refs": true, "resp": true, "ca": true,
}

// splitSentences returns trimmed sentence spans. Boundaries are terminal
// punctuation followed by an upper-case start, paragraph breaks, page
// breaks and heading lines.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	emit := func(end int) {
		s, e := start, end
		for s < e && isSpaceByte(text[s]) {
			s++
		}
		for e > s && isSpaceByte(text[e-1]) {
			e--
		}
		if e > s {
			spans = append(spans, span{s, e})
		}
		start = end
	}

	lineStart := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '\f':
			emit(i)
			lineStart = i + 1
		case r == '\n':
			line := text[lineStart:i]
			next := nextLine(text, i+1)
			if strings.TrimSpace(next) == "" || isHeading(line) || isHeading(next) {
				emit(i)
			}
			lineStart = i + 1
		case r == '.' || r == '!' || r == '?':
			end := i + size
			for end < len(text) {
				t, ts := utf8.DecodeRuneInString(text[end:])
				if t == '.' || t == '!' || t == '?' || t == ')' || t == ']' || t == '"' || t == '”' || t == '\'' ||
					unicode.IsDigit(t) || t == ',' || strings.ContainsRune("⁰¹²³⁴⁵⁶⁷⁸⁹", t) {
					end += ts
					continue
				}
				break
			}
			if r == '.' && isAbbreviation(text[lineStartOrSentence(start, lineStart):i]) {
				i = end
				continue
			}
			if startsNewSentence(text, end) {
				emit(end)
			}
			i = end
			continue
		}
		i += size
	}
	emit(len(text))
	return spans
}

func lineStartOrSentence(start, lineStart int) int {
	if lineStart > start {
		return lineStart
	}
	return start
}

func nextLine(text string, from int) string {
	if from >= len(text) {
		return ""
	}
	end := strings.IndexAny(text[from:], "\n\f")
	if end < 0 {
		return text[from:]
	}
	return text[from : from+end]
}

// isAbbreviation reports whether the text before a period ends in a known
// abbreviation or a single initial.
func isAbbreviation(before string) bool {
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return false
	}
	last := strings.TrimLeft(fields[len(fields)-1], "([\"")
	if sentenceAbbreviations[strings.ToLower(last)] {
		return true
	}
	r, size := utf8.DecodeRuneInString(last)
	return size == len(last) && unicode.IsUpper(r)
}

// startsNewSentence reports whether whitespace followed by a sentence start
// begins at pos.
func startsNewSentence(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	i := pos
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n') {
		i++
	}
	if i == pos || i >= len(text) {
		return i >= len(text)
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '[' || r == '(' || r == '"' || r == '“'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

var (
	headingRe     = regexp.MustCompile(`^(?:#{1,6}\s*)?(?:(?:\d+(?:\.\d+)*\.?|[IVX]+\.)\s+)?([\p{Lu}][\p{L}\p{N} ,&:'’()/\-]{1,80})$`)
	knownSections = map[string]bool{
		"abstract": true, "introduction": true, "background": true, "related work": true,
		"literature review": true, "method": true, "methods": true, "methodology": true,
		"materials and methods": true, "approach": true, "experiments": true, "experimental setup": true,
		"evaluation": true, "results": true, "discussion": true, "conclusion": true, "conclusions": true,
		"limitations": true, "future work": true, "acknowledgements": true, "acknowledgments": true,
		"references": true, "bibliography": true, "appendix": true, "keywords": true,
	}
)

type heading struct {
	offset int
	name   string
}

// headingName returns the cleaned heading text of line, or "".
func headingName(line string) string {
	t := strings.TrimSpace(line)
	if t == "" || len(t) > 90 || ContainsCitation(t) {
		return ""
	}
	m := headingRe.FindStringSubmatch(t)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if wordCount(name) > 8 || strings.HasSuffix(name, ",") {
		return ""
	}
	switch {
	case knownSections[strings.ToLower(name)]:
		return name
	case name != t && !strings.ContainsAny(name, ","):
		return name
	case len(name) > 3 && strings.ToUpper(name) == name && strings.ContainsFunc(name, unicode.IsLetter):
		return name
	}
	return ""
}

func isHeading(line string) bool {
	return headingName(line) != ""
}

func findHeadings(text string) []heading {
	var out []heading
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		for _, part := range strings.SplitAfter(line, "\f") {
			if name := headingName(strings.TrimRight(part, "\n\f")); name != "" {
				out = append(out, heading{offset: offset, name: name})
			}
			offset += len(part)
		}
	}
	return out
}

// buildContext locates the claim sentence, the surrounding window, the page
// and the section of one marker.
func buildContext(body string, h markerHit, all []markerHit, sentences []span, headings []heading, paged bool) models.CitationContext {
	var ctx models.CitationContext
	idx := sentenceIndex(sentences, h.span.start)
	if idx >= 0 {
		ctx.ClaimStatement = claimText(body, sentences[idx], all)
		lo, hi := idx-1, idx+1
		if lo < 0 {
			lo = 0
		}
		if hi >= len(sentences) {
			hi = len(sentences) - 1
		}
		var window []string
		for i := lo; i <= hi; i++ {
			window = append(window, body[sentences[i].start:sentences[i].end])
		}
		ctx.SurroundingText = strings.Join(strings.Fields(strings.Join(window, " ")), " ")
	}
	if paged {
		page := 1 + strings.Count(body[:h.span.start], "\f")
		ctx.PageNumber = &page
	}
	for _, hd := range headings {
		if hd.offset > h.span.start {
			break
		}
		ctx.Section = hd.name
	}
	return ctx
}

func sentenceIndex(sentences []span, offset int) int {
	idx := -1
	for i, s := range sentences {
		if s.start > offset {
			break
		}
		idx = i
		if offset < s.end {
			break
		}
	}
	return idx
}

var spaceBeforePunct = regexp.MustCompile(`\s+([.,;:!?)])`)

// claimText is the sentence with every marker inside it removed.
func claimText(body string, sentence span, hits []markerHit) string {
	var b strings.Builder
	pos := sentence.start
	for _, h := range hits {
		if h.strip.start < pos || h.strip.end > sentence.end {
			continue
		}
		b.WriteString(body[pos:h.strip.start])
		b.WriteByte(' ')
		pos = h.strip.end
	}
	b.WriteString(body[pos:sentence.end])
	claim := strings.Join(strings.Fields(b.String()), " ")
	claim = strings.ReplaceAll(claim, "()", "")
	claim = spaceBeforePunct.ReplaceAllString(claim, "$1")
	return strings.Join(strings.Fields(claim), " ")
}
