package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"paper-auditor/models"
	"paper-auditor/providers"

	"go.uber.org/zap"
)

// Reference section headers in order of preference.
var refSections = []string{
	"References",
	"Bibliography",
	"Literature Cited",
	"Works Cited",
	"Literature",
	"Citations",
	"Literaturverzeichnis",
	"Literatur",
	"Quellen",
	"Sources",
}

var (
	sectionEndRe  = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:[A-Z]\.?[ \t]+)?(?:Appendix|Appendices|Supplementary (?:Material|Information)|Acknowledge?ments)\b.*$`)
	numberedLine  = regexp.MustCompile(`^\s*(?:\[(\d{1,3})\]|(\d{1,3})[.)])\s+\S`)
	authorLikeRe  = regexp.MustCompile(`^[\p{Lu}][\p{L}'’\-]+,?\s+(?:[\p{Lu}]\.|[\p{Lu}]{1,3}\b|[\p{Lu}][\p{Ll}]+)`)
	anyYearRe     = regexp.MustCompile(`\b` + yearPattern + `[a-z]?\b`)
	parenYearRe   = regexp.MustCompile(`\((` + yearPattern + `)[a-z]?\)`)
	doiRe         = regexp.MustCompile(`(?i)\b(10\.\d{4,9}/[^\s"<>]+)`)
	pmidRe        = regexp.MustCompile(`(?i)\bPMID:?\s*(\d{5,9})\b`)
	arxivRe       = regexp.MustCompile(`(?i)(?:arXiv:\s*|arxiv\.org/(?:abs|pdf)/)(\d{4}\.\d{4,5}(?:v\d+)?|[a-z\-]+(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)`)
	urlRe         = regexp.MustCompile(`https?://[^\s<>"]+`)
	quotedTitleRe = regexp.MustCompile(`["“]([^"“”]{8,})["”]`)
	volumePagesRe = regexp.MustCompile(`(\d+)\s*(?:\((\d+)\))?\s*[:,]\s*(?:pp?\.?\s*)?(\d+\s*[-–]\s*\d+|e?\d+)`)
	pagesRe       = regexp.MustCompile(`\bpp?\.?\s*(\d+\s*[-–]\s*\d+)`)
	leadNumberRe  = regexp.MustCompile(`^\s*(?:\[\d{1,3}\]|\d{1,3}[.)])\s*`)
	identifierTag = regexp.MustCompile(`(?i)\b(?:doi|pmid|pmcid|arxiv|isbn|issn|available at|retrieved from|url)\b:?`)
)

// locateReferenceSection splits text into the body before the reference
// section and the reference block itself.
func locateReferenceSection(text string) (body, block string, found bool) {
	for _, section := range refSections {
		re := regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:[0-9]+\.?[ \t]*|[IVX]+\.[ \t]*)?` +
			regexp.QuoteMeta(section) + `[ \t]*:?[ \t]*$`)
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		last := locs[len(locs)-1]
		block = text[last[1]:]
		if end := sectionEndRe.FindStringIndex(block); end != nil {
			block = block[:end[0]]
		}
		return text[:last[0]], block, true
	}

	if start, ok := numberedBlockStart(text); ok {
		return text[:start], text[start:], true
	}
	return text, "", false
}

// numberedBlockStart finds the last line starting a run "1", "2", "3", ...
// of numbered lines.
func numberedBlockStart(text string) (int, bool) {
	offset := 0
	best := -1
	expect := 0
	runStart := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			n := atoiFirst(m[1], m[2])
			switch {
			case n == 1:
				runStart, expect = offset, 2
			case n == expect:
				expect++
				if expect > 3 {
					best = runStart
				}
			}
		}
		offset += len(line)
	}
	return best, best >= 0
}

func atoiFirst(values ...string) int {
	for _, v := range values {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

type rawEntry struct {
	number int
	text   string
}

// splitReferenceEntries splits the reference block by explicit numbering,
// then by blank lines, then by author-like line starts.
func splitReferenceEntries(block string) []rawEntry {
	block = strings.ReplaceAll(block, "\f", "\n")
	lines := strings.Split(block, "\n")

	numbered := 0
	for _, l := range lines {
		if numberedLine.MatchString(l) {
			numbered++
		}
	}
	if numbered >= 2 {
		return splitNumbered(lines)
	}

	var paragraphs []rawEntry
	var cur []string
	flush := func() {
		if text := joinEntry(cur); text != "" {
			paragraphs = append(paragraphs, rawEntry{text: text})
		}
		cur = nil
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			flush()
			continue
		}
		cur = append(cur, l)
	}
	flush()
	if len(paragraphs) >= 2 {
		return paragraphs
	}

	var entries []rawEntry
	cur = nil
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if len(cur) > 0 && authorLikeRe.MatchString(t) && anyYearRe.MatchString(joinEntry(cur)) {
			entries = append(entries, rawEntry{text: joinEntry(cur)})
			cur = nil
		}
		cur = append(cur, t)
	}
	if text := joinEntry(cur); text != "" {
		entries = append(entries, rawEntry{text: text})
	}
	return entries
}

func splitNumbered(lines []string) []rawEntry {
	var entries []rawEntry
	var cur []string
	number := 0
	flush := func() {
		if text := joinEntry(cur); text != "" && number > 0 {
			entries = append(entries, rawEntry{number: number, text: text})
		}
		cur = nil
	}
	for _, l := range lines {
		if m := numberedLine.FindStringSubmatch(l); m != nil {
			flush()
			number = atoiFirst(m[1], m[2])
			cur = append(cur, leadNumberRe.ReplaceAllString(l, ""))
			continue
		}
		if strings.TrimSpace(l) != "" && number > 0 {
			cur = append(cur, l)
		}
	}
	flush()
	return entries
}

func joinEntry(lines []string) string {
	return strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}

// ParseReference extracts metadata from the text of one bibliography entry.
func ParseReference(raw string) models.CitationMetadata {
	text := strings.TrimSpace(leadNumberRe.ReplaceAllString(raw, ""))
	var meta models.CitationMetadata

	if m := doiRe.FindStringSubmatch(text); m != nil {
		meta.DOI = providers.NormalizeDOI(m[1])
	}
	if m := pmidRe.FindStringSubmatch(text); m != nil {
		meta.PMID = m[1]
	}
	if m := arxivRe.FindStringSubmatch(text); m != nil {
		meta.ArXivID = providers.NormalizeArXivID(m[1])
	}
	if m := urlRe.FindString(text); m != "" {
		meta.URL = strings.TrimRight(m, ".,;)")
	}

	// Identifiers are removed before the positional fields are parsed.
	clean := urlRe.ReplaceAllString(text, " ")
	clean = doiRe.ReplaceAllString(clean, " ")
	clean = pmidRe.ReplaceAllString(clean, " ")
	clean = arxivRe.ReplaceAllString(clean, " ")
	clean = identifierTag.ReplaceAllString(clean, " ")
	clean = strings.Join(strings.Fields(clean), " ")

	if m := parenYearRe.FindStringSubmatch(clean); m != nil {
		meta.Year, _ = strconv.Atoi(m[1])
	} else if m := anyYearRe.FindString(clean); m != "" {
		meta.Year, _ = strconv.Atoi(m[:4])
	}

	var authorPart, rest string
	if loc := quotedTitleRe.FindStringSubmatchIndex(clean); loc != nil {
		meta.Title = cleanTitle(clean[loc[2]:loc[3]])
		authorPart = clean[:loc[0]]
		rest = clean[loc[1]:]
	} else {
		segments := splitSegments(clean)
		if len(segments) > 0 {
			authorPart = segments[0]
		}
		titleIdx := -1
		for i := 1; i < len(segments); i++ {
			if looksLikeTitle(segments[i]) {
				titleIdx = i
				break
			}
		}
		if titleIdx > 0 {
			meta.Title = cleanTitle(segments[titleIdx])
			rest = strings.Join(segments[titleIdx+1:], ". ")
		} else if len(segments) == 1 && !looksLikeAuthors(segments[0]) {
			meta.Title = cleanTitle(segments[0])
			authorPart = ""
		}
	}

	meta.Authors = parseAuthors(authorPart)
	meta.Journal = parseJournal(rest)
	if m := volumePagesRe.FindStringSubmatch(rest); m != nil {
		meta.Volume = m[1]
		meta.Pages = strings.ReplaceAll(strings.ReplaceAll(m[3], " ", ""), "–", "-")
	} else if m := pagesRe.FindStringSubmatch(rest); m != nil {
		meta.Pages = strings.ReplaceAll(strings.ReplaceAll(m[1], " ", ""), "–", "-")
	}
	return meta
}

// splitSegments splits an entry at ". " followed by an upper-case letter or
// digit, keeping initials ("J. Smith") and abbreviations together.
func splitSegments(s string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '.' && s[i] != '?' && s[i] != '!' {
			continue
		}
		if i+2 > len(s) || s[i+1] != ' ' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[i+2:])
		if !unicode.IsUpper(next) && !unicode.IsDigit(next) && next != '(' {
			continue
		}
		if s[i] == '.' && !segmentBreakAfter(s[start:i], s[i+2:]) {
			continue
		}
		if seg := strings.TrimSpace(s[start:i]); seg != "" {
			segments = append(segments, seg)
		}
		start = i + 2
	}
	if seg := strings.TrimSpace(strings.TrimRight(s[start:], ". ")); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

// segmentBreakAfter decides whether a period ends a segment. After a single
// initial the segment only ends when the next word does not continue an
// author name ("Hinton, G. Deep learning" splits, "X. Zhang, and" does not).
// Upper-case initials are checked before abbreviations so "Poe P." is an
// author and not a page locator.
func segmentBreakAfter(before, after string) bool {
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return false
	}
	last := strings.TrimLeft(fields[len(fields)-1], "([")
	lower := strings.ToLower(last)
	if lower == "al" {
		return true
	}
	if !isInitialToken(last) {
		return !sentenceAbbreviations[lower] && lower != "in" && lower != "ed" && lower != "eds"
	}
	if len(fields) < 2 {
		return false
	}
	prev := strings.ToLower(fields[len(fields)-2])
	if prev == "and" || prev == "&" || isInitialToken(strings.TrimRight(fields[len(fields)-2], ".,")) {
		return false
	}
	next := strings.Fields(after)
	if len(next) == 0 {
		return true
	}
	if isInitialToken(strings.TrimRight(next[0], ".,")) || strings.HasSuffix(next[0], ",") {
		return false
	}
	if len(next) < 3 || (next[1] != "and" && next[1] != "&") {
		return true
	}
	// "He and X. Zhang" continues the list, "Masks and transmission" is a title.
	return !isInitialToken(strings.TrimRight(next[2], ".,"))
}

func isInitialToken(s string) bool {
	s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), "-", "")
	if s == "" || utf8.RuneCountInString(s) > 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func looksLikeTitle(seg string) bool {
	seg = strings.TrimSpace(parenYearRe.ReplaceAllString(seg, ""))
	if wordCount(seg) < 2 {
		return false
	}
	if strings.HasPrefix(seg, "In ") {
		return false
	}
	letters := 0
	for _, r := range seg {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= len(seg)/2
}

func looksLikeAuthors(seg string) bool {
	return authorLikeRe.MatchString(seg) && (strings.Contains(seg, ",") || strings.Contains(seg, "&"))
}

func cleanTitle(t string) string {
	t = parenYearRe.ReplaceAllString(t, "")
	t = strings.Trim(strings.TrimSpace(t), ".,;:\"“”'")
	return strings.Join(strings.Fields(t), " ")
}

var (
	authorSplitRe = regexp.MustCompile(`\s*(?:;|&|,|\band\b)\s*`)
	etAlRe        = regexp.MustCompile(`(?i)\bet\.?\s*al\.?`)
	nameParticles = map[string]bool{
		"van": true, "von": true, "de": true, "der": true, "den": true, "la": true,
		"le": true, "di": true, "da": true, "del": true, "du": true, "dos": true,
	}
)

// parseAuthors returns surnames from an author list in "Surname, I.",
// "Surname I" or "I. Surname" form.
func parseAuthors(part string) []string {
	part = parenYearRe.ReplaceAllString(part, " ")
	part = anyYearRe.ReplaceAllString(part, " ")
	part = etAlRe.ReplaceAllString(part, " ")
	var out []string
	for _, tok := range authorSplitRe.Split(part, -1) {
		tok = strings.Trim(strings.TrimSpace(tok), ".:()")
		if tok == "" || strings.ContainsAny(tok, "0123456789") {
			continue
		}
		if s := surnameOf(tok); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}

// surnameOf returns the last non-initial word of a name together with any
// lower-case particles before it.
func surnameOf(name string) string {
	words := strings.Fields(name)
	last := -1
	for i := len(words) - 1; i >= 0; i-- {
		if !isInitialToken(words[i]) {
			last = i
			break
		}
	}
	if last < 0 {
		return ""
	}
	first := last
	for first > 0 && nameParticles[strings.ToLower(words[first-1])] {
		first--
	}
	surname := strings.Trim(strings.Join(words[first:last+1], " "), ".,")
	r, _ := utf8.DecodeRuneInString(surname)
	if !unicode.IsLetter(r) {
		return ""
	}
	return surname
}

var (
	trailingLocator = regexp.MustCompile(`(?i)[\s,(]*(?:pp?|vol|no)\.?\s*$`)
	// Abbreviated venue words that keep their period ("Proc. CVPR").
	venueAbbreviations = map[string]bool{
		"proc": true, "conf": true, "int": true, "intl": true, "trans": true, "symp": true,
		"j": true, "jour": true, "assoc": true, "soc": true, "natl": true, "acad": true,
		"annu": true, "am": true, "eur": true, "rev": true, "lett": true, "adv": true,
		"res": true, "sci": true, "med": true, "phys": true, "chem": true, "comput": true,
		"eng": true, "ieee": true, "acm": true,
	}
)

// parseJournal takes the venue from the segment following the title.
func parseJournal(rest string) string {
	rest = strings.TrimLeft(rest, " .,;:")
	if rest == "" {
		return ""
	}
	seg := rest
	if segs := splitSegments(rest); len(segs) > 0 {
		seg = segs[0]
		for i := 1; i < len(segs) && endsWithVenueAbbreviation(seg); i++ {
			seg += ". " + segs[i]
		}
	}
	seg = strings.TrimPrefix(seg, "In: ")
	seg = strings.TrimPrefix(seg, "In ")
	seg = strings.TrimPrefix(seg, "in ")
	if i := strings.IndexFunc(seg, unicode.IsDigit); i >= 0 {
		seg = seg[:i]
	}
	seg = trailingLocator.ReplaceAllString(seg, "")
	seg = strings.Trim(seg, " .,;:()")
	if utf8.RuneCountInString(seg) < 2 || !strings.ContainsFunc(seg, unicode.IsLetter) {
		return ""
	}
	return seg
}

func endsWithVenueAbbreviation(seg string) bool {
	fields := strings.Fields(seg)
	return len(fields) > 0 && venueAbbreviations[strings.ToLower(fields[len(fields)-1])]
}

// normalizeMetadata cleans externally supplied metadata the same way parsed
// entries are cleaned.
func normalizeMetadata(m models.CitationMetadata) models.CitationMetadata {
	out := m.Clone()
	out.Title = cleanTitle(out.Title)
	out.DOI = providers.NormalizeDOI(out.DOI)
	out.PMID = providers.NormalizePMID(out.PMID)
	out.ArXivID = providers.NormalizeArXivID(out.ArXivID)
	out.Journal = strings.TrimSpace(out.Journal)
	var authors []string
	for _, a := range out.Authors {
		if s := strings.TrimSpace(a); s != "" {
			authors = append(authors, s)
		}
	}
	out.Authors = authors
	return out
}

type preparedReferences struct {
	refs      []models.Reference
	byNumber  map[int]int
	numbered  bool
	maxNumber int
	dropped   int
	merged    int
}

// prepareReferences drops ineligible entries, merges duplicates and builds
// the number (or position) index used to resolve markers.
func (ce *CitationExtractor) prepareReferences(in []models.Reference) preparedReferences {
	p := preparedReferences{byNumber: map[int]int{}, refs: []models.Reference{}}
	for _, r := range in {
		if r.Number > 0 {
			p.numbered = true
			break
		}
	}

	for i, r := range in {
		number := r.Number
		if number == 0 {
			number = i + 1
		}
		if number > p.maxNumber {
			p.maxNumber = number
		}
		if !r.Metadata.Eligible() {
			p.dropped++
			ce.Logger.Debug("Dropping reference without title or identifier",
				zap.Int("number", number), zap.String("raw", truncate(r.RawText, 120)))
			continue
		}
		if r.Key == "" {
			r.Key = fmt.Sprintf("ref%d", number)
		}
		if r.Contexts == nil {
			r.Contexts = []models.CitationContext{}
		}

		if dup := ce.findDuplicate(p.refs, r.Metadata); dup >= 0 {
			p.merged++
			kept := &p.refs[dup]
			ce.Logger.Debug("Merging duplicate reference",
				zap.String("kept", kept.Key), zap.String("duplicate", r.Key))
			if r.Metadata.FieldCount() > kept.Metadata.FieldCount() {
				key, num := kept.Key, kept.Number
				*kept = r
				kept.Key, kept.Number = key, num
			}
			p.byNumber[number] = dup
			continue
		}
		p.refs = append(p.refs, r)
		p.byNumber[number] = len(p.refs) - 1
	}
	return p
}

func (ce *CitationExtractor) findDuplicate(refs []models.Reference, m models.CitationMetadata) int {
	for i, r := range refs {
		if m.DOI != "" && m.DOI == r.Metadata.DOI {
			return i
		}
		if m.Title != "" && r.Metadata.Title != "" &&
			TitleSimilarity(m.Title, r.Metadata.Title, ce.Scoring) >= ce.Scoring.DedupThreshold {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
