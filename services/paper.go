package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FrontMatter is what can be read from the top of a paper.
type FrontMatter struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
}

const (
	frontMatterLines  = 20
	maxAbstractLength = 1000
)

var (
	authorLineRe   = regexp.MustCompile(`^[\p{Lu}][\p{Ll}]+(?:[ \-][\p{Lu}][\p{Ll}]+)*(?:\s+[\p{Lu}]\.)*$`)
	authorInvertRe = regexp.MustCompile(`[\p{Lu}][\p{Ll}]+,\s+[\p{Lu}]\.(?:\s*[\p{Lu}]\.)*`)
	abstractHeadRe = regexp.MustCompile(`(?i)^\s*abstract\b[\s:.\-–—]*`)
	abstractEndRe  = regexp.MustCompile(`(?i)^\s*(?:(?:1\.?|I\.)\s+)?(?:introduction|keywords|key words|index terms)\b|^\s*1\.\s`)
	affiliationRe  = regexp.MustCompile(`[@\d]|(?i)\b(?:university|institute|department|school|college|laboratory|inc|ltd)\b`)
	nameSplitRe    = regexp.MustCompile(`\s*(?:,|;|\band\b|&)\s*`)
)

// ParseFrontMatter reads title, authors and abstract from the first lines of text.
func ParseFrontMatter(text string) FrontMatter {
	var fm FrontMatter
	lines := strings.Split(strings.ReplaceAll(text, "\f", "\n"), "\n")

	titleIdx := -1
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) > 10 {
			fm.Title = l
			titleIdx = i
			break
		}
	}

	limit := frontMatterLines
	if limit > len(lines) {
		limit = len(lines)
	}
	seen := map[string]bool{}
	for i := titleIdx + 1; i >= 1 && i < limit; i++ {
		l := strings.TrimSpace(lines[i])
		if abstractHeadRe.MatchString(l) {
			break
		}
		for _, name := range authorNames(l) {
			if !seen[name] {
				seen[name] = true
				fm.Authors = append(fm.Authors, name)
			}
		}
	}
	if fm.Authors == nil {
		fm.Authors = []string{}
	}

	fm.Abstract = abstractOf(lines)
	return fm
}

// authorNames returns the personal names on an author line, or nothing when
// the line does not look like one.
func authorNames(line string) []string {
	if line == "" || affiliationRe.MatchString(stripMarks(line)) {
		return nil
	}
	var names []string
	if matches := authorInvertRe.FindAllString(line, -1); len(matches) > 0 {
		return matches
	}
	for _, part := range nameSplitRe.Split(stripMarks(line), -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		words := wordCount(part)
		if words < 2 || words > 4 || !authorLineRe.MatchString(part) {
			return nil
		}
		names = append(names, part)
	}
	return names
}

// stripMarks removes affiliation markers such as "*", "†" and superscript digits.
func stripMarks(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune("*†‡§¶⁰¹²³⁴⁵⁶⁷⁸⁹", r) {
			return -1
		}
		return r
	}, s)
}

func abstractOf(lines []string) string {
	start := -1
	var parts []string
	for i, l := range lines {
		if loc := abstractHeadRe.FindStringIndex(l); loc != nil {
			start = i
			if rest := strings.TrimSpace(l[loc[1]:]); rest != "" {
				parts = append(parts, rest)
			}
			break
		}
	}
	if start < 0 {
		return ""
	}
	for _, l := range lines[start+1:] {
		if abstractEndRe.MatchString(l) {
			break
		}
		if t := strings.TrimSpace(l); t != "" {
			parts = append(parts, t)
		}
	}
	abstract := strings.Join(parts, " ")
	if utf8.RuneCountInString(abstract) > maxAbstractLength {
		abstract = string([]rune(abstract)[:maxAbstractLength])
	}
	return abstract
}
