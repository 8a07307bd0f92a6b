package providers

import (
	"regexp"
	"strings"
)

var (
	doiPrefixRe   = regexp.MustCompile(`(?i)^(?:https?://(?:dx\.)?doi\.org/|doi:\s*)`)
	arxivPrefixRe = regexp.MustCompile(`(?i)^(?:arxiv:\s*|https?://arxiv\.org/(?:abs|pdf)/)`)
	arxivVersion  = regexp.MustCompile(`v\d+$`)
)

// NormalizeDOI strips resolver prefixes and trailing punctuation and lower-cases the DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = doiPrefixRe.ReplaceAllString(doi, "")
	doi = strings.TrimRight(doi, ".,;:)]}>\"'")
	return strings.ToLower(doi)
}

// NormalizeArXivID strips prefixes, a ".pdf" suffix and the version suffix.
func NormalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	id = arxivPrefixRe.ReplaceAllString(id, "")
	id = strings.TrimSuffix(id, ".pdf")
	id = strings.TrimRight(id, ".,;)")
	return arxivVersion.ReplaceAllString(id, "")
}

// NormalizePMID keeps only the digits of a PMID.
func NormalizePMID(pmid string) string {
	var b strings.Builder
	for _, r := range pmid {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SurnameFromFullName returns the surname of "Given Family" or "Family, Given".
func SurnameFromFullName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if family, _, ok := strings.Cut(name, ","); ok {
		return strings.TrimSpace(family)
	}
	parts := strings.Fields(name)
	return strings.Trim(parts[len(parts)-1], ".")
}

// SurnamesFromAuthorString parses compact author strings such as
// "He K, Zhang X, Ren S." into surnames.
func SurnamesFromAuthorString(s string) []string {
	var out []string
	for _, part := range strings.Split(strings.TrimSuffix(strings.TrimSpace(s), "."), ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 1 && isInitials(fields[len(fields)-1]) {
			out = append(out, strings.Join(fields[:len(fields)-1], " "))
			continue
		}
		out = append(out, fields[len(fields)-1])
	}
	return out
}

func isInitials(s string) bool {
	s = strings.ReplaceAll(s, ".", "")
	if s == "" || len(s) > 3 {
		return false
	}
	return strings.ToUpper(s) == s
}
