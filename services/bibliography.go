package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"paper-auditor/models"
	"paper-auditor/providers"
)

// Bibliography formats accepted for imported reference lists.
const (
	FormatBibTeX  = "bibtex"
	FormatCSLJSON = "csl-json"
)

// ParseBibliography parses an imported reference list in the given format.
func ParseBibliography(data []byte, format string) ([]models.Reference, error) {
	switch strings.ToLower(format) {
	case FormatBibTeX, "bib":
		return ParseBibTeX(string(data))
	case FormatCSLJSON, "csl", "json":
		return ParseCSLJSON(data)
	}
	return nil, fmt.Errorf("unsupported bibliography format %q", format)
}

var (
	entryStartRe = regexp.MustCompile(`@(\w+)\s*\{`)
	arxivIDRe    = regexp.MustCompile(`^(?:\d{4}\.\d{4,5}|[a-z\-]+(?:\.[A-Z]{2})?/\d{7})(?:v\d+)?$`)
	bibYearRe    = regexp.MustCompile(yearPattern)
)

// ParseBibTeX reads @type{key, field = {value}, ...} entries. @string,
// @comment and @preamble blocks are skipped.
func ParseBibTeX(src string) ([]models.Reference, error) {
	var refs []models.Reference
	pos := 0
	for {
		loc := entryStartRe.FindStringSubmatchIndex(src[pos:])
		if loc == nil {
			break
		}
		kind := strings.ToLower(src[pos+loc[2] : pos+loc[3]])
		bodyStart := pos + loc[1]
		bodyEnd := matchingBrace(src, bodyStart-1)
		if bodyEnd < 0 {
			return refs, fmt.Errorf("unterminated bibtex entry at offset %d", pos+loc[0])
		}
		body := src[bodyStart:bodyEnd]
		pos = bodyEnd + 1
		if kind == "string" || kind == "comment" || kind == "preamble" {
			continue
		}

		key, fieldsSrc, _ := strings.Cut(body, ",")
		fields := parseBibFields(fieldsSrc)
		meta := bibtexToMetadata(fields)
		ref := models.Reference{
			Key:      strings.TrimSpace(key),
			Metadata: meta,
		}
		ref.RawText = FormatReference(meta)
		refs = append(refs, ref)
	}
	return refs, nil
}

// matchingBrace returns the index of the brace closing the one at open.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseBibFields(src string) map[string]string {
	fields := map[string]string{}
	i := 0
	for i < len(src) {
		for i < len(src) && (unicode.IsSpace(rune(src[i])) || src[i] == ',') {
			i++
		}
		eq := strings.IndexByte(src[i:], '=')
		if eq < 0 {
			break
		}
		name := strings.ToLower(strings.TrimSpace(src[i : i+eq]))
		i += eq + 1
		for i < len(src) && unicode.IsSpace(rune(src[i])) {
			i++
		}
		if i >= len(src) {
			break
		}
		var value string
		switch src[i] {
		case '{':
			end := matchingBrace(src, i)
			if end < 0 {
				end = len(src)
			}
			value = src[i+1 : min(end, len(src))]
			i = end + 1
		case '"':
			end := strings.IndexByte(src[i+1:], '"')
			if end < 0 {
				end = len(src) - i - 1
			}
			value = src[i+1 : i+1+end]
			i += end + 2
		default:
			end := strings.IndexByte(src[i:], ',')
			if end < 0 {
				end = len(src) - i
			}
			value = src[i : i+end]
			i += end
		}
		fields[name] = cleanBibValue(value)
	}
	return fields
}

func cleanBibValue(v string) string {
	v = strings.NewReplacer("{", "", "}", "", "\\&", "&", "~", " ", "\\", "").Replace(v)
	return strings.Join(strings.Fields(v), " ")
}

func bibtexToMetadata(f map[string]string) models.CitationMetadata {
	meta := models.CitationMetadata{
		Title:    f["title"],
		Journal:  firstNonEmpty(f["journal"], f["booktitle"], f["publisher"]),
		Volume:   f["volume"],
		Pages:    strings.ReplaceAll(f["pages"], "--", "-"),
		DOI:      providers.NormalizeDOI(f["doi"]),
		PMID:     providers.NormalizePMID(f["pmid"]),
		URL:      f["url"],
		Abstract: f["abstract"],
	}
	if y := bibYearRe.FindString(f["year"]); y != "" {
		meta.Year, _ = strconv.Atoi(y)
	}
	if eprint := f["eprint"]; eprint != "" {
		if strings.EqualFold(f["archiveprefix"], "arxiv") || arxivIDRe.MatchString(eprint) {
			meta.ArXivID = providers.NormalizeArXivID(eprint)
		}
	}
	for _, a := range strings.Split(f["author"], " and ") {
		if s := providers.SurnameFromFullName(a); s != "" && !strings.EqualFold(s, "others") {
			meta.Authors = append(meta.Authors, s)
		}
	}
	return meta
}

// cslItem is the subset of CSL-JSON read by ParseCSLJSON.
type cslItem struct {
	ID     any    `json:"id"`
	Title  string `json:"title"`
	Author []struct {
		Family  string `json:"family"`
		Given   string `json:"given"`
		Literal string `json:"literal"`
	} `json:"author"`
	Issued struct {
		DateParts [][]any `json:"date-parts"`
	} `json:"issued"`
	ContainerTitle string `json:"container-title"`
	Volume         any    `json:"volume"`
	Page           string `json:"page"`
	DOI            string `json:"DOI"`
	PMID           string `json:"PMID"`
	URL            string `json:"URL"`
	Abstract       string `json:"abstract"`
}

// ParseCSLJSON reads a CSL-JSON array of items.
func ParseCSLJSON(data []byte) ([]models.Reference, error) {
	var items []cslItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding csl-json: %w", err)
	}
	refs := make([]models.Reference, 0, len(items))
	for i, it := range items {
		meta := models.CitationMetadata{
			Title:    it.Title,
			Journal:  it.ContainerTitle,
			Volume:   scalarString(it.Volume),
			Pages:    it.Page,
			DOI:      providers.NormalizeDOI(it.DOI),
			PMID:     providers.NormalizePMID(it.PMID),
			URL:      it.URL,
			Abstract: it.Abstract,
		}
		for _, a := range it.Author {
			switch {
			case a.Family != "":
				meta.Authors = append(meta.Authors, a.Family)
			case a.Literal != "":
				meta.Authors = append(meta.Authors, providers.SurnameFromFullName(a.Literal))
			}
		}
		if len(it.Issued.DateParts) > 0 && len(it.Issued.DateParts[0]) > 0 {
			meta.Year, _ = strconv.Atoi(scalarString(it.Issued.DateParts[0][0]))
		}
		if strings.Contains(strings.ToLower(meta.URL), "arxiv.org/abs/") {
			meta.ArXivID = providers.NormalizeArXivID(meta.URL)
		}
		key := scalarString(it.ID)
		if key == "" {
			key = fmt.Sprintf("item%d", i+1)
		}
		refs = append(refs, models.Reference{Key: key, RawText: FormatReference(meta), Metadata: meta})
	}
	return refs, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FormatReference renders metadata as a compact reference string.
func FormatReference(m models.CitationMetadata) string {
	authors := strings.Join(m.Authors, ", ")
	if authors == "" {
		authors = "Unknown Authors"
	}
	year := "n.d."
	if m.Year > 0 {
		year = strconv.Itoa(m.Year)
	}
	var tail []string
	if m.DOI != "" {
		tail = append(tail, "doi:"+m.DOI)
	}
	if m.PMID != "" {
		tail = append(tail, "pmid:"+m.PMID)
	}
	if m.ArXivID != "" {
		tail = append(tail, "arXiv:"+m.ArXivID)
	}
	tailStr := strings.Join(tail, " ")
	if tailStr != "" {
		tailStr = " " + tailStr
	}
	title := m.Title
	if title == "" {
		title = "Untitled"
	}
	if m.Journal != "" {
		return fmt.Sprintf("%s (%s). %s. %s.%s", authors, year, title, m.Journal, tailStr)
	}
	return fmt.Sprintf("%s (%s). %s.%s", authors, year, title, tailStr)
}
