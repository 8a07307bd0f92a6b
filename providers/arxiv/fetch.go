package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"paper-auditor/config"
	"paper-auditor/models"
	"paper-auditor/providers"

	"go.uber.org/zap"
)

var (
	absIDRe = regexp.MustCompile(`arxiv\.org/abs/(.+)$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Fetcher implements the Provider interface for arXiv.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new arXiv fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "arxiv"
}

// Supports reports the lookup kinds arXiv can answer.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	return kind == models.KindArXiv || kind == models.KindTitle
}

// Lookup queries arXiv by id list or by title.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	q := url.Values{}
	switch req.Kind {
	case models.KindArXiv:
		q.Set("id_list", providers.NormalizeArXivID(req.Value))
	case models.KindTitle:
		title := strings.Join(strings.Fields(strings.ReplaceAll(req.Title, `"`, "")), " ")
		q.Set("search_query", fmt.Sprintf(`ti:"%s"`, title))
		q.Set("max_results", strconv.Itoa(providers.MaxCandidates))
	default:
		return nil, fmt.Errorf("arxiv: unsupported lookup kind %q", req.Kind)
	}

	queryURL := f.Config.ArxivBaseURL + "?" + q.Encode()
	f.Logger.Debug("Calling arXiv API", zap.String("url", queryURL))

	body, status, err := providers.Get(ctx, f.client, queryURL, nil)
	resp := &providers.Response{URL: queryURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, nil
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return resp, fmt.Errorf("decoding arxiv feed: %w", err)
	}
	for i := range feed.Entries {
		e := &feed.Entries[i]
		// Unknown ids come back as a single entry pointing at the error API.
		if strings.Contains(e.ID, "/api/errors") || strings.TrimSpace(e.Title) == "Error" {
			continue
		}
		if len(resp.Results) == providers.MaxCandidates {
			break
		}
		resp.Results = append(resp.Results, mapEntryToResult(e))
	}
	return resp, nil
}

// mapEntryToResult converts an Atom entry into a lookup result.
func mapEntryToResult(e *Entry) *models.LookupResult {
	r := &models.LookupResult{
		Provider: "arxiv",
		Title:    spaceRe.ReplaceAllString(strings.TrimSpace(e.Title), " "),
		Abstract: spaceRe.ReplaceAllString(strings.TrimSpace(e.Summary), " "),
		DOI:      providers.NormalizeDOI(e.DOI),
		Journal:  e.JournalRef,
		URL:      strings.TrimSpace(e.ID),
	}
	if m := absIDRe.FindStringSubmatch(strings.TrimSpace(e.ID)); m != nil {
		r.ArXivID = providers.NormalizeArXivID(m[1])
	}
	if len(e.Published) >= 4 {
		if y, err := strconv.Atoi(e.Published[:4]); err == nil {
			r.Year = y
		}
	}
	for _, a := range e.Authors {
		if s := providers.SurnameFromFullName(a.Name); s != "" {
			r.Authors = append(r.Authors, s)
		}
	}
	return r
}
