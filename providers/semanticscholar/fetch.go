package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paper-auditor/config"
	"paper-auditor/models"
	"paper-auditor/providers"

	"go.uber.org/zap"
)

// Fetcher implements the Provider interface for Semantic Scholar.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new Semantic Scholar fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "semanticscholar"
}

// Supports reports the lookup kinds Semantic Scholar can answer.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	switch kind {
	case models.KindDOI, models.KindPMID, models.KindArXiv, models.KindTitle:
		return true
	}
	return false
}

// Lookup fetches a paper by external id or searches by title.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	base := strings.TrimRight(f.Config.SemanticScholarBaseURL, "/")
	var endpoint string
	switch req.Kind {
	case models.KindDOI:
		endpoint = fmt.Sprintf("%s/paper/DOI:%s?fields=%s", base, req.Value, paperFields)
	case models.KindPMID:
		endpoint = fmt.Sprintf("%s/paper/PMID:%s?fields=%s", base, providers.NormalizePMID(req.Value), paperFields)
	case models.KindArXiv:
		endpoint = fmt.Sprintf("%s/paper/ARXIV:%s?fields=%s", base, providers.NormalizeArXivID(req.Value), paperFields)
	case models.KindTitle:
		q := url.Values{}
		q.Set("query", req.Title)
		q.Set("limit", fmt.Sprint(providers.MaxCandidates))
		q.Set("fields", paperFields)
		if req.Year > 0 {
			q.Set("year", fmt.Sprintf("%d-%d", req.Year-1, req.Year+1))
		}
		endpoint = fmt.Sprintf("%s/paper/search?%s", base, q.Encode())
	default:
		return nil, fmt.Errorf("semanticscholar: unsupported lookup kind %q", req.Kind)
	}

	var header http.Header
	if f.Config.SemanticScholarAPIKey != "" {
		header = http.Header{"x-api-key": []string{f.Config.SemanticScholarAPIKey}}
	}
	f.Logger.Debug("Calling Semantic Scholar", zap.String("kind", string(req.Kind)), zap.String("url", endpoint))

	body, status, err := providers.Get(ctx, f.client, endpoint, header)
	resp := &providers.Response{URL: endpoint, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, nil
	}

	if req.Kind == models.KindTitle {
		var sr SearchResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return resp, fmt.Errorf("decoding semantic scholar search: %w", err)
		}
		for i := range sr.Data {
			if len(resp.Results) == providers.MaxCandidates {
				break
			}
			resp.Results = append(resp.Results, mapPaperToResult(&sr.Data[i]))
		}
		return resp, nil
	}

	var p Paper
	if err := json.Unmarshal(body, &p); err != nil {
		return resp, fmt.Errorf("decoding semantic scholar paper: %w", err)
	}
	if p.PaperID == "" && p.Title == "" {
		return resp, nil
	}
	resp.Results = []*models.LookupResult{mapPaperToResult(&p)}
	return resp, nil
}

// mapPaperToResult converts a Graph API paper into a lookup result.
func mapPaperToResult(p *Paper) *models.LookupResult {
	r := &models.LookupResult{
		Provider: "semanticscholar",
		Title:    strings.TrimSpace(p.Title),
		Year:     p.Year,
		Journal:  p.Venue,
		Abstract: p.Abstract,
		URL:      p.URL,
		DOI:      providers.NormalizeDOI(p.ExternalIDs.DOI),
		PMID:     p.ExternalIDs.PubMed,
		ArXivID:  providers.NormalizeArXivID(p.ExternalIDs.ArXiv),
	}
	for _, a := range p.Authors {
		if s := providers.SurnameFromFullName(a.Name); s != "" {
			r.Authors = append(r.Authors, s)
		}
	}
	return r
}
