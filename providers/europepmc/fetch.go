package europepmc

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

// Fetcher implements the Provider interface for Europe PMC.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new Europe PMC fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// Supports reports the lookup kinds Europe PMC can answer.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	switch kind {
	case models.KindDOI, models.KindPMID, models.KindTitle, models.KindAuthorYear:
		return true
	}
	return false
}

// Lookup runs the query on Europe PMC.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	query, err := buildQuery(req)
	if err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s?query=%s&format=json&resultType=core&pageSize=%d",
		f.Config.EuropePMCBaseURL, url.QueryEscape(query), providers.MaxCandidates)
	log := f.Logger.With(zap.String("query", query))
	log.Debug("Calling Europe PMC", zap.String("url", searchURL))

	body, status, err := providers.Get(ctx, f.client, searchURL, nil)
	resp := &providers.Response{URL: searchURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, nil
	}

	var searchResponse SearchResponse
	if err := json.Unmarshal(body, &searchResponse); err != nil {
		return resp, fmt.Errorf("decoding europepmc search: %w", err)
	}
	for i := range searchResponse.ResultList.Result {
		if len(resp.Results) == providers.MaxCandidates {
			break
		}
		resp.Results = append(resp.Results, mapArticleToResult(&searchResponse.ResultList.Result[i]))
	}

	log.Debug("Europe PMC search finished", zap.Int("candidates", len(resp.Results)))
	return resp, nil
}

// buildQuery translates a lookup request into Europe PMC query syntax.
func buildQuery(req models.LookupRequest) (string, error) {
	switch req.Kind {
	case models.KindDOI:
		return fmt.Sprintf(`DOI:"%s"`, req.Value), nil
	case models.KindPMID:
		return fmt.Sprintf("EXT_ID:%s AND SRC:MED", providers.NormalizePMID(req.Value)), nil
	case models.KindTitle:
		q := fmt.Sprintf(`TITLE:"%s"`, strings.ReplaceAll(req.Title, `"`, ""))
		if req.Year > 0 {
			q += fmt.Sprintf(" AND PUB_YEAR:%d", req.Year)
		}
		return q, nil
	case models.KindAuthorYear:
		if len(req.Authors) == 0 || req.Year == 0 {
			return "", fmt.Errorf("europepmc: author+year lookup needs an author and a year")
		}
		return fmt.Sprintf(`AUTH:"%s" AND PUB_YEAR:%d`, req.Authors[0], req.Year), nil
	}
	return "", fmt.Errorf("europepmc: unsupported lookup kind %q", req.Kind)
}

// mapArticleToResult converts a Europe PMC article into a lookup result.
func mapArticleToResult(article *Article) *models.LookupResult {
	r := &models.LookupResult{
		Provider: "europepmc",
		PMID:     article.PMID,
		DOI:      providers.NormalizeDOI(article.DOI),
		Title:    strings.TrimSuffix(strings.TrimSpace(article.Title), "."),
		Abstract: article.AbstractText,
		Authors:  providers.SurnamesFromAuthorString(article.AuthorString),
		Journal:  article.JournalTitle,
		Year:     article.year(),
	}
	if r.Journal == "" {
		r.Journal = article.JournalInfo.Journal.Title
	}
	if article.PMID != "" {
		r.URL = fmt.Sprintf("https://europepmc.org/article/MED/%s", article.PMID)
	} else if article.Source != "" && article.ID != "" {
		r.URL = fmt.Sprintf("https://europepmc.org/article/%s/%s", article.Source, article.ID)
	}
	return r
}
