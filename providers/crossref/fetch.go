package crossref

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

// Fetcher implements the Provider interface for CrossRef.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new CrossRef fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "crossref"
}

// Supports reports the lookup kinds CrossRef can answer.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	switch kind {
	case models.KindDOI, models.KindTitle, models.KindAuthorYear:
		return true
	}
	return false
}

// Lookup resolves a DOI or runs a bibliographic search.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	switch req.Kind {
	case models.KindDOI:
		return f.lookupDOI(ctx, req.Value)
	case models.KindTitle, models.KindAuthorYear:
		return f.search(ctx, req)
	}
	return nil, fmt.Errorf("crossref: unsupported lookup kind %q", req.Kind)
}

func (f *Fetcher) lookupDOI(ctx context.Context, doi string) (*providers.Response, error) {
	workURL := fmt.Sprintf("%s/works/%s", strings.TrimRight(f.Config.CrossrefBaseURL, "/"), url.PathEscape(doi))
	if f.Config.CrossrefMailto != "" {
		workURL += "?mailto=" + url.QueryEscape(f.Config.CrossrefMailto)
	}
	f.Logger.Debug("Calling CrossRef works endpoint", zap.String("doi", doi), zap.String("url", workURL))

	body, status, err := providers.Get(ctx, f.client, workURL, nil)
	resp := &providers.Response{URL: workURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, nil
	}

	var wr WorkResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return resp, fmt.Errorf("decoding crossref work: %w", err)
	}
	if len(wr.Message.Title) == 0 && wr.Message.DOI == "" {
		return resp, nil
	}
	resp.Results = []*models.LookupResult{mapWorkToResult(&wr.Message)}
	return resp, nil
}

func (f *Fetcher) search(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	searchURL := f.buildSearchURL(req)
	log := f.Logger.With(zap.String("kind", string(req.Kind)), zap.String("url", searchURL))
	log.Debug("Calling CrossRef search")

	body, status, err := providers.Get(ctx, f.client, searchURL, nil)
	resp := &providers.Response{URL: searchURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		return resp, nil
	}

	var sr SearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return resp, fmt.Errorf("decoding crossref search: %w", err)
	}
	for i := range sr.Message.Items {
		if len(resp.Results) == providers.MaxCandidates {
			break
		}
		resp.Results = append(resp.Results, mapWorkToResult(&sr.Message.Items[i]))
	}
	log.Debug("CrossRef search finished", zap.Int("candidates", len(resp.Results)))
	return resp, nil
}

// buildSearchURL assembles /works?query... for title and author+year searches.
func (f *Fetcher) buildSearchURL(req models.LookupRequest) string {
	q := url.Values{}
	q.Set("rows", fmt.Sprint(providers.MaxCandidates))
	if req.Title != "" {
		q.Set("query.bibliographic", req.Title)
	}
	if len(req.Authors) > 0 {
		q.Set("query.author", req.Authors[0])
	}
	if req.Kind == models.KindAuthorYear && req.Year > 0 {
		q.Set("filter", fmt.Sprintf("from-pub-date:%d,until-pub-date:%d", req.Year, req.Year))
	}
	if f.Config.CrossrefMailto != "" {
		q.Set("mailto", f.Config.CrossrefMailto)
	}
	return fmt.Sprintf("%s/works?%s", strings.TrimRight(f.Config.CrossrefBaseURL, "/"), q.Encode())
}

// mapWorkToResult converts a CrossRef work into a lookup result.
func mapWorkToResult(w *Work) *models.LookupResult {
	r := &models.LookupResult{
		Provider: "crossref",
		DOI:      providers.NormalizeDOI(w.DOI),
		URL:      w.URL,
		Abstract: strings.TrimSpace(stripJATS(w.Abstract)),
		Year:     w.Issued.Year(),
	}
	if len(w.Title) > 0 {
		r.Title = strings.TrimSpace(w.Title[0])
	}
	if len(w.ContainerTitle) > 0 {
		r.Journal = w.ContainerTitle[0]
	}
	if r.Year == 0 {
		r.Year = w.PublishedPrint.Year()
	}
	for _, a := range w.Author {
		switch {
		case a.Family != "":
			r.Authors = append(r.Authors, a.Family)
		case a.Name != "":
			r.Authors = append(r.Authors, providers.SurnameFromFullName(a.Name))
		}
	}
	return r
}
