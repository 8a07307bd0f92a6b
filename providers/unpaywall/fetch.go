// Package unpaywall confirms DOIs against the Unpaywall database.
package unpaywall

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

// Response is the JSON answer of the Unpaywall API.
type Response struct {
	DOI         string `json:"doi"`
	DOIURL      string `json:"doi_url"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	JournalName string `json:"journal_name"`
	ZAuthors    []struct {
		Family string `json:"family"`
		Given  string `json:"given"`
	} `json:"z_authors"`
	BestOALocation *struct {
		URLForPDF string `json:"url_for_pdf"`
	} `json:"best_oa_location"`
}

// Fetcher encapsulates the Unpaywall lookups.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new Unpaywall fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "unpaywall"
}

// Supports is true for DOI lookups once a contact email is configured;
// Unpaywall rejects anonymous requests.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	return kind == models.KindDOI && f.Config.UnpaywallEmail != ""
}

// Lookup resolves a DOI via Unpaywall.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	if req.Kind != models.KindDOI {
		return nil, fmt.Errorf("unpaywall: unsupported lookup kind %q", req.Kind)
	}
	if f.Config.UnpaywallEmail == "" {
		return nil, fmt.Errorf("unpaywall email is not configured")
	}

	lookupURL := fmt.Sprintf("%s/%s?email=%s", strings.TrimRight(f.Config.UnpaywallBaseURL, "/"),
		req.Value, url.QueryEscape(f.Config.UnpaywallEmail))
	log := f.Logger.With(zap.String("doi", req.Value))
	log.Debug("Calling Unpaywall API")

	body, status, err := providers.Get(ctx, f.client, lookupURL, nil)
	resp := &providers.Response{URL: lookupURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound {
		log.Debug("DOI unknown to Unpaywall")
		return resp, nil
	}

	var ur Response
	if err := json.Unmarshal(body, &ur); err != nil {
		return resp, fmt.Errorf("decoding unpaywall response: %w", err)
	}
	if ur.DOI == "" {
		return resp, nil
	}

	r := &models.LookupResult{
		Provider: "unpaywall",
		DOI:      providers.NormalizeDOI(ur.DOI),
		Title:    ur.Title,
		Year:     ur.Year,
		Journal:  ur.JournalName,
		URL:      ur.DOIURL,
	}
	for _, a := range ur.ZAuthors {
		if a.Family != "" {
			r.Authors = append(r.Authors, a.Family)
		}
	}
	if ur.BestOALocation != nil && ur.BestOALocation.URLForPDF != "" {
		log.Debug("Open access PDF available", zap.String("pdf", ur.BestOALocation.URLForPDF))
	}
	resp.Results = []*models.LookupResult{r}
	return resp, nil
}
