package pubmed

import (
	"context"
	"encoding/json"
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

var yearRe = regexp.MustCompile(`\b(1[89]|20)\d{2}\b`)

// Fetcher encapsulates the interaction with PubMed.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a new PubMed fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config: cfg,
		Logger: logger,
		client: providers.NewHTTPClient(cfg.ProviderTimeout, cfg.UserAgent),
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Supports reports the lookup kinds PubMed can answer.
func (f *Fetcher) Supports(kind models.LookupKind) bool {
	return kind == models.KindPMID || kind == models.KindTitle
}

// Lookup fetches a PMID directly, or searches titles with ESearch followed by EFetch.
func (f *Fetcher) Lookup(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	switch req.Kind {
	case models.KindPMID:
		return f.fetchArticles(ctx, []string{providers.NormalizePMID(req.Value)})
	case models.KindTitle:
		return f.searchTitle(ctx, req)
	}
	return nil, fmt.Errorf("pubmed: unsupported lookup kind %q", req.Kind)
}

// searchTitle runs an ESearch title query and fetches the matching PMIDs.
func (f *Fetcher) searchTitle(ctx context.Context, req models.LookupRequest) (*providers.Response, error) {
	term := fmt.Sprintf("%s[Title]", req.Title)
	if req.Year > 0 {
		term += fmt.Sprintf(" AND %d[dp]", req.Year)
	}
	searchURL := f.buildEsearchURL(term, providers.MaxCandidates)
	log := f.Logger.With(zap.String("term", term))
	log.Debug("Calling ESearch", zap.String("url", searchURL))

	body, status, err := providers.Get(ctx, f.client, searchURL, nil)
	resp := &providers.Response{URL: searchURL, Status: status}
	if err != nil {
		return resp, err
	}

	var esearchResp ESearchResponse
	if err := json.Unmarshal(body, &esearchResp); err != nil {
		return resp, fmt.Errorf("decoding esearch: %w", err)
	}
	ids := esearchResp.ESearchResult.IdList
	if len(ids) == 0 {
		log.Debug("ESearch returned no ids")
		return resp, nil
	}
	return f.fetchArticles(ctx, ids)
}

// fetchArticles fetches metadata for one or more PMIDs via EFetch.
func (f *Fetcher) fetchArticles(ctx context.Context, pmids []string) (*providers.Response, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	f.addIdentity(q)
	efetchURL := fmt.Sprintf("%s/efetch.fcgi?%s", strings.TrimRight(f.Config.PubMedBaseURL, "/"), q.Encode())
	f.Logger.Debug("Calling EFetch", zap.Strings("pmids", pmids))

	body, status, err := providers.Get(ctx, f.client, efetchURL, nil)
	resp := &providers.Response{URL: efetchURL, Status: status}
	if err != nil {
		return resp, err
	}
	if status == http.StatusNotFound || len(strings.TrimSpace(string(body))) == 0 {
		return resp, nil
	}

	var articleSet PubmedArticleSet
	if err := xml.Unmarshal(body, &articleSet); err != nil {
		return resp, fmt.Errorf("decoding efetch: %w", err)
	}
	for i := range articleSet.PubmedArticle {
		if len(resp.Results) == providers.MaxCandidates {
			break
		}
		resp.Results = append(resp.Results, mapArticleToResult(&articleSet.PubmedArticle[i]))
	}
	return resp, nil
}

func (f *Fetcher) buildEsearchURL(term string, retmax int) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(retmax))
	f.addIdentity(q)
	return fmt.Sprintf("%s/esearch.fcgi?%s", strings.TrimRight(f.Config.PubMedBaseURL, "/"), q.Encode())
}

// addIdentity adds api_key, tool and email as NCBI asks clients to.
func (f *Fetcher) addIdentity(q url.Values) {
	if f.Config.PubMedAPIKey != "" {
		q.Set("api_key", f.Config.PubMedAPIKey)
	}
	if f.Config.PubMedTool != "" {
		q.Set("tool", f.Config.PubMedTool)
	}
	if f.Config.PubMedEmail != "" {
		q.Set("email", f.Config.PubMedEmail)
	}
}

// mapArticleToResult converts an EFetch article into a lookup result.
func mapArticleToResult(article *PubmedArticle) *models.LookupResult {
	mc := article.MedlineCitation
	r := &models.LookupResult{
		Provider: "pubmed",
		PMID:     strings.TrimSpace(mc.PMID),
		Title:    strings.TrimSuffix(strings.TrimSpace(mc.Article.Title), "."),
		Abstract: strings.Join(mc.Article.Abstract.Text, "\n"),
		Journal:  mc.Article.Journal.Title,
		URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", strings.TrimSpace(mc.PMID)),
	}

	for _, author := range mc.Article.Authors {
		switch {
		case author.LastName != "":
			r.Authors = append(r.Authors, author.LastName)
		case author.CollectiveName != "":
			r.Authors = append(r.Authors, author.CollectiveName)
		}
	}

	for _, id := range mc.Article.ELocationID {
		if id.IDType == "doi" && id.ValidYN == "Y" {
			r.DOI = providers.NormalizeDOI(id.Value)
			break
		}
	}
	if r.DOI == "" {
		for _, id := range article.PubmedData.ArticleIDs {
			if id.IDType == "doi" {
				r.DOI = providers.NormalizeDOI(id.Value)
				break
			}
		}
	}

	pubDate := mc.Article.Journal.PubDate
	year := pubDate.Year
	if year == "" {
		year = yearRe.FindString(pubDate.MedlineDate)
	}
	if y, err := strconv.Atoi(year); err == nil {
		r.Year = y
	}
	return r
}
