package semanticscholar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"paper-auditor/config"
	"paper-auditor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const paperJSON = `{"paperId":"2c03df8b","title":"Deep Residual Learning for Image Recognition","year":2016,
 "venue":"CVPR","url":"https://www.semanticscholar.org/paper/2c03df8b",
 "externalIds":{"DOI":"10.1109/CVPR.2016.90","ArXiv":"1512.03385"},
 "authors":[{"name":"Kaiming He"},{"name":"X. Zhang"}]}`

func TestLookupByIdentifiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/paper/DOI:10.1109/cvpr.2016.90", "/paper/ARXIV:1512.03385":
			w.Write([]byte(paperJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Paper not found"}`))
		}
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{SemanticScholarBaseURL: srv.URL, SemanticScholarAPIKey: "secret"}, zap.NewNop())

	resp, err := f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindDOI, Value: "10.1109/cvpr.2016.90"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	got := resp.Results[0]
	assert.Equal(t, []string{"He", "Zhang"}, got.Authors)
	assert.Equal(t, "1512.03385", got.ArXivID)
	assert.Equal(t, "10.1109/cvpr.2016.90", got.DOI)

	resp, err = f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindArXiv, Value: "1512.03385v2"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)

	resp, err = f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindPMID, Value: "1"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paper/search", r.URL.Path)
		assert.Equal(t, "2015-2017", r.URL.Query().Get("year"))
		w.Write([]byte(`{"total":1,"data":[` + paperJSON + `]}`))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{SemanticScholarBaseURL: srv.URL}, zap.NewNop())
	resp, err := f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindTitle, Title: "deep residual", Year: 2016})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 2016, resp.Results[0].Year)
}
