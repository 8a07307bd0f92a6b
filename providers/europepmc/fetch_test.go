package europepmc

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

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		req  models.LookupRequest
		want string
	}{
		{models.LookupRequest{Kind: models.KindDOI, Value: "10.1/x"}, `DOI:"10.1/x"`},
		{models.LookupRequest{Kind: models.KindPMID, Value: "PMID 123"}, "EXT_ID:123 AND SRC:MED"},
		{models.LookupRequest{Kind: models.KindTitle, Title: `A "quoted" title`, Year: 2020}, `TITLE:"A quoted title" AND PUB_YEAR:2020`},
		{models.LookupRequest{Kind: models.KindAuthorYear, Authors: []string{"Smith"}, Year: 2019}, `AUTH:"Smith" AND PUB_YEAR:2019`},
	}
	for _, tt := range tests {
		got, err := buildQuery(tt.req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := buildQuery(models.LookupRequest{Kind: models.KindAuthorYear})
	assert.Error(t, err)
}

func TestLookupTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `TITLE:"Deep residual learning" AND PUB_YEAR:2016`, r.URL.Query().Get("query"))
		w.Write([]byte(`{"hitCount":1,"resultList":{"result":[{
			"id":"27295650","source":"MED","pmid":"27295650","doi":"10.1109/CVPR.2016.90",
			"title":"Deep residual learning for image recognition.",
			"authorString":"He K, Zhang X, Ren S, Sun J.",
			"journalTitle":"CVPR","pubYear":"2016","abstractText":"Deeper networks are harder to train."}]}}`))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{EuropePMCBaseURL: srv.URL}, zap.NewNop())
	resp, err := f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindTitle, Title: "Deep residual learning", Year: 2016})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	got := resp.Results[0]
	assert.Equal(t, "Deep residual learning for image recognition", got.Title)
	assert.Equal(t, []string{"He", "Zhang", "Ren", "Sun"}, got.Authors)
	assert.Equal(t, "10.1109/cvpr.2016.90", got.DOI)
	assert.Equal(t, 2016, got.Year)
	assert.Equal(t, "https://europepmc.org/article/MED/27295650", got.URL)
}
