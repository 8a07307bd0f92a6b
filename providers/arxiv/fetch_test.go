package arxiv

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

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1512.03385v1</id>
    <published>2015-12-10T19:51:55Z</published>
    <title>Deep Residual Learning for Image
      Recognition</title>
    <summary>Deeper neural networks are more difficult to train.</summary>
    <author><name>Kaiming He</name></author>
    <author><name>Xiangyu Zhang</name></author>
    <arxiv:doi>10.1109/CVPR.2016.90</arxiv:doi>
  </entry>
</feed>`

const errorFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_9999</id>
    <title>Error</title>
    <summary>incorrect id format for 9999</summary>
  </entry>
</feed>`

func TestLookupByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_list") == "1512.03385" {
			w.Write([]byte(feedXML))
			return
		}
		w.Write([]byte(errorFeedXML))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{ArxivBaseURL: srv.URL}, zap.NewNop())

	resp, err := f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindArXiv, Value: "arXiv:1512.03385v1"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	got := resp.Results[0]
	assert.Equal(t, "Deep Residual Learning for Image Recognition", got.Title)
	assert.Equal(t, "1512.03385", got.ArXivID)
	assert.Equal(t, 2015, got.Year)
	assert.Equal(t, []string{"He", "Zhang"}, got.Authors)
	assert.Equal(t, "10.1109/cvpr.2016.90", got.DOI)

	resp, err = f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindArXiv, Value: "9999"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestLookupByTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `ti:"Deep Residual Learning"`, r.URL.Query().Get("search_query"))
		w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	f := NewFetcher(&config.Config{ArxivBaseURL: srv.URL}, zap.NewNop())
	resp, err := f.Lookup(context.Background(), models.LookupRequest{Kind: models.KindTitle, Title: `Deep  "Residual" Learning`})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}
