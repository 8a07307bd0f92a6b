package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifiers(t *testing.T) {
	assert.Equal(t, "10.1038/nature12373", NormalizeDOI("https://doi.org/10.1038/Nature12373."))
	assert.Equal(t, "10.1038/nature12373", NormalizeDOI("doi: 10.1038/nature12373"))
	assert.Equal(t, "1512.03385", NormalizeArXivID("arXiv:1512.03385v3"))
	assert.Equal(t, "hep-th/9901001", NormalizeArXivID("https://arxiv.org/abs/hep-th/9901001v1"))
	assert.Equal(t, "123456", NormalizePMID("PMID: 123456"))
}

func TestSurnames(t *testing.T) {
	assert.Equal(t, "He", SurnameFromFullName("Kaiming He"))
	assert.Equal(t, "van der Berg", SurnameFromFullName("van der Berg, Anna"))
	assert.Equal(t, "", SurnameFromFullName("  "))
	assert.Equal(t, []string{"He", "Zhang", "van Dijk"}, SurnamesFromAuthorString("He K, Zhang X, van Dijk AB."))
}

func TestGetUserAgentAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "auditor-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "v", r.Header.Get("X-Extra"))
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("fine"))
		case "/gone":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(time.Second, "auditor-test")
	header := http.Header{"X-Extra": []string{"v"}}

	body, status, err := Get(context.Background(), client, srv.URL+"/ok", header)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fine", string(body))

	_, status, err = Get(context.Background(), client, srv.URL+"/gone", header)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	_, _, err = Get(context.Background(), client, srv.URL+"/busy", header)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}
