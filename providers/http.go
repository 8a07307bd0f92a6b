package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// userAgentTransport sets a fixed User-Agent on every request.
type userAgentTransport struct {
	agent     string
	transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.agent)
	return t.transport.RoundTrip(req)
}

// NewHTTPClient builds the client shared by one provider adapter.
func NewHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			agent:     userAgent,
			transport: http.DefaultTransport,
		},
	}
}

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// Get performs a GET request and returns the body and status code. Non-2xx
// responses other than 404 are returned as *StatusError; callers decide
// what a 404 means.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return body, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, resp.StatusCode, &StatusError{Code: resp.StatusCode, URL: url}
	}
	return body, resp.StatusCode, nil
}
