package providers

import (
	"context"
	"fmt"

	"paper-auditor/models"
)

// Provider is the interface every bibliographic source (CrossRef, PubMed, arXiv, ...) implements.
type Provider interface {
	// Name returns the unique provider name (e.g. "crossref").
	Name() string

	// Supports reports whether the provider can answer requests of the given kind.
	Supports(kind models.LookupKind) bool

	// Lookup runs one query. A response without results is an explicit not-found.
	Lookup(ctx context.Context, req models.LookupRequest) (*Response, error)
}

// Response is the outcome of one provider call.
type Response struct {
	URL     string
	Status  int
	Results []*models.LookupResult
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// MaxCandidates bounds the number of search results taken from any provider.
const MaxCandidates = 5
