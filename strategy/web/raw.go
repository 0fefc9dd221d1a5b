package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// Raw returns the response body as-is.
type Raw struct {
	fetcher
}

var _ strategy.Validator = (*Raw)(nil)

// NewRaw creates the "raw" strategy.
func NewRaw(opts ...Option) *Raw {
	return &Raw{fetcher: newFetcher(opts)}
}

// Name returns "raw".
func (r *Raw) Name() string { return "raw" }

// Execute fetches target and returns its body.
func (r *Raw) Execute(ctx context.Context, target string, params json.RawMessage) (*strategy.Result, error) {
	resp, _, err := r.fetch(ctx, target, params)
	if err != nil {
		return nil, err
	}
	return &strategy.Result{
		FinalURL:    resp.finalURL,
		StatusCode:  resp.status,
		ContentType: resp.contentType,
		Body:        string(resp.body),
		FetchedAt:   time.Now().UTC(),
	}, nil
}
