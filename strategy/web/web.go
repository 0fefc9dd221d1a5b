// Package web provides the built-in HTTP strategies: "html" fetches a page
// and extracts its title, visible text, meta tags and links; "raw" returns
// the response body untouched.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// DefaultUserAgent is sent when neither the strategy nor the job sets one.
const DefaultUserAgent = "Mozilla/5.0 (compatible; content-scrapper/1.0)"

// Params are the per-job parameters understood by both strategies.
type Params struct {
	Headers      map[string]string `json:"headers,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	MaxBytes     int64             `json:"max_bytes,omitempty"`
	IncludeLinks bool              `json:"include_links,omitempty"`
}

// Option configures a fetcher.
type Option func(*fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *fetcher) { f.client = c }
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *fetcher) { f.userAgent = ua }
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(f *fetcher) { f.maxBytes = n }
}

type fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func newFetcher(opts []Option) fetcher {
	f := fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
		maxBytes:  5 << 20,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// ValidateParams rejects unknown fields and malformed values.
func (f fetcher) ValidateParams(raw json.RawMessage) error {
	_, err := decodeParams(raw)
	return err
}

func decodeParams(raw json.RawMessage) (Params, error) {
	var p Params
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("web: params: %w", err)
	}
	if p.MaxBytes < 0 {
		return p, errors.New("web: params: max_bytes must not be negative")
	}
	return p, nil
}

type response struct {
	finalURL    string
	status      int
	contentType string
	body        []byte
}

func (f fetcher) fetch(ctx context.Context, target string, raw json.RawMessage) (*response, Params, error) {
	p, err := decodeParams(raw)
	if err != nil {
		return nil, p, strategy.NonRecoverable("invalid params", err)
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, p, strategy.NonRecoverable(fmt.Sprintf("unsupported target %q", target), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, p, strategy.NonRecoverable("build request", err)
	}
	ua := f.userAgent
	if p.UserAgent != "" {
		ua = p.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, p, strategy.Recoverable("request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, p, err
	}

	limit := f.maxBytes
	if p.MaxBytes > 0 && p.MaxBytes < limit {
		limit = p.MaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, p, strategy.Recoverable("read body", err)
	}

	return &response{
		finalURL:    resp.Request.URL.String(),
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, p, nil
}

// classifyStatus maps an HTTP status onto a failure kind.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly,
		code == http.StatusTooManyRequests, code >= 500:
		return strategy.Recoverable(fmt.Sprintf("status %d", code), nil)
	default:
		return strategy.NonRecoverable(fmt.Sprintf("status %d", code), nil)
	}
}
