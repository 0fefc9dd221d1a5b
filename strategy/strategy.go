// Package strategy defines the pluggable extraction strategies a job is
// executed with, the registry that resolves them by name at dispatch time,
// and the classification of their failures.
package strategy

import (
	"context"
	"encoding/json"
	"time"
)

// Strategy fetches and extracts content from a target.
//
// Execute must honour ctx: the worker cancels it when the fetch timeout
// elapses. A returned *Error carries its own classification; any other
// error is treated as recoverable.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, target string, params json.RawMessage) (*Result, error)
}

// Validator is implemented by strategies that check their parameters at
// submission time.
type Validator interface {
	ValidateParams(params json.RawMessage) error
}

// Func adapts a function to Strategy.
type Func struct {
	StrategyName string
	Fn           func(ctx context.Context, target string, params json.RawMessage) (*Result, error)
}

// Name returns the registered name.
func (f Func) Name() string { return f.StrategyName }

// Execute calls Fn.
func (f Func) Execute(ctx context.Context, target string, params json.RawMessage) (*Result, error) {
	return f.Fn(ctx, target, params)
}

// Result is what a successful strategy returns. It is stored on the job as
// JSON.
type Result struct {
	FinalURL    string            `json:"final_url,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text,omitempty"`
	Body        string            `json:"body,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Data        json.RawMessage   `json:"data,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
}
