package strategy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

type strictStrategy struct{}

func (strictStrategy) Name() string { return "strict" }

func (strictStrategy) Execute(context.Context, string, json.RawMessage) (*strategy.Result, error) {
	return &strategy.Result{}, nil
}

func (strictStrategy) ValidateParams(params json.RawMessage) error {
	if len(params) == 0 {
		return errors.New("params required")
	}
	return nil
}

func echo(name string) strategy.Strategy {
	return strategy.Func{StrategyName: name, Fn: func(_ context.Context, target string, _ json.RawMessage) (*strategy.Result, error) {
		return &strategy.Result{FinalURL: target}, nil
	}}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := strategy.NewRegistry()
	r.Register(echo("b"))
	r.Register(echo("a"))

	s, err := r.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, _ := s.Execute(context.Background(), "https://example.com/", nil)
	if res.FinalURL != "https://example.com/" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}

	if names := r.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}

	if _, err := r.Resolve("missing"); !errors.Is(err, scrapper.ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRegistry_ValidateParams(t *testing.T) {
	r := strategy.NewRegistry()
	r.Register(strictStrategy{})
	r.Register(echo("loose"))

	if err := r.ValidateParams("strict", nil); err == nil {
		t.Error("expected strict strategy to reject empty params")
	}
	if err := r.ValidateParams("strict", json.RawMessage(`{}`)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := r.ValidateParams("loose", nil); err != nil {
		t.Errorf("strategy without validator rejected params: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want job.FailureKind
	}{
		{"unclassified", errors.New("boom"), job.KindRecoverable},
		{"deadline", context.DeadlineExceeded, job.KindRecoverable},
		{"recoverable", strategy.Recoverable("503", nil), job.KindRecoverable},
		{"non-recoverable", strategy.NonRecoverable("404", nil), job.KindNonRecoverable},
		{"wrapped", fmt.Errorf("fetch: %w", strategy.NonRecoverable("bad url", nil)), job.KindNonRecoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strategy.Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := strategy.Recoverable("status 503", errors.New("unavailable"))
	if err.Error() != "status 503: unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, err.(*strategy.Error).Err) {
		t.Error("Unwrap does not expose the cause")
	}
}
