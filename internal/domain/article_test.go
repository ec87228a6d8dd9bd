package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateArticles(t *testing.T) {
	t.Parallel()

	err := ValidateArticles([]Article{
		{Source: "BBC", Content: "text"},
		{Source: "CNN", Content: "   "},
		{Source: "Fox", Content: "more text"},
		{Content: ""},
	})

	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if diff := cmp.Diff([]int{1, 3}, invalid.Indices()); diff != "" {
		t.Fatalf("indices mismatch (-want +got):\n%s", diff)
	}
	if got := invalid.Error(); got != "validation: articles missing content: indices 1 (CNN), 3" {
		t.Fatalf("unexpected message %q", got)
	}

	if err := ValidateArticles(nil); !errors.As(err, &invalid) {
		t.Fatalf("empty input should be a ValidationError, got %v", err)
	}
	if err := ValidateArticles([]Article{{Content: "ok"}}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestProcessedCountsRunes(t *testing.T) {
	t.Parallel()

	p := Article{Source: "Le Monde", Title: "Été", Content: "déjà vu"}.Processed()
	if p.OriginalContentLength != 7 {
		t.Fatalf("length = %d, want 7", p.OriginalContentLength)
	}
	if p.Source != "Le Monde" || p.Title != "Été" {
		t.Fatalf("unexpected snapshot %+v", p)
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	if !IsRateLimited(&RateLimitError{Model: "m", Status: 429}) {
		t.Fatalf("RateLimitError should be rate limited")
	}
	if !IsRateLimited(&AllModelsRateLimitedError{WaitSeconds: 3}) {
		t.Fatalf("AllModelsRateLimitedError should be rate limited")
	}
	if IsRateLimited(&APIError{Status: 500}) {
		t.Fatalf("APIError is not a rate limit")
	}
	if IsRateLimited(&CriticalStageError{Err: &APIError{Status: 500}}) {
		t.Fatalf("wrapped APIError is not a rate limit")
	}
}
