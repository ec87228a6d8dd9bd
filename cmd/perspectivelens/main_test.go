package main

import (
	"errors"
	"strings"
	"testing"

	"PerspectiveLens/internal/domain"
)

func TestUserMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{err: &domain.AllModelsRateLimitedError{WaitSeconds: 42}, want: "Try again in 42s."},
		{err: &domain.CriticalStageError{Stage: 1, Name: "context-trust", Err: errors.New("boom")}, want: "Analysis failed, please retry"},
		{err: &domain.ValidationError{Reason: "no articles provided"}, want: "Cannot analyze"},
		{err: errors.New("disk full"), want: "error: disk full"},
	}
	for _, tc := range cases {
		if got := userMessage(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("userMessage(%v) = %q, want it to contain %q", tc.err, got, tc.want)
		}
	}
}
