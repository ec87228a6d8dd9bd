package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// InvalidArticle identifies an input article rejected by validation.
type InvalidArticle struct {
	Index  int
	Source string
}

// ValidationError is returned before any network call when the input is unusable.
type ValidationError struct {
	Reason   string
	Articles []InvalidArticle
}

func (e *ValidationError) Error() string {
	if len(e.Articles) == 0 {
		return "validation: " + e.Reason
	}
	parts := make([]string, 0, len(e.Articles))
	for _, a := range e.Articles {
		if a.Source != "" {
			parts = append(parts, fmt.Sprintf("%d (%s)", a.Index, a.Source))
			continue
		}
		parts = append(parts, strconv.Itoa(a.Index))
	}
	return fmt.Sprintf("validation: %s: indices %s", e.Reason, strings.Join(parts, ", "))
}

// Indices lists the offending article positions.
func (e *ValidationError) Indices() []int {
	out := make([]int, 0, len(e.Articles))
	for _, a := range e.Articles {
		out = append(out, a.Index)
	}
	return out
}

// RateLimitError is an HTTP 429 from the backend. It is never retried
// against the same model and must reach the routing layer untouched.
type RateLimitError struct {
	Model   string
	Status  int
	Message string
	Payload []byte
}

func (e *RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return fmt.Sprintf("model %s rate limited (status %d): %s", e.Model, e.Status, msg)
}

// APIError is a non-429 non-2xx response that survived the retry budget.
type APIError struct {
	Model   string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini %s error (status %d): %s", e.Model, e.Status, e.Message)
}

// ParseError means a 2xx response did not satisfy the stage contract.
type ParseError struct {
	Stage StageID
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse stage %d response: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BlockedModel is a preference-list entry skipped because of an active block.
type BlockedModel struct {
	Model         string `json:"model"`
	TimeRemaining int    `json:"timeRemaining"`
}

// AllModelsRateLimitedError means every candidate model is blocked.
type AllModelsRateLimitedError struct {
	WaitSeconds int
	Models      []BlockedModel
}

func (e *AllModelsRateLimitedError) Error() string {
	return fmt.Sprintf("all %d models are rate limited, try again in %ds", len(e.Models), e.WaitSeconds)
}

// CriticalStageError aborts a run because a critical stage failed.
type CriticalStageError struct {
	Stage StageID
	Name  string
	Err   error
}

func (e *CriticalStageError) Error() string {
	return fmt.Sprintf("critical stage %d (%s) failed: %v", e.Stage, e.Name, e.Err)
}

func (e *CriticalStageError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the persistent key-value store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err belongs to the rate-limit class, which
// the orchestrator propagates without recording a stage failure.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var all *AllModelsRateLimitedError
	return errors.As(err, &all)
}
