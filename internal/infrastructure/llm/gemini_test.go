package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"PerspectiveLens/internal/config"
	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
	"PerspectiveLens/internal/prompts"
)

const contextTrustJSON = `{"story_summary":"Storm hits coast","trust_signal":"some_conflicts","reader_action":"Compare casualty figures"}`

var testArticles = []domain.Article{
	{Source: "BBC", Title: "Storm", Country: "GB", Language: "en", Content: "A storm made landfall."},
	{Source: "CNN", Title: "Hurricane", Country: "US", Language: "en", Content: "A hurricane hit the coast."},
}

func envelope(text string) string {
	raw, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{
				map[string]any{"text": "thinking...", "thought": true},
				map[string]any{"text": text},
			}},
			"finishReason": "STOP",
		}},
	})
	return string(raw)
}

func newTestClient(t *testing.T, url string, maxRetries int) *GeminiClient {
	t.Helper()
	templates, err := prompts.Default()
	if err != nil {
		t.Fatalf("prompts.Default: %v", err)
	}
	cfg := config.GeminiConfig{
		Endpoint:       url,
		APIKey:         "test-key",
		Temperature:    config.FloatPtr(0.2),
		TopK:           config.IntPtr(40),
		TopP:           config.FloatPtr(0.95),
		ThinkingBudget: config.IntPtr(512),
		Timeout:        5 * time.Second,
		MaxRetries:     config.IntPtr(maxRetries),
		RetryBaseDelay: 10 * time.Millisecond,
	}
	return NewGeminiClient(cfg, "gemini-2.5-pro", templates, nil)
}

func TestRunStageSuccess(t *testing.T) {
	t.Parallel()

	requests := make(chan generateRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-pro:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requests <- req
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, envelope(contextTrustJSON))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 2)
	result, err := client.RunStage(context.Background(), domain.StageContextTrust, testArticles)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}

	ct, ok := result.(domain.ContextTrust)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if ct.TrustSignal != domain.TrustSomeConflicts || ct.StorySummary != "Storm hits coast" {
		t.Fatalf("unexpected result %+v", ct)
	}

	captured := <-requests
	gc := captured.GenerationConfig
	if gc.ResponseMimeType != "application/json" {
		t.Fatalf("mime type = %q", gc.ResponseMimeType)
	}
	if gc.ThinkingConfig == nil || gc.ThinkingConfig.ThinkingBudget != 512 {
		t.Fatalf("thinking budget not sent: %+v", gc.ThinkingConfig)
	}
	if gc.TopK != 40 || gc.TopP != 0.95 || gc.Temperature != 0.2 {
		t.Fatalf("sampling params not sent: %+v", gc)
	}
	if gc.ResponseSchema["type"] != "OBJECT" {
		t.Fatalf("missing response schema: %v", gc.ResponseSchema)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 1 {
		t.Fatalf("unexpected contents %+v", captured.Contents)
	}
	prompt := captured.Contents[0].Parts[0].Text
	for _, want := range []string{"ARTICLES (2):", "--- Article 1 ---", "Source: CNN", "A storm made landfall."} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRunStageRateLimitIsNotRetried(t *testing.T) {
	t.Parallel()

	payload := `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"10s"}]}}`
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 2)
	_, err := client.RunStage(context.Background(), domain.StageConsensus, testArticles)

	var rl *domain.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("429 must not be retried locally, got %d calls", calls.Load())
	}
	if rl.Model != "gemini-2.5-pro" || rl.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected error fields %+v", rl)
	}
	if string(rl.Payload) != payload {
		t.Fatalf("payload not preserved: %s", rl.Payload)
	}
	if rl.Message != "Resource exhausted" {
		t.Fatalf("message = %q", rl.Message)
	}
}

func TestRunStageRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"message":"internal"}}`)
			return
		}
		_, _ = io.WriteString(w, envelope(`{"consensus":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 2)
	start := time.Now()
	result, err := client.RunStage(context.Background(), domain.StageConsensus, testArticles)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	// 10ms then 20ms between attempts.
	if elapsed < 30*time.Millisecond {
		t.Fatalf("backoff too short: %v", elapsed)
	}
	if c, ok := result.(domain.Consensus); !ok || c.Consensus == nil {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestRunStageGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 2)
	_, err := client.RunStage(context.Background(), domain.StageDisputes, testArticles)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Message != "overloaded" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 call plus 2 retries, got %d", calls.Load())
	}
}

func TestRunStageParseErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"prose":        envelope("Sure! Here is the analysis."),
		"bad enum":     envelope(`{"story_summary":"s","trust_signal":"unsure","reader_action":"r"}`),
		"no candidate": `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`,
	}
	for name, body := range cases {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_, _ = io.WriteString(w, body)
		}))

		client := newTestClient(t, srv.URL, 2)
		_, err := client.RunStage(context.Background(), domain.StageContextTrust, testArticles)
		srv.Close()

		var parseErr *domain.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
		if parseErr.Stage != domain.StageContextTrust {
			t.Fatalf("%s: stage = %d", name, parseErr.Stage)
		}
		if calls.Load() != 1 {
			t.Fatalf("%s: parse failures must not be retried, got %d calls", name, calls.Load())
		}
	}
}

func TestRunStageHonoursCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL, 2)
	_, err := client.RunStage(ctx, domain.StageContextTrust, testArticles)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffPolicySchedule(t *testing.T) {
	t.Parallel()

	client := NewGeminiClient(config.GeminiConfig{Endpoint: "http://unused", APIKey: "k"}, "m", nil, nil)
	policy := client.backoffPolicy(context.Background())

	if got := policy.NextBackOff(); got != time.Second {
		t.Fatalf("first wait = %v, want 1s", got)
	}
	if got := policy.NextBackOff(); got != 2*time.Second {
		t.Fatalf("second wait = %v, want 2s", got)
	}
	if got := policy.NextBackOff(); got != backoff.Stop {
		t.Fatalf("third wait = %v, want stop", got)
	}
}

func TestCheckAvailability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   ports.Availability
	}{
		{status: http.StatusOK, want: ports.AvailabilityReady},
		{status: http.StatusBadRequest, want: ports.AvailabilityInvalidKey},
		{status: http.StatusForbidden, want: ports.AvailabilityInvalidKey},
		{status: http.StatusBadGateway, want: ports.AvailabilityNetworkError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/models/gemini-2.5-pro" {
				t.Errorf("unexpected probe %s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(tc.status)
		}))
		got := newTestClient(t, srv.URL, 0).CheckAvailability(context.Background())
		srv.Close()
		if got != tc.want {
			t.Fatalf("status %d: got %s, want %s", tc.status, got, tc.want)
		}
	}

	noKey := NewGeminiClient(config.GeminiConfig{Endpoint: "http://unused"}, "m", nil, nil)
	if got := noKey.CheckAvailability(context.Background()); got != ports.AvailabilityInvalidKey {
		t.Fatalf("missing key: got %s", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if got := newTestClient(t, url, 0).CheckAvailability(context.Background()); got != ports.AvailabilityNetworkError {
		t.Fatalf("closed server: got %s", got)
	}
}

func TestBuildRequestKeepsZeroSampling(t *testing.T) {
	t.Parallel()

	cfg := config.GeminiConfig{
		Endpoint:    "http://unused",
		APIKey:      "k",
		Temperature: config.FloatPtr(0),
		TopK:        config.IntPtr(0),
		TopP:        config.FloatPtr(0),
	}
	raw, err := json.Marshal(NewGeminiClient(cfg, "m", nil, nil).buildRequest(domain.StageConsensus, "prompt"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"temperature":0`, `"topK":0`, `"topP":0`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("request missing %s: %s", want, raw)
		}
	}
}
