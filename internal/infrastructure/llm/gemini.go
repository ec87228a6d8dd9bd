package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"PerspectiveLens/internal/config"
	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

const (
	providerName    = "gemini"
	maxErrorBody    = 1024
	maxResponseBody = 8 << 20
)

// GeminiClient implements ports.StageRunner against the Gemini generateContent API.
// It holds only fixed configuration; every RunStage call is independent.
type GeminiClient struct {
	endpoint       string
	model          string
	apiKey         string
	promptKind     string
	temperature    float64
	topK           int
	topP           float64
	thinkingBudget int
	maxRetries     int
	baseDelay      time.Duration
	timeout        time.Duration
	templates      ports.TemplateLoader
	httpClient     *http.Client
	logger         *slog.Logger
}

var _ ports.StageRunner = (*GeminiClient)(nil)

// NewGeminiClient builds a client for one model from configuration.
func NewGeminiClient(cfg config.GeminiConfig, model string, templates ports.TemplateLoader, logger *slog.Logger) *GeminiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	temperature, topK, topP := cfg.Sampling()
	kind := cfg.PromptKind
	if kind == "" {
		kind = providerName
	}
	return &GeminiClient{
		endpoint:       strings.TrimSuffix(cfg.Endpoint, "/"),
		model:          model,
		apiKey:         cfg.APIKey,
		promptKind:     kind,
		temperature:    temperature,
		topK:           topK,
		topP:           topP,
		thinkingBudget: cfg.Budget(),
		maxRetries:     cfg.Retries(),
		baseDelay:      baseDelay,
		timeout:        timeout,
		templates:      templates,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

// NewClientFactory returns a factory producing one client per model.
func NewClientFactory(cfg config.GeminiConfig, templates ports.TemplateLoader, logger *slog.Logger) ports.StageRunnerFactory {
	return func(model string) ports.StageRunner {
		return NewGeminiClient(cfg, model, templates, logger)
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *GeminiClient) WithHTTPClient(client *http.Client) *GeminiClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

func (c *GeminiClient) Provider() string { return providerName }

func (c *GeminiClient) Model() string { return c.model }

// CheckAvailability probes the model metadata endpoint. It never fails; any
// problem maps to invalid-key or network-error.
func (c *GeminiClient) CheckAvailability(ctx context.Context) ports.Availability {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return ports.AvailabilityInvalidKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models/"+url.PathEscape(c.model), nil)
	if err != nil {
		return ports.AvailabilityNetworkError
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug("availability probe failed", "model", c.model, "error", err)
		return ports.AvailabilityNetworkError
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		return ports.AvailabilityReady
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return ports.AvailabilityInvalidKey
	default:
		return ports.AvailabilityNetworkError
	}
}

// RunStage sends one stage prompt and returns the validated result.
// A 429 surfaces as *domain.RateLimitError without local retries; other
// non-2xx responses are retried with exponential backoff.
func (c *GeminiClient) RunStage(ctx context.Context, stage domain.StageID, articles []domain.Article) (domain.StageResult, error) {
	def, ok := domain.Stage(stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage %d", stage)
	}
	if c.templates == nil {
		return nil, fmt.Errorf("gemini client has no template loader")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("gemini client misconfigured")
	}

	instructions, err := c.templates.Load(c.promptKind, def.Name)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	body, err := json.Marshal(c.buildRequest(stage, BuildPrompt(instructions, articles)))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini payload: %w", err)
	}

	c.debug("stage request", "model", c.model, "stage", def.Name, "articles", len(articles), "bytes", len(body))

	raw, err := c.generate(ctx, body)
	if err != nil {
		return nil, err
	}

	text, err := responseText(raw)
	if err != nil {
		return nil, &domain.ParseError{Stage: stage, Err: err}
	}

	result, err := domain.DecodeStageResult(stage, []byte(text))
	if err != nil {
		return nil, &domain.ParseError{Stage: stage, Err: err}
	}
	return result, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	TopK             int             `json:"topK"`
	TopP             float64         `json:"topP"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   map[string]any  `json:"responseSchema"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *GeminiClient) buildRequest(stage domain.StageID, prompt string) generateRequest {
	return generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.temperature,
			TopK:             c.topK,
			TopP:             c.topP,
			ResponseMimeType: "application/json",
			ResponseSchema:   ResponseSchema(stage),
			ThinkingConfig:   &thinkingConfig{ThinkingBudget: c.thinkingBudget},
		},
	}
}

// generate posts body with retries and returns the raw 2xx response.
func (c *GeminiClient) generate(ctx context.Context, body []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, url.PathEscape(c.model))

	var payload []byte
	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		status, respBody, err := c.post(ctx, endpoint, body)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return fmt.Errorf("send gemini request: %w", err)
		}

		switch {
		case status == http.StatusTooManyRequests:
			return backoff.Permanent(&domain.RateLimitError{
				Model:   c.model,
				Status:  status,
				Message: errorMessage(respBody),
				Payload: respBody,
			})
		case status >= 200 && status < 300:
			payload = respBody
			return nil
		default:
			return &domain.APIError{Model: c.model, Status: status, Message: errorMessage(respBody)}
		}
	}

	notify := func(err error, wait time.Duration) {
		c.warn("gemini request failed, retrying", "model", c.model, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, c.backoffPolicy(ctx), notify); err != nil {
		return nil, err
	}
	return payload, nil
}

// backoffPolicy waits baseDelay, 2*baseDelay, ... for at most maxRetries retries.
func (c *GeminiClient) backoffPolicy(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.baseDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = c.baseDelay << 10
	expo.MaxElapsedTime = 0
	expo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxRetries)), ctx)
}

// post performs a single attempt bounded by the per-call timeout.
func (c *GeminiClient) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func responseText(raw []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode gemini envelope: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("no candidates returned")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("empty response text (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

func (c *GeminiClient) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *GeminiClient) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
