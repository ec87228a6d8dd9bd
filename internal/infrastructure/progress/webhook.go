package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

// Webhook posts every stage event as JSON to a remote renderer.
type Webhook struct {
	endpoint string
	client   *http.Client
}

var _ ports.ProgressSink = (*Webhook)(nil)

// NewWebhook registers the target URL.
func NewWebhook(endpoint string) *Webhook {
	return &Webhook{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	Stage      domain.StageID     `json:"stage"`
	Name       string             `json:"name"`
	Success    bool               `json:"success"`
	DurationMs int64              `json:"duration"`
	Result     domain.StageResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// OnStageProgress delivers the event; non-2xx answers are reported as errors.
func (w *Webhook) OnStageProgress(ctx context.Context, event domain.StageEvent) error {
	if w.endpoint == "" || w.client == nil {
		return fmt.Errorf("progress webhook misconfigured")
	}

	body, err := json.Marshal(webhookPayload{
		Stage:      event.Stage,
		Name:       event.Name,
		Success:    event.Success,
		DurationMs: event.DurationMs(),
		Result:     event.Result,
		Error:      event.Error,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("progress webhook error: %s", resp.Status)
	}

	return nil
}
