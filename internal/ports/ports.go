package ports

import (
	"context"

	"PerspectiveLens/internal/domain"
)

// KeyValueStore is the persistent store backing rate-limit state.
// Get reports found=false for a missing key instead of an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Availability is the outcome of a lightweight credential probe.
type Availability string

const (
	AvailabilityReady        Availability = "ready"
	AvailabilityInvalidKey   Availability = "invalid-key"
	AvailabilityNetworkError Availability = "network-error"
)

// StageRunner executes one stage against one backend model.
type StageRunner interface {
	Provider() string
	Model() string
	CheckAvailability(ctx context.Context) Availability
	RunStage(ctx context.Context, stage domain.StageID, articles []domain.Article) (domain.StageResult, error)
}

// StageRunnerFactory builds a runner bound to a model identifier.
type StageRunnerFactory func(model string) StageRunner

// TemplateLoader supplies the stage instruction text for a model family.
type TemplateLoader interface {
	Load(modelKind, stageName string) (string, error)
}

// ProgressSink receives stage events. Errors are logged by the caller and never abort a run.
type ProgressSink interface {
	OnStageProgress(ctx context.Context, event domain.StageEvent) error
}

// ProgressFunc adapts a plain function to ProgressSink.
type ProgressFunc func(ctx context.Context, event domain.StageEvent) error

// OnStageProgress calls f.
func (f ProgressFunc) OnStageProgress(ctx context.Context, event domain.StageEvent) error {
	return f(ctx, event)
}

// ExtractedContent is what a content extractor returns for a URL.
type ExtractedContent struct {
	URL         string
	Title       string
	TextContent string
	Byline      string
	Lang        string
	SiteName    string
}

// ContentExtractor fetches readable article text for a URL.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (ExtractedContent, error)
}
