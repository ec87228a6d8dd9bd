package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
	"PerspectiveLens/internal/router"
)

// ModelRouter is the subset of the router the analyzer drives.
type ModelRouter interface {
	Models() []string
	SelectBestAvailable(ctx context.Context) (router.Selection, error)
	HandleRateLimitError(ctx context.Context, model string, payload []byte) (domain.RateLimitBlock, error)
	GetStatusForAll(ctx context.Context) ([]router.ModelStatus, error)
	Clear(ctx context.Context, model string) error
	ClearAll(ctx context.Context) error
}

var _ ModelRouter = (*router.Router)(nil)

// AnalyzerDeps wires routing and client construction for the retry loop.
type AnalyzerDeps struct {
	Router  ModelRouter
	Clients ports.StageRunnerFactory
	Logger  *slog.Logger
	Now     func() time.Time
}

// Analyzer owns the retry-with-next-model loop around the orchestrator.
type Analyzer struct {
	router  ModelRouter
	clients ports.StageRunnerFactory
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer returns the top-level analysis use case.
func NewAnalyzer(deps AnalyzerDeps) *Analyzer {
	return &Analyzer{
		router:  deps.Router,
		clients: deps.Clients,
		logger:  deps.Logger,
		now:     deps.Now,
	}
}

// Analyze runs the full analysis, switching to the next available model
// whenever one is rate limited and resuming at the interrupted stage.
func (a *Analyzer) Analyze(ctx context.Context, articles []domain.Article, progress ports.ProgressSink) (*domain.Report, error) {
	if a.router == nil || a.clients == nil {
		return nil, fmt.Errorf("analyzer is not configured")
	}
	if err := domain.ValidateArticles(articles); err != nil {
		return nil, err
	}

	checkpoint := NewCheckpoint()
	attempts := len(a.router.Models()) + 1
	var lastRateLimit error

	for attempt := 0; attempt < attempts; attempt++ {
		selection, err := a.router.SelectBestAvailable(ctx)
		if err != nil {
			return nil, err
		}
		if selection.WasFallback {
			a.info("using fallback model", "model", selection.Model, "blocked", len(selection.BlockedModels))
		}

		orchestrator := NewOrchestrator(OrchestratorDeps{
			Runner: a.clients(selection.Model),
			Logger: a.logger,
			Now:    a.now,
		})

		report, err := orchestrator.Run(ctx, RunRequest{
			Articles:   articles,
			Progress:   progress,
			Checkpoint: checkpoint,
		})
		if err == nil {
			return report, nil
		}

		var rateLimited *domain.RateLimitError
		if !errors.As(err, &rateLimited) {
			return nil, err
		}
		lastRateLimit = err

		block, recordErr := a.router.HandleRateLimitError(ctx, rateLimited.Model, rateLimited.Payload)
		if recordErr != nil {
			return nil, fmt.Errorf("record rate limit for %s: %w", rateLimited.Model, recordErr)
		}
		a.info("model rate limited, switching", "model", rateLimited.Model, "retry_delay_s", block.RetryDelaySeconds, "completed_stages", len(checkpoint.Stages()))
	}

	return nil, lastRateLimit
}

// Status reports availability for every configured model.
func (a *Analyzer) Status(ctx context.Context) ([]router.ModelStatus, error) {
	return a.router.GetStatusForAll(ctx)
}

// Clear lifts the rate-limit block for model, or for all models when model is empty.
func (a *Analyzer) Clear(ctx context.Context, model string) error {
	if model == "" {
		return a.router.ClearAll(ctx)
	}
	return a.router.Clear(ctx, model)
}

// ProbeResult is the availability of one model's credentials.
type ProbeResult struct {
	Model        string             `json:"model"`
	Availability ports.Availability `json:"availability"`
}

// Probe checks credentials and reachability for every configured model.
func (a *Analyzer) Probe(ctx context.Context) []ProbeResult {
	models := a.router.Models()
	results := make([]ProbeResult, 0, len(models))
	for _, model := range models {
		results = append(results, ProbeResult{
			Model:        model,
			Availability: a.clients(model).CheckAvailability(ctx),
		})
	}
	return results
}

func (a *Analyzer) info(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}
