package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

// OrchestratorDeps wires the stage runner and ambient services.
type OrchestratorDeps struct {
	Runner ports.StageRunner
	Logger *slog.Logger
	Now    func() time.Time
}

// Orchestrator drives the four analysis stages against one model.
type Orchestrator struct {
	runner ports.StageRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator constructs the stage pipeline.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		runner: deps.Runner,
		logger: deps.Logger,
		now:    now,
	}
}

// RunRequest is the input of a single orchestrator run.
type RunRequest struct {
	Articles []domain.Article
	Progress ports.ProgressSink
	// Checkpoint, when set, carries results from an earlier run that was
	// interrupted by a rate limit; completed stages are skipped.
	Checkpoint *Checkpoint
}

// Checkpoint accumulates stage outcomes across model switches of one analysis.
type Checkpoint struct {
	runID     string
	startedAt time.Time
	results   map[domain.StageID]domain.StageResult
	stages    []domain.StageMetadata
	models    []string
}

// NewCheckpoint starts an empty checkpoint with a fresh run id.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		runID:   uuid.NewString(),
		results: map[domain.StageID]domain.StageResult{},
	}
}

// RunID identifies the analysis across retries.
func (c *Checkpoint) RunID() string { return c.runID }

// Done reports whether the stage already has a result.
func (c *Checkpoint) Done(id domain.StageID) bool {
	_, ok := c.results[id]
	return ok
}

// Stages returns the metadata recorded so far.
func (c *Checkpoint) Stages() []domain.StageMetadata {
	return append([]domain.StageMetadata(nil), c.stages...)
}

// Models lists the models that took part, in order of first use.
func (c *Checkpoint) Models() []string {
	return append([]string(nil), c.models...)
}

func (c *Checkpoint) record(id domain.StageID, result domain.StageResult, meta domain.StageMetadata) {
	c.results[id] = result
	c.stages = append(c.stages, meta)
}

func (c *Checkpoint) useModel(model string) {
	for _, m := range c.models {
		if m == model {
			return
		}
	}
	c.models = append(c.models, model)
}

// Run executes the stages in order. Rate-limit errors are returned unchanged
// so the caller can switch models; a failed critical stage aborts with a
// CriticalStageError; a failed non-critical stage is replaced by its empty result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*domain.Report, error) {
	if err := domain.ValidateArticles(req.Articles); err != nil {
		return nil, err
	}
	if o.runner == nil {
		return nil, fmt.Errorf("orchestrator has no stage runner")
	}

	cp := req.Checkpoint
	if cp == nil {
		cp = NewCheckpoint()
	}
	if cp.startedAt.IsZero() {
		cp.startedAt = o.now()
	}
	if cp.results == nil {
		cp.results = map[domain.StageID]domain.StageResult{}
	}
	model := o.runner.Model()
	cp.useModel(model)

	o.info("analysis run", "run_id", cp.runID, "model", model, "articles", len(req.Articles))

	for _, def := range domain.Stages() {
		if cp.Done(def.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis cancelled before stage %d: %w", def.ID, err)
		}

		started := o.now()
		result, err := o.runner.RunStage(ctx, def.ID, req.Articles)
		duration := o.now().Sub(started)
		if err == nil && (result == nil || result.StageID() != def.ID) {
			err = fmt.Errorf("stage %d returned unexpected result %T", def.ID, result)
		}

		if err == nil {
			cp.record(def.ID, result, domain.StageMetadata{
				Stage:      def.ID,
				Name:       def.Name,
				Model:      model,
				DurationMs: duration.Milliseconds(),
				Success:    true,
			})
			o.debug("stage complete", "stage", def.Name, "model", model, "duration", duration)
			o.notify(ctx, req.Progress, domain.StageEvent{
				Stage:    def.ID,
				Name:     def.Name,
				Result:   result,
				Duration: duration,
				Success:  true,
			})
			continue
		}

		if domain.IsRateLimited(err) {
			o.info("stage rate limited", "stage", def.Name, "model", model)
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analysis cancelled during stage %d: %w", def.ID, err)
		}

		o.warn("stage failed", "stage", def.Name, "model", model, "critical", def.Critical, "error", err)
		meta := domain.StageMetadata{
			Stage:      def.ID,
			Name:       def.Name,
			Model:      model,
			DurationMs: duration.Milliseconds(),
			Success:    false,
			Error:      err.Error(),
		}
		o.notify(ctx, req.Progress, domain.StageEvent{
			Stage:    def.ID,
			Name:     def.Name,
			Error:    err.Error(),
			Duration: duration,
			Success:  false,
		})

		if def.Critical {
			cp.stages = append(cp.stages, meta)
			return nil, &domain.CriticalStageError{Stage: def.ID, Name: def.Name, Err: err}
		}
		cp.record(def.ID, domain.EmptyResult(def.ID), meta)
	}

	return o.assemble(cp, model, req.Articles), nil
}

func (o *Orchestrator) assemble(cp *Checkpoint, model string, articles []domain.Article) *domain.Report {
	report := &domain.Report{
		Metadata: domain.ReportMetadata{
			RunID:             cp.runID,
			ModelProvider:     o.runner.Provider(),
			Model:             model,
			ModelsTried:       cp.Models(),
			ArticlesAnalyzed:  len(articles),
			TotalDurationMs:   o.now().Sub(cp.startedAt).Milliseconds(),
			Stages:            cp.Stages(),
			AnalysisTimestamp: o.now().UTC(),
		},
		ProcessedArticles: make([]domain.ProcessedArticle, 0, len(articles)),
	}

	for _, result := range cp.results {
		switch r := result.(type) {
		case domain.ContextTrust:
			report.Stage1 = r
		case domain.Consensus:
			report.Stage2 = r
		case domain.Disputes:
			report.Stage3 = r
		case domain.Perspectives:
			report.Stage4 = r
		}
	}

	for _, article := range articles {
		report.ProcessedArticles = append(report.ProcessedArticles, article.Processed())
	}
	return report
}

// notify delivers a stage event; sink errors and panics never abort the run.
func (o *Orchestrator) notify(ctx context.Context, sink ports.ProgressSink, event domain.StageEvent) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.warn("progress sink panicked", "stage", event.Name, "panic", fmt.Sprint(r))
		}
	}()
	if err := sink.OnStageProgress(ctx, event); err != nil {
		o.warn("progress sink failed", "stage", event.Name, "error", err)
	}
}

func (o *Orchestrator) debug(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
