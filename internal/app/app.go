package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"PerspectiveLens/internal/config"
	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/infrastructure/llm"
	"PerspectiveLens/internal/infrastructure/parser"
	"PerspectiveLens/internal/infrastructure/progress"
	"PerspectiveLens/internal/infrastructure/storage"
	"PerspectiveLens/internal/logging"
	"PerspectiveLens/internal/ports"
	"PerspectiveLens/internal/prompts"
	"PerspectiveLens/internal/ratelimit"
	"PerspectiveLens/internal/router"
	"PerspectiveLens/internal/usecase"
)

// Application wires configs to use cases.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	analyzer *usecase.Analyzer
	coverage *parser.CoverageSource
	webhook  ports.ProgressSink
	closer   io.Closer
}

// New builds the application; the returned value must be closed.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	kv, closer, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	templates, err := prompts.Default()
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	if err := templates.LoadDir(cfg.Gemini.TemplatesDir); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("load templates: %w", err)
	}

	store := ratelimit.NewStore(kv, ratelimit.WithLogger(baseLogger.With("component", "ratelimit")))
	modelRouter, err := router.New(cfg.Gemini.Models, store, baseLogger.With("component", "router"))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	analyzer := usecase.NewAnalyzer(usecase.AnalyzerDeps{
		Router:  modelRouter,
		Clients: llm.NewClientFactory(cfg.Gemini, templates, baseLogger.With("component", "gemini")),
		Logger:  baseLogger.With("component", "analyzer"),
	})

	extractor := parser.NewHTMLExtractor(&http.Client{Timeout: cfg.Extractor.Timeout}, cfg.Extractor.UserAgent)
	coverage := parser.NewCoverageSource(extractor, baseLogger.With("component", "coverage"))

	var webhook ports.ProgressSink
	if cfg.Progress.WebhookURL != "" {
		webhook = progress.NewWebhook(cfg.Progress.WebhookURL)
	}

	baseLogger.Debug("application configured", "gemini", cfg.Gemini.String(), "storage", cfg.Storage.Driver)

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		analyzer: analyzer,
		coverage: coverage,
		webhook:  webhook,
		closer:   closer,
	}, nil
}

// Analyzer exposes the analysis use case.
func (a *Application) Analyzer() *usecase.Analyzer {
	return a.analyzer
}

// Collect extracts articles from URLs.
func (a *Application) Collect(ctx context.Context, urls []string) ([]domain.Article, error) {
	return a.coverage.Collect(ctx, urls)
}

// Analyze runs the analysis, sending progress to sink and to the configured webhook.
func (a *Application) Analyze(ctx context.Context, articles []domain.Article, sink ports.ProgressSink) (*domain.Report, error) {
	var sinks progress.Fanout
	if sink != nil {
		sinks = append(sinks, sink)
	}
	if a.webhook != nil {
		sinks = append(sinks, a.webhook)
	}
	return a.analyzer.Analyze(ctx, articles, sinks)
}

// Close releases storage.
func (a *Application) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
