package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"PerspectiveLens/internal/app"
	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/infrastructure/progress"
)

var (
	articlesFile string
	articleURLs  []string
	runTimeout   time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the four-stage comparative analysis",
	Long: `Analyze a story across outlets.

Articles come from a JSON file (an array of {source, title, country,
language, url, content}) and/or from URLs that are fetched and extracted.
The report is written to stdout as JSON; stage progress goes to stderr.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&articlesFile, "articles", "a", "", "path to a JSON array of articles")
	analyzeCmd.Flags().StringArrayVarP(&articleURLs, "url", "u", nil, "article URL to extract (repeatable)")
	analyzeCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall analysis timeout")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	if articlesFile == "" && len(articleURLs) == 0 {
		return errors.New("provide --articles or at least one --url")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	return withApplication(ctx, func(ctx context.Context, application *app.Application) error {
		var articles []domain.Article
		if articlesFile != "" {
			loaded, err := readArticles(articlesFile)
			if err != nil {
				return err
			}
			articles = append(articles, loaded...)
		}
		if len(articleURLs) > 0 {
			collected, err := application.Collect(ctx, articleURLs)
			if err != nil {
				return err
			}
			articles = append(articles, collected...)
		}

		report, err := application.Analyze(ctx, articles, progress.NewConsole(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}

		for _, failed := range report.Failed() {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %s section unavailable (%s)\n", failed.Name, failed.Error)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}

func readArticles(path string) ([]domain.Article, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	var articles []domain.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, fmt.Errorf("parse articles %s: %w", path, err)
	}
	return articles, nil
}

// userMessage renders the error classes the way an end user should see them.
func userMessage(err error) string {
	var allBlocked *domain.AllModelsRateLimitedError
	var critical *domain.CriticalStageError
	var parseErr *domain.ParseError
	var invalid *domain.ValidationError

	switch {
	case errors.As(err, &allBlocked):
		return fmt.Sprintf("All models are rate limited. Try again in %ds.", allBlocked.WaitSeconds)
	case errors.As(err, &critical), errors.As(err, &parseErr):
		return fmt.Sprintf("Analysis failed, please retry: %v", err)
	case errors.As(err, &invalid):
		return fmt.Sprintf("Cannot analyze: %v", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
