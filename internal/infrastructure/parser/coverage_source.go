package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ports"
)

const maxParallelFetches = 4

// CoverageSource turns a set of article URLs into analysis input.
type CoverageSource struct {
	extractor ports.ContentExtractor
	logger    *slog.Logger
}

// NewCoverageSource wires the extractor used for every URL.
func NewCoverageSource(extractor ports.ContentExtractor, log *slog.Logger) *CoverageSource {
	return &CoverageSource{
		extractor: extractor,
		logger:    log,
	}
}

// Collect extracts every URL concurrently and keeps the input order.
// Any single failure fails the whole collection.
func (s *CoverageSource) Collect(ctx context.Context, urls []string) ([]domain.Article, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("content extractor is not configured")
	}

	s.debug("collect coverage", "urls", len(urls))

	articles := make([]domain.Article, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for i, raw := range urls {
		g.Go(func() error {
			extracted, err := s.extractor.Extract(gctx, raw)
			if err != nil {
				return fmt.Errorf("extract %s: %w", raw, err)
			}
			articles[i] = toArticle(extracted)
			s.debug("extracted article", "url", raw, "source", articles[i].Source, "chars", len(articles[i].Content))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return articles, nil
}

func toArticle(c ports.ExtractedContent) domain.Article {
	host := ""
	if parsed, err := url.Parse(c.URL); err == nil {
		host = strings.TrimPrefix(parsed.Hostname(), "www.")
	}

	source := c.SiteName
	if source == "" {
		source = host
	}

	return domain.Article{
		Source:   source,
		Title:    c.Title,
		Country:  countryFromHost(host),
		Language: primaryLanguage(c.Lang),
		URL:      c.URL,
		Content:  c.TextContent,
	}
}

// genericTLDs never imply a country.
var genericTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "info": true, "news": true, "io": true, "eu": true,
}

// countryFromHost guesses the outlet country from a two-letter TLD.
func countryFromHost(host string) string {
	idx := strings.LastIndex(host, ".")
	if idx < 0 {
		return ""
	}
	tld := host[idx+1:]
	if len(tld) != 2 || genericTLDs[tld] {
		return ""
	}
	if tld == "uk" {
		return "GB"
	}
	return strings.ToUpper(tld)
}

func primaryLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

func (s *CoverageSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
