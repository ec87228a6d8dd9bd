package domain

import (
	"strings"
	"unicode/utf8"
)

// Article is one piece of coverage handed to the analysis pipeline.
type Article struct {
	Source   string `json:"source"`
	Title    string `json:"title"`
	Country  string `json:"country"`
	Language string `json:"language"`
	URL      string `json:"url"`
	Content  string `json:"content"`
}

// HasContent reports whether the article carries any non-blank text.
func (a Article) HasContent() bool {
	return strings.TrimSpace(a.Content) != ""
}

// ProcessedArticle is the trimmed snapshot of an article echoed back in a report.
type ProcessedArticle struct {
	Source                string `json:"source"`
	Title                 string `json:"title"`
	Country               string `json:"country"`
	Language              string `json:"language"`
	URL                   string `json:"url"`
	OriginalContentLength int    `json:"originalContentLength"`
}

// Processed converts the article into its report snapshot.
func (a Article) Processed() ProcessedArticle {
	return ProcessedArticle{
		Source:                a.Source,
		Title:                 a.Title,
		Country:               a.Country,
		Language:              a.Language,
		URL:                   a.URL,
		OriginalContentLength: utf8.RuneCountInString(a.Content),
	}
}

// ValidateArticles returns a ValidationError naming every article without content.
func ValidateArticles(articles []Article) error {
	if len(articles) == 0 {
		return &ValidationError{Reason: "no articles provided"}
	}

	var invalid []InvalidArticle
	for i, article := range articles {
		if !article.HasContent() {
			invalid = append(invalid, InvalidArticle{Index: i, Source: article.Source})
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Reason: "articles missing content", Articles: invalid}
	}
	return nil
}
