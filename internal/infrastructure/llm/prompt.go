package llm

import (
	"fmt"
	"strings"

	"PerspectiveLens/internal/domain"
)

// BuildPrompt appends every article, untouched, to the stage instructions.
func BuildPrompt(instructions string, articles []domain.Article) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instructions))
	fmt.Fprintf(&b, "\n\nARTICLES (%d):\n", len(articles))

	for i, article := range articles {
		fmt.Fprintf(&b, "\n--- Article %d ---\n", i+1)
		fmt.Fprintf(&b, "Source: %s\n", orUnknown(article.Source))
		fmt.Fprintf(&b, "Country: %s\n", orUnknown(article.Country))
		fmt.Fprintf(&b, "Language: %s\n", orUnknown(article.Language))
		fmt.Fprintf(&b, "Title: %s\n", orUnknown(article.Title))
		b.WriteString("Content:\n")
		b.WriteString(strings.TrimSpace(article.Content))
		b.WriteString("\n")
	}

	return b.String()
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}
