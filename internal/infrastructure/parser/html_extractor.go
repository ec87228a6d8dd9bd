package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PerspectiveLens/internal/ports"
)

const defaultUserAgent = "PerspectiveLens/1.0"

// HTMLExtractor pulls readable article text from a news page.
type HTMLExtractor struct {
	client    *http.Client
	userAgent string
}

var _ ports.ContentExtractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor wires an HTTP client; a nil client gets a 20s timeout.
func NewHTMLExtractor(client *http.Client, userAgent string) *HTMLExtractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTMLExtractor{client: client, userAgent: userAgent}
}

// Extract downloads pageURL and returns its title, text, byline and language.
func (e *HTMLExtractor) Extract(ctx context.Context, pageURL string) (ports.ExtractedContent, error) {
	doc, err := e.fetchDocument(ctx, pageURL)
	if err != nil {
		return ports.ExtractedContent{}, err
	}

	extracted := extractContent(doc)
	extracted.URL = pageURL
	if extracted.TextContent == "" {
		return extracted, fmt.Errorf("no readable text at %s", pageURL)
	}
	return extracted, nil
}

func (e *HTMLExtractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractContent(doc *goquery.Document) ports.ExtractedContent {
	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = collapse(doc.Find("title").First().Text())
	}
	if title == "" {
		title = collapse(doc.Find("h1").First().Text())
	}

	lang, _ := doc.Find("html").First().Attr("lang")

	byline := metaContent(doc, `meta[name="author"]`)
	if byline == "" {
		byline = collapse(doc.Find(`[rel="author"], .byline`).First().Text())
	}

	return ports.ExtractedContent{
		Title:       title,
		TextContent: articleText(doc),
		Byline:      byline,
		Lang:        strings.TrimSpace(lang),
		SiteName:    metaContent(doc, `meta[property="og:site_name"]`),
	}
}

// articleText joins paragraphs inside <article>, or every paragraph when the
// page has no <article> element.
func articleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, aside, form").Remove()

	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapse(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

func metaContent(doc *goquery.Document, selector string) string {
	value, _ := doc.Find(selector).First().Attr("content")
	return collapse(value)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
