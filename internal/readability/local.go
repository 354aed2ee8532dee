package readability

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	goreadability "github.com/go-shiori/go-readability"
)

// Local extracts articles in-process with go-readability. Used when no
// external readability service is configured.
type Local struct{}

// NewLocal creates the in-process extractor.
func NewLocal() *Local {
	return &Local{}
}

// Extract parses the raw HTML and returns the readable article.
func (*Local) Extract(ctx context.Context, pageURL string, rawHTML []byte) (*Result, error) {
	if len(rawHTML) == 0 {
		return nil, fmt.Errorf("raw HTML is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var u *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parsing page URL: %w", err)
		}
		u = parsed
	}

	article, err := goreadability.FromReader(bytes.NewReader(rawHTML), u)
	if err != nil {
		return nil, fmt.Errorf("extracting article: %w", err)
	}
	if article.Content == "" && article.TextContent == "" {
		return nil, fmt.Errorf("no readable content found")
	}

	return &Result{
		Title:       article.Title,
		Content:     article.Content,
		TextContent: article.TextContent,
	}, nil
}
