package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fparisotto/bookmark-hub-sub000/internal/readability"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
)

const (
	fetchTimeout = 60 * time.Second

	// maxPageBytes bounds a single page download.
	maxPageBytes = 20 << 20

	// articleFileName is the stored article HTML asset.
	articleFileName = "index.html"
)

// ErrAlreadyExists reports that the user already has a bookmark for the URL.
// Callers treat it as successful completion, not a failure.
var ErrAlreadyExists = errors.New("bookmark already exists for user")

// Extractor turns raw page HTML into a readable article.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, rawHTML []byte) (*readability.Result, error)
}

// BookmarkLookup is the duplicate check against existing bookmarks.
type BookmarkLookup interface {
	GetByURL(ctx context.Context, userID uuid.UUID, url string) (*store.Bookmark, error)
}

// Processed is the output of a successful pipeline run, ready to persist.
type Processed struct {
	BookmarkID string
	URL        string
	Domain     string
	Title      string
	HTML       string
	Text       string
}

// Processor runs the ingestion pipeline for one URL: normalize, dedupe,
// fetch, extract, localize images, store the article. It holds no state
// between runs and is safe for concurrent use.
type Processor struct {
	extractor  Extractor
	bookmarks  BookmarkLookup
	static     *StaticStore
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewProcessor creates a processor. The limiter throttles outbound asset
// fetches across all concurrent runs.
func NewProcessor(extractor Extractor, bookmarks BookmarkLookup, static *StaticStore, logger *slog.Logger) (*Processor, error) {
	if extractor == nil || bookmarks == nil || static == nil {
		return nil, fmt.Errorf("extractor, bookmark lookup and static store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extractor:  extractor,
		bookmarks:  bookmarks,
		static:     static,
		httpClient: &http.Client{Timeout: fetchTimeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		logger:     logger,
	}, nil
}

// Process runs the full pipeline. It returns ErrAlreadyExists when the user
// already bookmarked the normalized URL; any other error means the stage
// failed and the task should be retried.
func (p *Processor) Process(ctx context.Context, userID uuid.UUID, rawURL string) (*Processed, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	bookmarkID := BookmarkID(u)

	existing, err := p.bookmarks.GetByURL(ctx, userID, u.String())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, u.String())
	}

	rawHTML, err := p.fetchPage(ctx, u.String())
	if err != nil {
		return nil, err
	}

	article, err := p.extractor.Extract(ctx, u.String(), rawHTML)
	if err != nil {
		return nil, fmt.Errorf("readability extraction: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, fmt.Errorf("parsing article HTML: %w", err)
	}
	if err := p.localizeImages(ctx, doc, u, userID, bookmarkID); err != nil {
		return nil, fmt.Errorf("localizing images: %w", err)
	}

	html, err := doc.Find("body").Html()
	if err != nil {
		return nil, fmt.Errorf("rendering article HTML: %w", err)
	}
	if _, err := p.static.Save(userID, bookmarkID, articleFileName, []byte(html)); err != nil {
		return nil, fmt.Errorf("storing article: %w", err)
	}

	title := article.Title
	if title == "" {
		title = u.String()
	}
	return &Processed{
		BookmarkID: bookmarkID,
		URL:        u.String(),
		Domain:     u.Host,
		Title:      title,
		HTML:       html,
		Text:       article.TextContent,
	}, nil
}

func (p *Processor) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page fetch status %d for %s", resp.StatusCode, pageURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading page body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty page body from %s", pageURL)
	}
	return body, nil
}
