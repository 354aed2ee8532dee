package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
	"github.com/fparisotto/bookmark-hub-sub000/internal/text"
)

const summarySystemPrompt = `You summarize articles faithfully and concisely.
Write plain prose, a single paragraph, no headings or lists.
Never add information that is not in the text.`

// SummaryStore is the slice of the bookmark store the summary worker needs.
type SummaryStore interface {
	ListMissingSummary(ctx context.Context, limit int) ([]*store.Bookmark, error)
	GetContent(ctx context.Context, userID uuid.UUID, bookmarkID string) (string, error)
	UpdateSummary(ctx context.Context, userID uuid.UUID, bookmarkID, summary string) error
}

// Summarizer fills in summaries for bookmarks that have none. Long texts are
// summarized window by window and the partial summaries are consolidated
// into one.
type Summarizer struct {
	store     SummaryStore
	llm       Generator
	chunker   *text.Chunker
	wake      *Signal
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewSummarizer creates the summary worker.
func NewSummarizer(summaryStore SummaryStore, llm Generator, chunker *text.Chunker,
	wake *Signal, interval time.Duration, batchSize int, logger *slog.Logger) (*Summarizer, error) {
	if summaryStore == nil || llm == nil || chunker == nil || wake == nil {
		return nil, fmt.Errorf("store, llm, chunker and wake signal are required")
	}
	if interval <= 0 || batchSize < 1 {
		return nil, fmt.Errorf("invalid interval %s or batch size %d", interval, batchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		store:     summaryStore,
		llm:       llm,
		chunker:   chunker,
		wake:      wake,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run loops until ctx is canceled.
func (w *Summarizer) Run(ctx context.Context) {
	runPollLoop(ctx, "summary", w.interval, w.wake, w.logger, w.pass)
}

func (w *Summarizer) pass(ctx context.Context) {
	bookmarks, err := w.store.ListMissingSummary(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("listing bookmarks missing summary failed", "error", err)
		return
	}
	for _, b := range bookmarks {
		if ctx.Err() != nil {
			return
		}
		if err := w.enrich(ctx, b); err != nil {
			w.logger.Warn("summary enrichment failed, will retry",
				"bookmark_id", b.ID, "user_id", b.UserID, "error", err)
		}
	}
}

func (w *Summarizer) enrich(ctx context.Context, b *store.Bookmark) error {
	content, err := w.store.GetContent(ctx, b.UserID, b.ID)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	if !enrichable(content) {
		// Texts this short are their own summary.
		return w.store.UpdateSummary(ctx, b.UserID, b.ID, strings.TrimSpace(content))
	}

	windows := w.chunker.Split(content)
	partials := make([]string, 0, len(windows))
	for _, window := range windows {
		summary, err := w.llm.Generate(ctx, summarySystemPrompt,
			"Summarize this part of an article:\n\n"+window.Text)
		if err != nil {
			return fmt.Errorf("summarizing window %d: %w", window.Index, err)
		}
		partials = append(partials, strings.TrimSpace(summary))
	}

	final := partials[0]
	if len(partials) > 1 {
		final, err = w.llm.Generate(ctx, summarySystemPrompt,
			fmt.Sprintf("These are partial summaries of consecutive parts of the article %q. Merge them into one coherent summary:\n\n%s",
				b.Title, strings.Join(partials, "\n\n")))
		if err != nil {
			return fmt.Errorf("consolidating summary: %w", err)
		}
		final = strings.TrimSpace(final)
	}

	if err := w.store.UpdateSummary(ctx, b.UserID, b.ID, final); err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}
	w.logger.Info("bookmark summarized", "bookmark_id", b.ID, "user_id", b.UserID)
	return nil
}
