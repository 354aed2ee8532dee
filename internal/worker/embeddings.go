package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
	"github.com/fparisotto/bookmark-hub-sub000/internal/text"
)

// EmbeddingStore lists bookmarks that still need chunk embeddings.
type EmbeddingStore interface {
	ListMissingChunks(ctx context.Context, limit int) ([]*store.Bookmark, error)
	GetContent(ctx context.Context, userID uuid.UUID, bookmarkID string) (string, error)
}

// ChunkWriter persists the embedded chunk set of one bookmark.
type ChunkWriter interface {
	Replace(ctx context.Context, userID uuid.UUID, bookmarkID string, chunks []store.Chunk) error
}

// EmbeddingWorker chunks bookmark texts into overlapping windows, embeds
// each window, and replaces the bookmark's chunk set wholesale. All windows
// must embed successfully before anything is written; a partial chunk set is
// never persisted.
type EmbeddingWorker struct {
	store     EmbeddingStore
	chunks    ChunkWriter
	llm       Embedder
	chunker   *text.Chunker
	wake      *Signal
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewEmbeddingWorker creates the embedding worker.
func NewEmbeddingWorker(embeddingStore EmbeddingStore, chunks ChunkWriter, llm Embedder,
	chunker *text.Chunker, wake *Signal, interval time.Duration, batchSize int, logger *slog.Logger) (*EmbeddingWorker, error) {
	if embeddingStore == nil || chunks == nil || llm == nil || chunker == nil || wake == nil {
		return nil, fmt.Errorf("store, chunk writer, llm, chunker and wake signal are required")
	}
	if interval <= 0 || batchSize < 1 {
		return nil, fmt.Errorf("invalid interval %s or batch size %d", interval, batchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingWorker{
		store:     embeddingStore,
		chunks:    chunks,
		llm:       llm,
		chunker:   chunker,
		wake:      wake,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run loops until ctx is canceled.
func (w *EmbeddingWorker) Run(ctx context.Context) {
	runPollLoop(ctx, "embeddings", w.interval, w.wake, w.logger, w.pass)
}

func (w *EmbeddingWorker) pass(ctx context.Context) {
	bookmarks, err := w.store.ListMissingChunks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("listing bookmarks missing chunks failed", "error", err)
		return
	}
	for _, b := range bookmarks {
		if ctx.Err() != nil {
			return
		}
		if err := w.enrich(ctx, b); err != nil {
			w.logger.Warn("embedding enrichment failed, will retry",
				"bookmark_id", b.ID, "user_id", b.UserID, "error", err)
		}
	}
}

func (w *EmbeddingWorker) enrich(ctx context.Context, b *store.Bookmark) error {
	content, err := w.store.GetContent(ctx, b.UserID, b.ID)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	windows := w.chunker.Split(content)
	if len(windows) == 0 {
		w.logger.Debug("bookmark has no text to embed", "bookmark_id", b.ID, "user_id", b.UserID)
		return nil
	}

	chunks := make([]store.Chunk, 0, len(windows))
	for _, window := range windows {
		embedding, err := w.llm.Embed(ctx, window.Text)
		if err != nil {
			return fmt.Errorf("embedding window %d: %w", window.Index, err)
		}
		chunks = append(chunks, store.Chunk{
			Index:     window.Index,
			Text:      window.Text,
			Embedding: embedding,
		})
	}

	if err := w.chunks.Replace(ctx, b.UserID, b.ID, chunks); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}
	w.logger.Info("bookmark embedded", "bookmark_id", b.ID, "user_id", b.UserID, "chunks", len(chunks))
	return nil
}
