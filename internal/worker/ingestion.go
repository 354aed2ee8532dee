package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/content"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
)

// TaskQueue is the slice of the task store the ingestion worker needs.
type TaskQueue interface {
	Dequeue(ctx context.Context, now time.Time, limit int) ([]*store.Task, error)
	Complete(ctx context.Context, task *store.Task, taskErr error) error
}

// Pipeline processes one submitted URL into a stored article.
type Pipeline interface {
	Process(ctx context.Context, userID uuid.UUID, rawURL string) (*content.Processed, error)
}

// BookmarkCreator persists a processed bookmark and its text.
type BookmarkCreator interface {
	Create(ctx context.Context, b *store.Bookmark, textContent string) error
}

// Ingestion drains the bookmark task queue. It wakes on a periodic tick or
// on a Signal notification, whichever comes first, and keeps dequeuing until
// the queue has nothing due. Task failures count against the queue's retry
// ceiling; the worker itself never stops on a task error.
type Ingestion struct {
	queue     TaskQueue
	pipeline  Pipeline
	bookmarks BookmarkCreator
	wake      *Signal
	enriched  Notifier
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewIngestion creates the ingestion worker. wake is the submit-side
// notification; enriched is notified after every stored bookmark so the
// enrichment workers poll promptly.
func NewIngestion(queue TaskQueue, pipeline Pipeline, bookmarks BookmarkCreator,
	wake *Signal, enriched Notifier, interval time.Duration, batchSize int, logger *slog.Logger) (*Ingestion, error) {
	if queue == nil || pipeline == nil || bookmarks == nil {
		return nil, fmt.Errorf("queue, pipeline and bookmark store are required")
	}
	if wake == nil || enriched == nil {
		return nil, fmt.Errorf("wake and enriched signals are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestion{
		queue:     queue,
		pipeline:  pipeline,
		bookmarks: bookmarks,
		wake:      wake,
		enriched:  enriched,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run loops until ctx is canceled.
func (w *Ingestion) Run(ctx context.Context) {
	w.logger.Info("ingestion worker started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingestion worker stopped")
			return
		case <-ticker.C:
		case <-w.wake.Wait():
		}
		w.drain(ctx)
	}
}

// drain dequeues and processes until the queue is empty or ctx is canceled.
func (w *Ingestion) drain(ctx context.Context) {
	for ctx.Err() == nil {
		tasks, err := w.queue.Dequeue(ctx, time.Now(), w.batchSize)
		if err != nil {
			w.logger.Error("dequeue failed", "error", err)
			return
		}
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			if ctx.Err() != nil {
				return
			}
			w.handle(ctx, task)
		}
	}
}

// handle runs one task end to end and records its outcome. A duplicate
// bookmark, whether detected before fetching or raced in at insert time,
// completes the task as done.
func (w *Ingestion) handle(ctx context.Context, task *store.Task) {
	processed, err := w.pipeline.Process(ctx, task.UserID, task.URL)
	if err != nil {
		if errors.Is(err, content.ErrAlreadyExists) {
			w.logger.Debug("task is a duplicate submission", "task_id", task.ID, "url", task.URL)
			w.complete(ctx, task, nil)
			return
		}
		w.logger.Warn("task processing failed",
			"task_id", task.ID, "url", task.URL, "retries", task.RetryCount(), "error", err)
		w.complete(ctx, task, err)
		return
	}

	bookmark := &store.Bookmark{
		ID:     processed.BookmarkID,
		UserID: task.UserID,
		URL:    processed.URL,
		Domain: processed.Domain,
		Title:  processed.Title,
	}
	if err := w.bookmarks.Create(ctx, bookmark, processed.Text); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			w.complete(ctx, task, nil)
			return
		}
		w.complete(ctx, task, err)
		return
	}

	w.logger.Info("bookmark ingested",
		"task_id", task.ID, "bookmark_id", bookmark.ID, "url", bookmark.URL)
	w.complete(ctx, task, nil)
	w.enriched.Notify()
}

func (w *Ingestion) complete(ctx context.Context, task *store.Task, taskErr error) {
	if err := w.queue.Complete(ctx, task, taskErr); err != nil {
		// The lease will expire and redeliver the task; processing is
		// idempotent so the retry is harmless.
		w.logger.Error("recording task outcome failed", "task_id", task.ID, "error", err)
	}
}
