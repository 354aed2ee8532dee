// Package service is the call surface exposed to collaborators such as an
// HTTP layer: plain request/response methods over the stores, the retrieval
// engine and the worker wake signals.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/rag"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
	"github.com/fparisotto/bookmark-hub-sub000/internal/worker"
)

// DefaultListLimit bounds list operations when the caller passes no limit.
const DefaultListLimit = 50

// Service bundles the user-facing operations. Submission is asynchronous:
// CreateTask returns a task id immediately and processing failures surface
// only through the task's queryable status.
type Service struct {
	tasks     *store.TaskStore
	bookmarks *store.BookmarkStore
	sessions  *store.SessionStore
	engine    *rag.Engine
	ingestion *worker.Signal
	logger    *slog.Logger
}

// New creates the service. ingestion is the wake signal shared with the
// ingestion worker.
func New(tasks *store.TaskStore, bookmarks *store.BookmarkStore, sessions *store.SessionStore,
	engine *rag.Engine, ingestion *worker.Signal, logger *slog.Logger) (*Service, error) {
	if tasks == nil || bookmarks == nil || sessions == nil || engine == nil || ingestion == nil {
		return nil, fmt.Errorf("all stores, the engine and the ingestion signal are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:     tasks,
		bookmarks: bookmarks,
		sessions:  sessions,
		engine:    engine,
		ingestion: ingestion,
		logger:    logger,
	}, nil
}

// CreateTask enqueues a URL for ingestion and wakes the ingestion worker.
// The returned task is pending; its status tells the rest of the story.
func (s *Service) CreateTask(ctx context.Context, userID uuid.UUID, url string, tags []string) (*store.Task, error) {
	task, err := s.tasks.Create(ctx, userID, url, tags)
	if err != nil {
		return nil, err
	}
	s.ingestion.Notify()
	return task, nil
}

// GetTask returns one of the user's tasks.
func (s *Service) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*store.Task, error) {
	return s.tasks.Get(ctx, userID, taskID)
}

// ListTasks returns the user's tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, limit int) ([]*store.Task, error) {
	return s.tasks.List(ctx, userID, normalizeLimit(limit))
}

// GetBookmark returns one of the user's bookmarks.
func (s *Service) GetBookmark(ctx context.Context, userID uuid.UUID, bookmarkID string) (*store.Bookmark, error) {
	return s.bookmarks.GetByID(ctx, userID, bookmarkID)
}

// ListBookmarks returns the user's bookmarks, newest first.
func (s *Service) ListBookmarks(ctx context.Context, userID uuid.UUID, limit int) ([]*store.Bookmark, error) {
	return s.bookmarks.ListByUser(ctx, userID, normalizeLimit(limit))
}

// UpdateTags replaces the tag set of a bookmark with a user-chosen one.
func (s *Service) UpdateTags(ctx context.Context, userID uuid.UUID, bookmarkID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	return s.bookmarks.UpdateTags(ctx, userID, bookmarkID, tags)
}

// Search runs a keyword search over the user's bookmarks.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, term string, limit int) ([]*store.Bookmark, error) {
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}
	return s.bookmarks.Search(ctx, userID, term, normalizeLimit(limit))
}

// RagQuery answers a question over the user's corpus, synchronously.
func (s *Service) RagQuery(ctx context.Context, userID uuid.UUID, question string) (*rag.Answer, error) {
	return s.engine.Query(ctx, userID, question)
}

// RagHistory returns the user's past sessions, newest first.
func (s *Service) RagHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*store.RagSession, error) {
	return s.sessions.History(ctx, userID, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultListLimit
	}
	return limit
}
