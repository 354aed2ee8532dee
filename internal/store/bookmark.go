package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// bookmarkCols is the standard SELECT column list for scanBookmarks.
const bookmarkCols = `bookmark_id, user_id, url, domain, title, tags, summary,
	created_at, updated_at`

// BookmarkStore manages bookmark rows and their extracted text.
//
// The missing-enrichment queries (ListMissingTags and friends) are plain
// predicate scans with no lease semantics: a bookmark stays "missing" until
// the enrichment write succeeds, so failed enrichments retry on the next
// poll indefinitely.
//
// BookmarkStore is safe for concurrent use by multiple goroutines.
type BookmarkStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewBookmarkStore creates a BookmarkStore.
func NewBookmarkStore(pool *pgxpool.Pool, logger *slog.Logger) (*BookmarkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookmarkStore{pool: pool, logger: logger}, nil
}

// Create inserts the bookmark and its extracted text in one transaction.
// Returns ErrDuplicate when the (url, user) pair already exists, which a
// racing redelivery should treat as success.
func (s *BookmarkStore) Create(ctx context.Context, b *Bookmark, textContent string) error {
	if b == nil {
		return fmt.Errorf("bookmark is required")
	}
	if b.ID == "" || b.URL == "" {
		return fmt.Errorf("bookmark id and url are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning bookmark transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `INSERT INTO bookmark (bookmark_id, user_id, url, domain, title, tags, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.UserID, b.URL, b.Domain, b.Title, b.Tags, b.Summary)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("bookmark %s for user %s: %w", b.ID, b.UserID, ErrDuplicate)
		}
		return fmt.Errorf("inserting bookmark: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO bookmark_content (bookmark_id, user_id, text_content)
		VALUES ($1, $2, $3)`, b.ID, b.UserID, textContent); err != nil {
		return fmt.Errorf("inserting bookmark content: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing bookmark: %w", err)
	}

	s.logger.Debug("bookmark created", "bookmark_id", b.ID, "user_id", b.UserID, "url", b.URL)
	return nil
}

// GetByURL returns the user's bookmark for a normalized URL, or ErrNotFound.
// This is the duplicate check the content processor runs before fetching.
func (s *BookmarkStore) GetByURL(ctx context.Context, userID uuid.UUID, url string) (*Bookmark, error) {
	return s.getOne(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark WHERE url = $1 AND user_id = $2`, url, userID)
}

// GetByID returns the user's bookmark by id, or ErrNotFound.
func (s *BookmarkStore) GetByID(ctx context.Context, userID uuid.UUID, bookmarkID string) (*Bookmark, error) {
	return s.getOne(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID)
}

// GetContent returns the extracted full text for a bookmark.
func (s *BookmarkStore) GetContent(ctx context.Context, userID uuid.UUID, bookmarkID string) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx, `SELECT text_content FROM bookmark_content
		WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("content for bookmark %s: %w", bookmarkID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("selecting bookmark content: %w", err)
	}
	return text, nil
}

// UpdateTags sets the tag set for a bookmark.
func (s *BookmarkStore) UpdateTags(ctx context.Context, userID uuid.UUID, bookmarkID string, tags []string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bookmark
		SET tags = $3, updated_at = now()
		WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID, tags)
	if err != nil {
		return fmt.Errorf("updating bookmark tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bookmark %s: %w", bookmarkID, ErrNotFound)
	}
	return nil
}

// UpdateSummary sets the summary for a bookmark.
func (s *BookmarkStore) UpdateSummary(ctx context.Context, userID uuid.UUID, bookmarkID, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bookmark
		SET summary = $3, updated_at = now()
		WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID, summary)
	if err != nil {
		return fmt.Errorf("updating bookmark summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bookmark %s: %w", bookmarkID, ErrNotFound)
	}
	return nil
}

// ListMissingTags returns bookmarks the tag worker has not enriched yet.
func (s *BookmarkStore) ListMissingTags(ctx context.Context, limit int) ([]*Bookmark, error) {
	return s.list(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark WHERE tags IS NULL
		ORDER BY created_at LIMIT $1`, limit)
}

// ListMissingSummary returns bookmarks without a summary.
func (s *BookmarkStore) ListMissingSummary(ctx context.Context, limit int) ([]*Bookmark, error) {
	return s.list(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark WHERE summary IS NULL
		ORDER BY created_at LIMIT $1`, limit)
}

// ListMissingChunks returns bookmarks that have no embedded chunks yet.
// Bookmarks whose extracted text is blank are excluded; they have nothing to
// embed and would otherwise occupy a batch slot forever.
func (s *BookmarkStore) ListMissingChunks(ctx context.Context, limit int) ([]*Bookmark, error) {
	return s.list(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark b
		WHERE NOT EXISTS (
			SELECT 1 FROM bookmark_chunk c
			WHERE c.bookmark_id = b.bookmark_id AND c.user_id = b.user_id
		)
		AND EXISTS (
			SELECT 1 FROM bookmark_content bc
			WHERE bc.bookmark_id = b.bookmark_id AND bc.user_id = b.user_id
				AND btrim(bc.text_content) <> ''
		)
		ORDER BY created_at LIMIT $1`, limit)
}

// ListByUser returns the user's bookmarks, newest first.
func (s *BookmarkStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Bookmark, error) {
	return s.list(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark WHERE user_id = $2
		ORDER BY created_at DESC LIMIT $1`, limit, userID)
}

// Search performs a keyword search over title, summary, url and tags for one
// user. Matching is case-insensitive substring; tag matching is exact.
func (s *BookmarkStore) Search(ctx context.Context, userID uuid.UUID, term string, limit int) ([]*Bookmark, error) {
	pattern := "%" + term + "%"
	return s.list(ctx, `SELECT `+bookmarkCols+`
		FROM bookmark
		WHERE user_id = $2
		  AND (title ILIKE $3 OR summary ILIKE $3 OR url ILIKE $3 OR $4 = ANY(tags))
		ORDER BY created_at DESC LIMIT $1`, limit, userID, pattern, term)
}

func (s *BookmarkStore) getOne(ctx context.Context, sql string, args ...any) (*Bookmark, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting bookmark: %w", err)
	}
	bookmarks, err := scanBookmarks(rows)
	if err != nil {
		return nil, err
	}
	if len(bookmarks) == 0 {
		return nil, ErrNotFound
	}
	return bookmarks[0], nil
}

func (s *BookmarkStore) list(ctx context.Context, sql string, limit int, args ...any) ([]*Bookmark, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	rows, err := s.pool.Query(ctx, sql, append([]any{limit}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	return scanBookmarks(rows)
}

// scanBookmarks drains rows into bookmarks, closing rows when done.
func scanBookmarks(rows pgx.Rows) ([]*Bookmark, error) {
	defer rows.Close()

	var bookmarks []*Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.URL, &b.Domain, &b.Title,
			&b.Tags, &b.Summary, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning bookmark row: %w", err)
		}
		bookmarks = append(bookmarks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bookmark rows: %w", err)
	}
	return bookmarks, nil
}
