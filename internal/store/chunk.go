package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchChunksSQL ranks a user's chunks by cosine distance to the query
// embedding. Similarity is 1 - distance; rows under the threshold are
// filtered in SQL so the index-ordered scan can stop early.
const searchChunksSQL = `SELECT chunk_id, bookmark_id, user_id, chunk_index, chunk_text,
	created_at, updated_at,
	1 - (embedding <=> $2) AS similarity
	FROM bookmark_chunk
	WHERE user_id = $1 AND 1 - (embedding <=> $2) >= $3
	ORDER BY embedding <=> $2
	LIMIT $4`

// ChunkStore manages embedded chunks. The chunk set of a bookmark is owned
// exclusively by the embedding worker and replaced atomically on every
// re-embedding.
//
// ChunkStore is safe for concurrent use by multiple goroutines.
type ChunkStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewChunkStore creates a ChunkStore.
func NewChunkStore(pool *pgxpool.Pool, logger *slog.Logger) (*ChunkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{pool: pool, logger: logger}, nil
}

// Replace swaps the full chunk set of a bookmark in one transaction:
// delete-all-then-insert. A reader never observes a partial chunk set, and
// two racing replacements both leave a complete set behind.
func (s *ChunkStore) Replace(ctx context.Context, userID uuid.UUID, bookmarkID string, chunks []Chunk) error {
	if bookmarkID == "" {
		return fmt.Errorf("bookmark id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning chunk replace transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM bookmark_chunk
		WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID); err != nil {
		return fmt.Errorf("deleting previous chunks: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.BookmarkID = bookmarkID
		c.UserID = userID
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, `INSERT INTO bookmark_chunk
			(chunk_id, bookmark_id, user_id, chunk_index, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.BookmarkID, c.UserID, c.Index, c.Text, vec); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replace: %w", err)
	}

	s.logger.Debug("chunks replaced", "bookmark_id", bookmarkID, "user_id", userID, "count", len(chunks))
	return nil
}

// Search returns the user's chunks nearest to the query embedding with
// similarity at or above threshold, closest first.
func (s *ChunkStore) Search(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]ChunkMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, searchChunksSQL, userID, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ID, &m.BookmarkID, &m.UserID, &m.Index, &m.Text,
			&m.CreatedAt, &m.UpdatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk matches: %w", err)
	}
	return matches, nil
}

// CountForBookmark returns the number of stored chunks for one bookmark.
func (s *ChunkStore) CountForBookmark(ctx context.Context, userID uuid.UUID, bookmarkID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bookmark_chunk
		WHERE bookmark_id = $1 AND user_id = $2`, bookmarkID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
