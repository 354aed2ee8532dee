package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sessionCols is the standard SELECT column list for rag_session rows.
const sessionCols = `session_id, user_id, question, answer, relevant_chunks,
	created_at, updated_at`

// SessionStore persists RAG question/answer sessions.
//
// A session is created with a null answer before any LLM call and updated
// exactly once when the retrieval engine finishes; it is immutable afterward.
//
// SessionStore is safe for concurrent use by multiple goroutines.
type SessionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(pool *pgxpool.Pool, logger *slog.Logger) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{pool: pool, logger: logger}, nil
}

// Create inserts a new unanswered session for the question.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID, question string) (*RagSession, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	session := &RagSession{
		ID:       uuid.New(),
		UserID:   userID,
		Question: question,
	}

	row := s.pool.QueryRow(ctx, `INSERT INTO rag_session (session_id, user_id, question)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`, session.ID, session.UserID, session.Question)
	if err := row.Scan(&session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, fmt.Errorf("inserting rag session: %w", err)
	}

	return session, nil
}

// SetAnswer records the final answer and the ordered kept chunk ids.
func (s *SessionStore) SetAnswer(ctx context.Context, sessionID uuid.UUID, answer string, chunkIDs []uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rag_session
		SET answer = $2, relevant_chunks = $3, updated_at = now()
		WHERE session_id = $1`, sessionID, answer, chunkIDs)
	if err != nil {
		return fmt.Errorf("updating rag session answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rag session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Get returns one session owned by the user.
func (s *SessionStore) Get(ctx context.Context, userID, sessionID uuid.UUID) (*RagSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionCols+`
		FROM rag_session
		WHERE session_id = $1 AND user_id = $2`, sessionID, userID)

	var sess RagSession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Question, &sess.Answer,
		&sess.RelevantChunks, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rag session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting rag session: %w", err)
	}
	return &sess, nil
}

// History returns the user's sessions, newest first.
func (s *SessionStore) History(ctx context.Context, userID uuid.UUID, limit int) ([]*RagSession, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+sessionCols+`
		FROM rag_session
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rag sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*RagSession
	for rows.Next() {
		var sess RagSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Question, &sess.Answer,
			&sess.RelevantChunks, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning rag session row: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rag session rows: %w", err)
	}
	return sessions, nil
}
