package store

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a bookmark task.
type TaskStatus string

const (
	// TaskStatusPending marks a task waiting for (re)delivery.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusDone marks a successfully processed task.
	TaskStatusDone TaskStatus = "done"

	// TaskStatusFail marks a task that exhausted its retries. Terminal.
	TaskStatusFail TaskStatus = "fail"
)

// Task is one row of the bookmark_task queue. Rows are never deleted; the
// table doubles as the submission audit trail.
type Task struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	URL          string // raw, as submitted
	Status       TaskStatus
	Tags         []string
	Summary      *string
	NextDelivery time.Time // lease expiry; advanced by Dequeue
	Retries      *int16
	FailReason   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RetryCount returns the number of recorded failures, treating the unset
// column as zero.
func (t *Task) RetryCount() int {
	if t.Retries == nil {
		return 0
	}
	return int(*t.Retries)
}

// Bookmark is one stored article per (user, normalized URL). The extracted
// full text lives in bookmark_content and is fetched separately.
type Bookmark struct {
	ID        string // base64url murmur3 of the normalized URL
	UserID    uuid.UUID
	URL       string // normalized
	Domain    string
	Title     string
	Tags      []string // nil until the tag worker runs
	Summary   *string  // nil until the summary worker runs
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one embedded slice of a bookmark's text. The set of chunks for a
// bookmark is always replaced wholesale, never partially updated.
type Chunk struct {
	ID         uuid.UUID
	BookmarkID string
	UserID     uuid.UUID
	Index      int32
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkMatch is a chunk returned by vector search with its cosine similarity
// score (1 - cosine distance, in [0, 1] for normalized embeddings).
type ChunkMatch struct {
	Chunk
	Similarity float64
}

// RagSession is one persisted question/answer exchange. Answer stays nil
// until the retrieval engine finishes, so an interrupted query leaves a
// truthful unanswered record.
type RagSession struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Question       string
	Answer         *string
	RelevantChunks []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
