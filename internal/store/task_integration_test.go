//go:build integration
// +build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/log"
	"github.com/fparisotto/bookmark-hub-sub000/internal/testutil"
)

func newIntegrationTaskStore(t *testing.T, lease time.Duration, ceiling int) (*TaskStore, func()) {
	t.Helper()
	testdb, cleanup := testutil.SetupTestDB(t)
	store, err := NewTaskStore(testdb.Pool, lease, ceiling, log.NewNop())
	if err != nil {
		cleanup()
		t.Fatalf("NewTaskStore() error: %v", err)
	}
	return store, cleanup
}

func TestTaskStore_CreateAndGet_Integration(t *testing.T) {
	store, cleanup := newIntegrationTaskStore(t, 5*time.Minute, 5)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	task, err := store.Create(ctx, userID, "https://example.com/a", []string{"go"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if task.Status != TaskStatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}

	got, err := store.Get(ctx, userID, task.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.URL != "https://example.com/a" || len(got.Tags) != 1 {
		t.Errorf("got = %+v", got)
	}

	if _, err := store.Get(ctx, uuid.New(), task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() for wrong user = %v, want ErrNotFound", err)
	}
}

func TestTaskStore_DequeueSubmissionOrder_Integration(t *testing.T) {
	store, cleanup := newIntegrationTaskStore(t, 5*time.Minute, 5)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	var created []uuid.UUID
	for i := 0; i < 5; i++ {
		task, err := store.Create(ctx, userID, fmt.Sprintf("https://example.com/%d", i), nil)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		created = append(created, task.ID)
	}

	got, err := store.Dequeue(ctx, time.Now(), len(created))
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if len(got) != len(created) {
		t.Fatalf("Dequeue() returned %d tasks, want %d", len(got), len(created))
	}
	for i, task := range got {
		if task.ID != created[i] {
			t.Errorf("position %d: got task %s, want %s (submission order)", i, task.ID, created[i])
		}
	}
}

func TestTaskStore_LeaseExclusivity_Integration(t *testing.T) {
	store, cleanup := newIntegrationTaskStore(t, 5*time.Minute, 5)
	defer cleanup()
	ctx := context.Background()

	const total = 40
	userID := uuid.New()
	for i := 0; i < total; i++ {
		if _, err := store.Create(ctx, userID, fmt.Sprintf("https://example.com/%d", i), nil); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tasks, err := store.Dequeue(ctx, time.Now(), 7)
				if err != nil {
					t.Errorf("Dequeue() error: %v", err)
					return
				}
				if len(tasks) == 0 {
					return
				}
				mu.Lock()
				for _, task := range tasks {
					seen[task.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("dequeued %d distinct tasks, want %d", len(seen), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s delivered %d times within one lease window", id, n)
		}
	}
}

func TestTaskStore_LeaseExpiryRedelivers_Integration(t *testing.T) {
	store, cleanup := newIntegrationTaskStore(t, 100*time.Millisecond, 5)
	defer cleanup()
	ctx := context.Background()

	task, err := store.Create(ctx, uuid.New(), "https://example.com/a", nil)
	if err != nil {
		t.Fatal(err)
	}

	first, err := store.Dequeue(ctx, time.Now(), 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("first Dequeue() = %v, %v; want the task", first, err)
	}
	// Leased: not visible before the window elapses.
	second, err := store.Dequeue(ctx, time.Now(), 10)
	if err != nil || len(second) != 0 {
		t.Fatalf("second Dequeue() = %v, %v; want empty while leased", second, err)
	}

	time.Sleep(150 * time.Millisecond)
	third, err := store.Dequeue(ctx, time.Now(), 10)
	if err != nil || len(third) != 1 || third[0].ID != task.ID {
		t.Fatalf("third Dequeue() = %v, %v; want the task redelivered", third, err)
	}
}

func TestTaskStore_RetryCeiling_Integration(t *testing.T) {
	const ceiling = 3
	store, cleanup := newIntegrationTaskStore(t, 5*time.Minute, ceiling)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	task, err := store.Create(ctx, userID, "https://example.com/broken", nil)
	if err != nil {
		t.Fatal(err)
	}

	procErr := errors.New("fetch failed")
	for i := 0; i < ceiling; i++ {
		if err := store.Complete(ctx, task, procErr); err != nil {
			t.Fatalf("Complete(#%d) error: %v", i+1, err)
		}
	}

	got, err := store.Get(ctx, userID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != TaskStatusFail {
		t.Errorf("status = %s, want fail after %d failures", got.Status, ceiling)
	}
	if got.FailReason == nil || *got.FailReason == "" {
		t.Error("terminal failure must record a non-empty fail_reason")
	}
	if got.RetryCount() != ceiling {
		t.Errorf("retries = %d, want %d", got.RetryCount(), ceiling)
	}
}

func TestTaskStore_SuccessBeforeCeiling_Integration(t *testing.T) {
	const ceiling = 3
	store, cleanup := newIntegrationTaskStore(t, 5*time.Minute, ceiling)
	defer cleanup()
	ctx := context.Background()

	userID := uuid.New()
	task, err := store.Create(ctx, userID, "https://example.com/flaky", nil)
	if err != nil {
		t.Fatal(err)
	}

	procErr := errors.New("transient")
	for i := 0; i < ceiling-1; i++ {
		if err := store.Complete(ctx, task, procErr); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Complete(ctx, task, nil); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, userID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != TaskStatusDone {
		t.Errorf("status = %s, want done after success before the ceiling", got.Status)
	}
	if got.FailReason != nil {
		t.Errorf("fail_reason = %q, want unset", *got.FailReason)
	}
}

func TestTaskStore_DoneTasksNotDequeued_Integration(t *testing.T) {
	store, cleanup := newIntegrationTaskStore(t, 50*time.Millisecond, 5)
	defer cleanup()
	ctx := context.Background()

	task, err := store.Create(ctx, uuid.New(), "https://example.com/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, task, nil); err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)
	tasks, err := store.Dequeue(ctx, time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("Dequeue() returned %d tasks, want 0 after done", len(tasks))
	}
}
