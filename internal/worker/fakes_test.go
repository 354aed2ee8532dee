package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/content"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
)

// fakeQueue hands out its tasks once and records every completion.
type fakeQueue struct {
	mu        sync.Mutex
	tasks     []*store.Task
	completed map[uuid.UUID]error
}

func newFakeQueue(tasks ...*store.Task) *fakeQueue {
	return &fakeQueue{tasks: tasks, completed: make(map[uuid.UUID]error)}
}

func (q *fakeQueue) Dequeue(_ context.Context, _ time.Time, limit int) ([]*store.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(limit, len(q.tasks))
	batch := q.tasks[:n]
	q.tasks = q.tasks[n:]
	return batch, nil
}

func (q *fakeQueue) Complete(_ context.Context, task *store.Task, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[task.ID] = taskErr
	return nil
}

func (q *fakeQueue) completions() map[uuid.UUID]error {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[uuid.UUID]error, len(q.completed))
	for k, v := range q.completed {
		out[k] = v
	}
	return out
}

// fakePipeline maps each URL to a fixed result or error.
type fakePipeline struct {
	results map[string]*content.Processed
	errs    map[string]error
}

func (p *fakePipeline) Process(_ context.Context, _ uuid.UUID, rawURL string) (*content.Processed, error) {
	if err, ok := p.errs[rawURL]; ok {
		return nil, err
	}
	if res, ok := p.results[rawURL]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("no fixture for %s", rawURL)
}

// fakeCreator records created bookmarks; createErr, when set, is returned
// for every call.
type fakeCreator struct {
	mu        sync.Mutex
	created   []*store.Bookmark
	createErr error
}

func (c *fakeCreator) Create(_ context.Context, b *store.Bookmark, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, b)
	return nil
}

func (c *fakeCreator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

// fakeLLM scripts generation and embedding responses. Structured calls
// return structured fixtures in order; plain calls return generated in
// order. Embeddings are derived from the input length so tests can tell
// vectors apart.
type fakeLLM struct {
	mu         sync.Mutex
	structured []any
	generated  []string
	genErr     error
	embedErr   error

	structuredCalls int
	generateCalls   int
	embedCalls      int
}

func (f *fakeLLM) Generate(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return "", f.genErr
	}
	f.generateCalls++
	if len(f.generated) == 0 {
		return "a generated answer", nil
	}
	out := f.generated[0]
	f.generated = f.generated[1:]
	return out, nil
}

func (f *fakeLLM) GenerateStructured(_ context.Context, _, _ string, _ map[string]any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return f.genErr
	}
	f.structuredCalls++
	if len(f.structured) == 0 {
		return fmt.Errorf("fakeLLM: no structured fixture left")
	}
	// The last fixture is sticky so tests do not depend on the exact
	// number of windows the chunker produces.
	fixture := f.structured[0]
	if len(f.structured) > 1 {
		f.structured = f.structured[1:]
	}
	raw, err := json.Marshal(fixture)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeLLM) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedCalls++
	return []float32{float32(len(text)), 1, 0}, nil
}
