package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/log"
	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
)

type fakeSessions struct {
	created   []*store.RagSession
	answers   map[uuid.UUID]string
	chunkIDs  map[uuid.UUID][]uuid.UUID
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		answers:  make(map[uuid.UUID]string),
		chunkIDs: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeSessions) Create(_ context.Context, userID uuid.UUID, question string) (*store.RagSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	sess := &store.RagSession{ID: uuid.New(), UserID: userID, Question: question}
	s.created = append(s.created, sess)
	return sess, nil
}

func (s *fakeSessions) SetAnswer(_ context.Context, sessionID uuid.UUID, answer string, chunkIDs []uuid.UUID) error {
	s.answers[sessionID] = answer
	s.chunkIDs[sessionID] = chunkIDs
	return nil
}

// fakeSearcher returns the same scripted matches for every variant.
type fakeSearcher struct {
	matches   []store.ChunkMatch
	searchErr error
	calls     int
	gotLimit  int
}

func (f *fakeSearcher) Search(_ context.Context, _ uuid.UUID, _ []float32, _ float64, limit int) ([]store.ChunkMatch, error) {
	f.calls++
	f.gotLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

// scriptedLLM replays structured fixtures in call order; an error fixture
// fails that call. Generate returns synthesized and counts calls.
type scriptedLLM struct {
	structured     []any
	structuredPos  int
	synthesized    string
	generateCalls  int
	generateErr    error
	embedErr       error
	embedCallCount int
}

func (f *scriptedLLM) Generate(context.Context, string, string) (string, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.synthesized, nil
}

func (f *scriptedLLM) GenerateStructured(_ context.Context, _, _ string, _ map[string]any, out any) error {
	if f.structuredPos >= len(f.structured) {
		return fmt.Errorf("scriptedLLM: unexpected structured call %d", f.structuredPos)
	}
	fixture := f.structured[f.structuredPos]
	f.structuredPos++
	if err, ok := fixture.(error); ok {
		return err
	}
	raw, err := json.Marshal(fixture)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *scriptedLLM) Embed(context.Context, string) ([]float32, error) {
	f.embedCallCount++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func match(similarity float64) store.ChunkMatch {
	return store.ChunkMatch{
		Chunk:      store.Chunk{ID: uuid.New(), Text: fmt.Sprintf("passage at %f", similarity)},
		Similarity: similarity,
	}
}

func relevant(explanation string) map[string]any {
	return map[string]any{"relevant": true, "explanation": explanation}
}

func newTestEngine(t *testing.T, sessions SessionWriter, chunks ChunkSearcher, llm *scriptedLLM, maxChunks int) *Engine {
	t.Helper()
	e, err := NewEngine(sessions, chunks, llm, llm, maxChunks, 0.5, log.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return e
}

func TestQuery_HappyPath(t *testing.T) {
	high, low := match(0.9), match(0.7)
	sessions := newFakeSessions()
	searcher := &fakeSearcher{matches: []store.ChunkMatch{high, low}}
	llm := &scriptedLLM{
		structured: []any{
			map[string]any{"queries": []string{"variant one", "variant two"}},
			relevant("explains it directly"),
			relevant("adds detail"),
		},
		synthesized: "the synthesized answer",
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "what is a goroutine?")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if got.Text != "the synthesized answer" {
		t.Errorf("answer = %q", got.Text)
	}
	// Original plus two paraphrases, one search each.
	if searcher.calls != 3 || llm.embedCallCount != 3 {
		t.Errorf("searches = %d, embeds = %d, want 3 each", searcher.calls, llm.embedCallCount)
	}
	if searcher.gotLimit != 10 {
		t.Errorf("search limit = %d, want 2 x maxChunks = 10", searcher.gotLimit)
	}
	if len(got.Chunks) != 2 || got.Chunks[0].ID != high.ID {
		t.Errorf("chunks = %+v, want highest similarity first", got.Chunks)
	}
	if llm.generateCalls != 1 {
		t.Errorf("synthesis calls = %d, want 1", llm.generateCalls)
	}

	sessionID := sessions.created[0].ID
	if sessions.answers[sessionID] != "the synthesized answer" {
		t.Error("answer was not persisted on the session")
	}
	wantIDs := []uuid.UUID{high.ID, low.ID}
	gotIDs := sessions.chunkIDs[sessionID]
	if len(gotIDs) != 2 || gotIDs[0] != wantIDs[0] || gotIDs[1] != wantIDs[1] {
		t.Errorf("persisted chunk ids = %v, want %v", gotIDs, wantIDs)
	}
}

func TestQuery_ExpansionFailsOpen(t *testing.T) {
	m := match(0.8)
	sessions := newFakeSessions()
	searcher := &fakeSearcher{matches: []store.ChunkMatch{m}}
	llm := &scriptedLLM{
		structured: []any{
			errors.New("expansion model down"),
			relevant("on topic"),
		},
		synthesized: "answer from the original question alone",
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "question")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("searches = %d, want 1 (original question only)", searcher.calls)
	}
	if got.Text != "answer from the original question alone" {
		t.Errorf("answer = %q", got.Text)
	}
}

func TestQuery_RelevanceFailsOpen(t *testing.T) {
	m := match(0.8)
	sessions := newFakeSessions()
	searcher := &fakeSearcher{matches: []store.ChunkMatch{m}}
	llm := &scriptedLLM{
		structured: []any{
			map[string]any{"queries": []string{}},
			errors.New("relevance model down"),
		},
		synthesized: "answer",
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "question")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got.Chunks) != 1 || got.Chunks[0].ID != m.ID {
		t.Fatalf("chunks = %+v, want the unassessed chunk kept", got.Chunks)
	}
	if got.Chunks[0].Explanation != relevanceUnavailable {
		t.Errorf("explanation = %q, want placeholder", got.Chunks[0].Explanation)
	}
	ids := sessions.chunkIDs[sessions.created[0].ID]
	if len(ids) != 1 || ids[0] != m.ID {
		t.Error("unassessed chunk must appear in the persisted relevant_chunks")
	}
}

func TestQuery_IrrelevantChunksDropped(t *testing.T) {
	keep, drop := match(0.9), match(0.8)
	sessions := newFakeSessions()
	searcher := &fakeSearcher{matches: []store.ChunkMatch{keep, drop}}
	llm := &scriptedLLM{
		structured: []any{
			map[string]any{"queries": []string{}},
			relevant("useful"),
			map[string]any{"relevant": false, "explanation": "off topic"},
		},
		synthesized: "answer",
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "question")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got.Chunks) != 1 || got.Chunks[0].ID != keep.ID {
		t.Errorf("chunks = %+v, want only the relevant one", got.Chunks)
	}
}

func TestQuery_EmptyResultCannedAnswer(t *testing.T) {
	sessions := newFakeSessions()
	searcher := &fakeSearcher{}
	llm := &scriptedLLM{
		structured: []any{map[string]any{"queries": []string{}}},
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "anything about quantum gardening?")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if got.Text != NoRelevantInformation {
		t.Errorf("answer = %q, want the canned answer", got.Text)
	}
	if llm.generateCalls != 0 {
		t.Errorf("synthesis calls = %d, want 0 for an empty result", llm.generateCalls)
	}
	if len(got.Chunks) != 0 {
		t.Errorf("chunks = %+v, want none", got.Chunks)
	}
	if sessions.answers[sessions.created[0].ID] != NoRelevantInformation {
		t.Error("canned answer must still be persisted on the session")
	}
}

func TestQuery_DedupKeepsHighestScore(t *testing.T) {
	shared := match(0.9)
	lowerDup := shared
	lowerDup.Similarity = 0.6

	sessions := newFakeSessions()
	// Both variants return the same chunk id at different scores.
	searcher := &fakeSearcher{matches: []store.ChunkMatch{shared, lowerDup}}
	llm := &scriptedLLM{
		structured: []any{
			map[string]any{"queries": []string{"a variant"}},
			relevant("good"),
		},
		synthesized: "answer",
	}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	got, err := e.Query(context.Background(), uuid.New(), "question")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got.Chunks) != 1 {
		t.Fatalf("chunks = %d, want duplicates collapsed to 1", len(got.Chunks))
	}
	if got.Chunks[0].Similarity != 0.9 {
		t.Errorf("similarity = %f, want the highest occurrence kept", got.Chunks[0].Similarity)
	}
}

func TestQuery_TruncatesToMaxChunks(t *testing.T) {
	matches := []store.ChunkMatch{match(0.95), match(0.9), match(0.85), match(0.8)}
	sessions := newFakeSessions()
	searcher := &fakeSearcher{matches: matches}
	llm := &scriptedLLM{
		structured: []any{
			map[string]any{"queries": []string{}},
			relevant("a"),
			relevant("b"),
		},
		synthesized: "answer",
	}
	e := newTestEngine(t, sessions, searcher, llm, 2)

	got, err := e.Query(context.Background(), uuid.New(), "question")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got.Chunks) != 2 {
		t.Fatalf("chunks = %d, want maxChunks = 2", len(got.Chunks))
	}
	if got.Chunks[0].ID != matches[0].ID || got.Chunks[1].ID != matches[1].ID {
		t.Error("truncation must keep the highest-scoring chunks")
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	e := newTestEngine(t, newFakeSessions(), &fakeSearcher{}, &scriptedLLM{}, 5)
	if _, err := e.Query(context.Background(), uuid.New(), "   "); err == nil {
		t.Error("Query(blank) expected error, got nil")
	}
}

func TestQuery_SearchFailureIsHard(t *testing.T) {
	sessions := newFakeSessions()
	searcher := &fakeSearcher{searchErr: errors.New("db down")}
	llm := &scriptedLLM{structured: []any{map[string]any{"queries": []string{}}}}
	e := newTestEngine(t, sessions, searcher, llm, 5)

	if _, err := e.Query(context.Background(), uuid.New(), "question"); err == nil {
		t.Error("Query() expected error when search fails, got nil")
	}
	// The unanswered session row remains as the audit record.
	if len(sessions.created) != 1 {
		t.Errorf("sessions created = %d, want 1", len(sessions.created))
	}
	if _, ok := sessions.answers[sessions.created[0].ID]; ok {
		t.Error("failed query must leave the session unanswered")
	}
}
