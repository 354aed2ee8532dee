// Package rag answers questions over a user's bookmark corpus: expand the
// question into variants, vector-search chunks per variant, filter by
// model-assessed relevance, and synthesize one answer. Every exchange is
// persisted as a rag_session row.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
)

// NoRelevantInformation is the canned answer when nothing in the corpus
// clears the similarity threshold. It is returned without any synthesis call.
const NoRelevantInformation = "No relevant information found in your bookmarks."

// expansionCount is how many paraphrases the engine asks for on top of the
// original question.
const expansionCount = 3

// relevanceUnavailable marks chunks kept because their relevance assessment
// failed, not because the model judged them relevant.
const relevanceUnavailable = "relevance assessment unavailable"

const expansionSystemPrompt = `You rephrase search questions.
Produce alternative phrasings that preserve the exact meaning of the question.
Return only the paraphrases.`

const relevanceSystemPrompt = `You judge whether a text passage helps answer a question.
Answer strictly with the requested JSON: relevant true or false, plus a one-sentence explanation.`

const synthesisSystemPrompt = `You answer questions using only the provided passages.
Cite no outside knowledge. If the passages conflict, say so.
Write plain prose.`

var expansionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"queries": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"queries"},
}

var relevanceSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"relevant":    map[string]any{"type": "boolean"},
		"explanation": map[string]any{"type": "string"},
	},
	"required": []string{"relevant", "explanation"},
}

// Generator is the text-generation slice of the LLM client.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	GenerateStructured(ctx context.Context, system, prompt string, schema map[string]any, out any) error
}

// Embedder is the embedding slice of the LLM client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the vector-search slice of the chunk store.
type ChunkSearcher interface {
	Search(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float64, limit int) ([]store.ChunkMatch, error)
}

// SessionWriter persists the question before retrieval and the answer after.
type SessionWriter interface {
	Create(ctx context.Context, userID uuid.UUID, question string) (*store.RagSession, error)
	SetAnswer(ctx context.Context, sessionID uuid.UUID, answer string, chunkIDs []uuid.UUID) error
}

// RelevantChunk is a retrieved chunk with the model's relevance explanation.
type RelevantChunk struct {
	store.ChunkMatch
	Explanation string
}

// Answer is the outcome of one retrieval run.
type Answer struct {
	SessionID uuid.UUID
	Question  string
	Text      string
	Chunks    []RelevantChunk
}

// Engine runs the retrieval algorithm. It is stateless between calls and
// safe for concurrent use.
type Engine struct {
	sessions  SessionWriter
	chunks    ChunkSearcher
	llm       Generator
	embedder  Embedder
	maxChunks int
	threshold float64
	logger    *slog.Logger
}

// NewEngine creates a retrieval engine. threshold is the minimum cosine
// similarity for a chunk to be considered at all; maxChunks bounds the
// context handed to synthesis.
func NewEngine(sessions SessionWriter, chunks ChunkSearcher, llm Generator, embedder Embedder,
	maxChunks int, threshold float64, logger *slog.Logger) (*Engine, error) {
	if sessions == nil || chunks == nil || llm == nil || embedder == nil {
		return nil, fmt.Errorf("sessions, chunk searcher, llm and embedder are required")
	}
	if maxChunks < 1 {
		return nil, fmt.Errorf("max chunks must be at least 1, got %d", maxChunks)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %f must be in [0, 1]", threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions:  sessions,
		chunks:    chunks,
		llm:       llm,
		embedder:  embedder,
		maxChunks: maxChunks,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// Query answers one question for one user. The session row is written before
// any model call, so an interrupted run leaves an unanswered session rather
// than nothing. Expansion and relevance failures degrade the result instead
// of failing the query; only embedding, search and synthesis errors are
// returned to the caller.
func (e *Engine) Query(ctx context.Context, userID uuid.UUID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	session, err := e.sessions.Create(ctx, userID, question)
	if err != nil {
		return nil, fmt.Errorf("creating rag session: %w", err)
	}

	variants := e.expand(ctx, question)
	candidates, err := e.search(ctx, userID, variants)
	if err != nil {
		return nil, err
	}
	selected := dedupeBySimilarity(candidates, e.maxChunks)
	kept := e.filterRelevant(ctx, question, selected)

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	answer := &Answer{SessionID: session.ID, Question: question, Chunks: kept}
	if len(kept) == 0 {
		answer.Text = NoRelevantInformation
	} else {
		answer.Text, err = e.synthesize(ctx, question, kept)
		if err != nil {
			return nil, err
		}
	}

	chunkIDs := make([]uuid.UUID, len(kept))
	for i, c := range kept {
		chunkIDs[i] = c.ID
	}
	if err := e.sessions.SetAnswer(ctx, session.ID, answer.Text, chunkIDs); err != nil {
		return nil, fmt.Errorf("recording rag answer: %w", err)
	}

	e.logger.Info("rag query answered",
		"session_id", session.ID, "user_id", userID,
		"variants", len(variants), "chunks", len(kept))
	return answer, nil
}

// expand returns the original question plus up to expansionCount paraphrases.
// Any expansion failure falls back to the original question alone.
func (e *Engine) expand(ctx context.Context, question string) []string {
	var out struct {
		Queries []string `json:"queries"`
	}
	prompt := fmt.Sprintf("Rephrase this question %d different ways:\n\n%s", expansionCount, question)
	if err := e.llm.GenerateStructured(ctx, expansionSystemPrompt, prompt, expansionSchema, &out); err != nil {
		e.logger.Warn("query expansion failed, using original question only", "error", err)
		return []string{question}
	}

	variants := []string{question}
	for _, q := range out.Queries {
		q = strings.TrimSpace(q)
		if q == "" || strings.EqualFold(q, question) {
			continue
		}
		variants = append(variants, q)
		if len(variants) == expansionCount+1 {
			break
		}
	}
	return variants
}

// search embeds each variant and collects up to 2 x maxChunks candidates per
// variant. An embedding or search failure is a hard error; without vectors
// there is nothing to retrieve from.
func (e *Engine) search(ctx context.Context, userID uuid.UUID, variants []string) ([]store.ChunkMatch, error) {
	var candidates []store.ChunkMatch
	for _, variant := range variants {
		embedding, err := e.embedder.Embed(ctx, variant)
		if err != nil {
			return nil, fmt.Errorf("embedding question variant: %w", err)
		}
		matches, err := e.chunks.Search(ctx, userID, embedding, e.threshold, 2*e.maxChunks)
		if err != nil {
			return nil, fmt.Errorf("searching chunks: %w", err)
		}
		candidates = append(candidates, matches...)
	}
	return candidates, nil
}

// dedupeBySimilarity sorts all candidates by similarity descending, keeps the
// first occurrence of each chunk id, and truncates to limit.
func dedupeBySimilarity(candidates []store.ChunkMatch, limit int) []store.ChunkMatch {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	seen := make(map[uuid.UUID]struct{}, len(candidates))
	out := make([]store.ChunkMatch, 0, limit)
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

// filterRelevant asks the model, per chunk, whether the passage helps answer
// the question. A failed assessment keeps the chunk with a placeholder
// explanation; infrastructure errors must never silently narrow the context.
func (e *Engine) filterRelevant(ctx context.Context, question string, candidates []store.ChunkMatch) []RelevantChunk {
	kept := make([]RelevantChunk, 0, len(candidates))
	for _, c := range candidates {
		var out struct {
			Relevant    bool   `json:"relevant"`
			Explanation string `json:"explanation"`
		}
		prompt := fmt.Sprintf("Question: %s\n\nPassage:\n%s\n\nDoes the passage help answer the question?", question, c.Text)
		if err := e.llm.GenerateStructured(ctx, relevanceSystemPrompt, prompt, relevanceSchema, &out); err != nil {
			e.logger.Warn("relevance assessment failed, keeping chunk",
				"chunk_id", c.ID, "error", err)
			kept = append(kept, RelevantChunk{ChunkMatch: c, Explanation: relevanceUnavailable})
			continue
		}
		if out.Relevant {
			kept = append(kept, RelevantChunk{ChunkMatch: c, Explanation: out.Explanation})
		}
	}
	return kept
}

// synthesize makes the single answer-generation call over the kept chunks.
func (e *Engine) synthesize(ctx context.Context, question string, kept []RelevantChunk) (string, error) {
	var b strings.Builder
	for i, c := range kept {
		fmt.Fprintf(&b, "Passage %d:\n%s\n\n", i+1, c.Text)
	}
	prompt := fmt.Sprintf("%sQuestion: %s", b.String(), question)

	answer, err := e.llm.Generate(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
