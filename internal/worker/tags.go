package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fparisotto/bookmark-hub-sub000/internal/store"
	"github.com/fparisotto/bookmark-hub-sub000/internal/text"
)

// maxTags caps the consolidated tag set per bookmark.
const maxTags = 5

const tagSystemPrompt = `You extract topic tags from article text.
Tags are short lowercase noun phrases, one to three words.
Return only tags clearly supported by the text.`

var tagSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"tags"},
}

// TagStore is the slice of the bookmark store the tag worker needs.
type TagStore interface {
	ListMissingTags(ctx context.Context, limit int) ([]*store.Bookmark, error)
	GetContent(ctx context.Context, userID uuid.UUID, bookmarkID string) (string, error)
	UpdateTags(ctx context.Context, userID uuid.UUID, bookmarkID string, tags []string) error
}

// Tagger fills in tags for bookmarks that have none. Each window of the text
// gets its own extraction call; the union is consolidated down to maxTags.
type Tagger struct {
	store     TagStore
	llm       Generator
	chunker   *text.Chunker
	wake      *Signal
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewTagger creates the tag worker.
func NewTagger(tagStore TagStore, llm Generator, chunker *text.Chunker,
	wake *Signal, interval time.Duration, batchSize int, logger *slog.Logger) (*Tagger, error) {
	if tagStore == nil || llm == nil || chunker == nil || wake == nil {
		return nil, fmt.Errorf("store, llm, chunker and wake signal are required")
	}
	if interval <= 0 || batchSize < 1 {
		return nil, fmt.Errorf("invalid interval %s or batch size %d", interval, batchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tagger{
		store:     tagStore,
		llm:       llm,
		chunker:   chunker,
		wake:      wake,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run loops until ctx is canceled.
func (w *Tagger) Run(ctx context.Context) {
	runPollLoop(ctx, "tags", w.interval, w.wake, w.logger, w.pass)
}

func (w *Tagger) pass(ctx context.Context) {
	bookmarks, err := w.store.ListMissingTags(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("listing bookmarks missing tags failed", "error", err)
		return
	}
	for _, b := range bookmarks {
		if ctx.Err() != nil {
			return
		}
		if err := w.enrich(ctx, b); err != nil {
			w.logger.Warn("tag enrichment failed, will retry",
				"bookmark_id", b.ID, "user_id", b.UserID, "error", err)
		}
	}
}

func (w *Tagger) enrich(ctx context.Context, b *store.Bookmark) error {
	content, err := w.store.GetContent(ctx, b.UserID, b.ID)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	if !enrichable(content) {
		// Too short to tag; write the empty set so it leaves the missing set.
		return w.store.UpdateTags(ctx, b.UserID, b.ID, []string{})
	}

	seen := make(map[string]struct{})
	for _, window := range w.chunker.Split(content) {
		var out struct {
			Tags []string `json:"tags"`
		}
		prompt := "Extract topic tags from this text:\n\n" + window.Text
		if err := w.llm.GenerateStructured(ctx, tagSystemPrompt, prompt, tagSchema, &out); err != nil {
			return fmt.Errorf("extracting tags from window %d: %w", window.Index, err)
		}
		for _, tag := range out.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}

	candidates := make([]string, 0, len(seen))
	for tag := range seen {
		candidates = append(candidates, tag)
	}
	sort.Strings(candidates)

	tags, err := w.consolidate(ctx, b.Title, candidates)
	if err != nil {
		return err
	}

	if err := w.store.UpdateTags(ctx, b.UserID, b.ID, tags); err != nil {
		return fmt.Errorf("storing tags: %w", err)
	}
	w.logger.Info("bookmark tagged", "bookmark_id", b.ID, "user_id", b.UserID, "tags", tags)
	return nil
}

// consolidate reduces the per-window union to the best maxTags for the whole
// document. Small unions pass through without another model call.
func (w *Tagger) consolidate(ctx context.Context, title string, candidates []string) ([]string, error) {
	if len(candidates) <= maxTags {
		return candidates, nil
	}

	var out struct {
		Tags []string `json:"tags"`
	}
	prompt := fmt.Sprintf("The article is titled %q. From these candidate tags, pick the %d that best describe the whole article:\n%s",
		title, maxTags, strings.Join(candidates, ", "))
	if err := w.llm.GenerateStructured(ctx, tagSystemPrompt, prompt, tagSchema, &out); err != nil {
		return nil, fmt.Errorf("consolidating tags: %w", err)
	}

	tags := make([]string, 0, maxTags)
	for _, tag := range out.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	if len(tags) == 0 {
		// Model returned nothing usable; fall back to the head of the union.
		tags = candidates[:maxTags]
	}
	return tags, nil
}
