package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fparisotto/bookmark-hub-sub000/internal/text"
)

// Generator is the text-generation slice of the LLM client.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	GenerateStructured(ctx context.Context, system, prompt string, schema map[string]any, out any) error
}

// Embedder is the embedding slice of the LLM client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// runPollLoop is the shared enrichment loop: wake on the periodic tick or on
// a signal, run one pass, repeat until ctx is canceled. A pass never returns
// an error; failures are logged per bookmark and the bookmark stays in the
// missing set for the next pass. Enrichment retries are open-ended.
func runPollLoop(ctx context.Context, name string, interval time.Duration,
	wake *Signal, logger *slog.Logger, pass func(ctx context.Context)) {
	logger.Info("enrichment worker started", "worker", name, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("enrichment worker stopped", "worker", name)
			return
		case <-ticker.C:
		case <-wake.Wait():
		}
		pass(ctx)
	}
}

// enrichable reports whether a text is worth sending to the model.
func enrichable(content string) bool {
	return text.ApproxTokens(content) >= text.MinTextTokens
}
