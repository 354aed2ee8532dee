package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. Called by Load immediately
// after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	if err := validateHTTPURL(c.OllamaHost); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOllamaHost, err)
	}
	if c.ReadabilityURL != "" {
		if err := validateHTTPURL(c.ReadabilityURL); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReadabilityURL, err)
		}
	}

	if strings.TrimSpace(c.GenerationModel) == "" {
		return fmt.Errorf("%w: generation_model must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("%w: embedding_model must not be empty", ErrInvalidModelName)
	}

	if strings.TrimSpace(c.StaticRoot) == "" {
		return fmt.Errorf("%w: static_root must not be empty", ErrInvalidStaticRoot)
	}

	if c.IngestionInterval <= 0 {
		return fmt.Errorf("%w: ingestion_interval must be positive, got %s", ErrInvalidInterval, c.IngestionInterval)
	}
	if c.EnrichmentInterval <= 0 {
		return fmt.Errorf("%w: enrichment_interval must be positive, got %s", ErrInvalidInterval, c.EnrichmentInterval)
	}
	if c.TaskLeaseWindow <= 0 {
		return fmt.Errorf("%w: task_lease_window must be positive, got %s", ErrInvalidInterval, c.TaskLeaseWindow)
	}
	if c.DequeueBatchSize < 1 {
		return fmt.Errorf("%w: dequeue_batch_size must be at least 1, got %d", ErrInvalidInterval, c.DequeueBatchSize)
	}
	if c.EnrichmentBatchSize < 1 {
		return fmt.Errorf("%w: enrichment_batch_size must be at least 1, got %d", ErrInvalidInterval, c.EnrichmentBatchSize)
	}
	if c.TaskRetryCeiling < 1 {
		return fmt.Errorf("%w: task_retry_ceiling must be at least 1, got %d", ErrInvalidRetryCeiling, c.TaskRetryCeiling)
	}

	if c.RagMaxChunks < 1 {
		return fmt.Errorf("%w: rag_max_chunks must be at least 1, got %d", ErrInvalidRagLimits, c.RagMaxChunks)
	}
	if c.RagSimilarityThreshold < 0 || c.RagSimilarityThreshold > 1 {
		return fmt.Errorf("%w: rag_similarity_threshold %f out of range [0, 1]", ErrInvalidRagLimits, c.RagSimilarityThreshold)
	}

	return nil
}

// validateHTTPURL checks that s is an absolute http or https URL.
func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("parse %q: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q in %q", u.Scheme, s)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", s)
	}
	return nil
}
