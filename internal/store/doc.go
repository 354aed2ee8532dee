// Package store implements the durable state of the ingestion pipeline on
// PostgreSQL: the bookmark_task queue (lease-based, at-least-once), bookmark
// rows with their extracted text, embedded chunks (pgvector), and RAG
// sessions.
//
// The database is the only coordination point between workers. TaskStore's
// Dequeue is the single mutual-exclusion primitive in the system; everything
// else relies on idempotent writes.
package store
