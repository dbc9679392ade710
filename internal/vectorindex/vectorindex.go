// Package vectorindex implements the vector index adapter (C2): a capability
// interface for nearest-neighbor chunk lookup, with a Postgres/pgvector
// implementation for the curated and web-KB tiers and an in-memory HNSW
// implementation for testing or a fully local deployment.
package vectorindex

import (
	"context"
	"time"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// VectorIndex is the capability every tier's vector store must satisfy.
type VectorIndex interface {
	// Upsert stores or replaces chunks and their local-space embeddings.
	Upsert(ctx context.Context, chunks []model.Chunk) error
	// Search returns the topK chunk ids most similar to queryVec by cosine
	// similarity, scoped by the given filters, excluding expired web-KB rows.
	Search(ctx context.Context, queryVec []float32, topK int, filter Filter) ([]model.VectorRecord, error)
	// Delete removes chunks by id.
	Delete(ctx context.Context, chunkIDs []string) error
}

// Filter narrows a search to chunks matching user_context fields (spec §6.1).
type Filter struct {
	Tier              model.Tier
	DocumentType      *string
	FolderID          *string
	ExcludePrivileged bool
	Now               time.Time // for expires_at filtering; zero means time.Now()
}

func (f Filter) now() time.Time { return f.NowOrDefault() }

// NowOrDefault returns Now if set, otherwise the current time. Exported so
// other adapters (e.g. textindex) building their own SQL can reuse the same
// "as of" timestamp semantics as the vector index filter.
func (f Filter) NowOrDefault() time.Time {
	if f.Now.IsZero() {
		return time.Now().UTC()
	}
	return f.Now
}
