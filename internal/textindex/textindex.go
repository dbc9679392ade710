// Package textindex implements the text index adapter (C3): a capability
// interface for keyword/BM25 chunk lookup, with a Postgres tsvector
// implementation for the curated tier and a bleve implementation for the
// persistent web-KB tier.
package textindex

import (
	"context"

	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// TextIndex is the capability every tier's keyword store must satisfy.
type TextIndex interface {
	Upsert(ctx context.Context, chunks []model.Chunk) error
	Search(ctx context.Context, query string, topK int, filter vectorindex.Filter) ([]model.TextRecord, error)
	Delete(ctx context.Context, chunkIDs []string) error
}
