package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
)

// PGChunkFetcher resolves chunk ids returned by a VectorIndex/TextIndex
// search into full chunks, reading from the same vector_chunks table
// PGVector writes to.
type PGChunkFetcher struct {
	pool *pgxpool.Pool
}

func NewPGChunkFetcher(pool *pgxpool.Pool) *PGChunkFetcher {
	return &PGChunkFetcher{pool: pool}
}

func (f *PGChunkFetcher) FetchChunks(ctx context.Context, ids []string) (map[string]model.Chunk, error) {
	if len(ids) == 0 {
		return map[string]model.Chunk{}, nil
	}

	rows, err := f.pool.Query(ctx, `
		SELECT id, tier, document_id, content, token_count, parent_doc_size,
			source_url, document_type, folder_id, is_privileged, metadata,
			expires_at, created_at
		FROM vector_chunks
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errs.IndexUnavailable("vectorindex.PGChunkFetcher.FetchChunks", err)
	}
	defer rows.Close()

	out := make(map[string]model.Chunk, len(ids))
	for rows.Next() {
		var c model.Chunk
		var tier string
		var meta []byte
		if err := rows.Scan(&c.ID, &tier, &c.DocumentID, &c.Content, &c.TokenCount, &c.ParentDocSize,
			&c.SourceURL, &c.DocumentType, &c.FolderID, &c.IsPrivileged, &meta,
			&c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, errs.IndexUnavailable("vectorindex.PGChunkFetcher.FetchChunks", fmt.Errorf("scan: %w", err))
		}
		c.Tier = model.Tier(tier)
		if len(meta) > 0 {
			c.Metadata = json.RawMessage(meta)
		}
		out[c.ID] = c
	}
	return out, nil
}
