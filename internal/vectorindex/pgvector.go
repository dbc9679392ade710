package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
)

// PGVector is a VectorIndex backed by Postgres + pgvector, used for the
// curated and persistent web-KB tiers.
type PGVector struct {
	pool *pgxpool.Pool
}

func NewPGVector(pool *pgxpool.Pool) *PGVector { return &PGVector{pool: pool} }

var _ VectorIndex = (*PGVector)(nil)

func (p *PGVector) Upsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, c := range chunks {
		embedding := pgvector.NewVector(c.Embedding)
		meta := c.Metadata
		if meta == nil {
			meta = json.RawMessage("{}")
		}
		batch.Queue(`
			INSERT INTO vector_chunks (id, tier, document_id, content, embedding, token_count,
				parent_doc_size, source_url, document_type, folder_id, is_privileged, metadata,
				expires_at, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			c.ID, string(c.Tier), c.DocumentID, c.Content, embedding, c.TokenCount,
			c.ParentDocSize, c.SourceURL, c.DocumentType, c.FolderID, c.IsPrivileged, meta,
			c.ExpiresAt, now,
		)
	}
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return errs.IndexUnavailable("vectorindex.PGVector.Upsert", fmt.Errorf("chunk %d: %w", i, err))
		}
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, queryVec []float32, topK int, filter Filter) ([]model.VectorRecord, error) {
	embedding := pgvector.NewVector(queryVec)

	query := `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM vector_chunks
		WHERE tier = $2
			AND (expires_at IS NULL OR expires_at > $3)`
	args := []any{embedding, string(filter.Tier), filter.now()}

	if filter.DocumentType != nil {
		args = append(args, *filter.DocumentType)
		query += fmt.Sprintf(" AND document_type = $%d", len(args))
	}
	if filter.FolderID != nil {
		args = append(args, *filter.FolderID)
		query += fmt.Sprintf(" AND folder_id = $%d", len(args))
	}
	if filter.ExcludePrivileged {
		query += " AND is_privileged = false"
	}
	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	slog.Info("[VECTORINDEX] search", "tier", filter.Tier, "top_k", topK)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.IndexUnavailable("vectorindex.PGVector.Search", err)
	}
	defer rows.Close()

	var out []model.VectorRecord
	for rows.Next() {
		var r model.VectorRecord
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, errs.IndexUnavailable("vectorindex.PGVector.Search", fmt.Errorf("scan: %w", err))
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *PGVector) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM vector_chunks WHERE id = ANY($1)`, chunkIDs)
	if err != nil {
		return errs.IndexUnavailable("vectorindex.PGVector.Delete", err)
	}
	return nil
}
