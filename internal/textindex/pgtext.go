package textindex

import (
	"fmt"
	"log/slog"

	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

// PGText is a TextIndex backed by Postgres tsvector/ts_rank_cd, used for the
// curated tier.
type PGText struct {
	pool *pgxpool.Pool
}

func NewPGText(pool *pgxpool.Pool) *PGText { return &PGText{pool: pool} }

var _ TextIndex = (*PGText)(nil)

func (p *PGText) Upsert(ctx context.Context, chunks []model.Chunk) error {
	for _, c := range chunks {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO text_chunks (id, tier, document_id, content, content_tsv, document_type, folder_id, is_privileged, expires_at)
			VALUES ($1, $2, $3, $4, to_tsvector('english', $4), $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, content_tsv = EXCLUDED.content_tsv`,
			c.ID, string(c.Tier), c.DocumentID, c.Content, c.DocumentType, c.FolderID, c.IsPrivileged, c.ExpiresAt,
		)
		if err != nil {
			return errs.IndexUnavailable("textindex.PGText.Upsert", err)
		}
	}
	return nil
}

func (p *PGText) Search(ctx context.Context, query string, topK int, filter vectorindex.Filter) ([]model.TextRecord, error) {
	sqlQuery := `
		SELECT id, ts_rank_cd(content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM text_chunks
		WHERE tier = $2
			AND (expires_at IS NULL OR expires_at > $3)
			AND content_tsv @@ plainto_tsquery('english', $1)`
	args := []any{query, string(filter.Tier), filter.NowOrDefault()}

	if filter.DocumentType != nil {
		args = append(args, *filter.DocumentType)
		sqlQuery += fmt.Sprintf(" AND document_type = $%d", len(args))
	}
	if filter.FolderID != nil {
		args = append(args, *filter.FolderID)
		sqlQuery += fmt.Sprintf(" AND folder_id = $%d", len(args))
	}
	if filter.ExcludePrivileged {
		sqlQuery += " AND is_privileged = false"
	}
	args = append(args, topK)
	sqlQuery += fmt.Sprintf(" ORDER BY rank DESC LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errs.IndexUnavailable("textindex.PGText.Search", err)
	}
	defer rows.Close()

	var out []model.TextRecord
	for rows.Next() {
		var r model.TextRecord
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, errs.IndexUnavailable("textindex.PGText.Search", fmt.Errorf("scan: %w", err))
		}
		out = append(out, r)
	}
	slog.Info("[TEXTINDEX] pg full-text search complete", "results", len(out), "top_k", topK)
	return out, nil
}

func (p *PGText) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM text_chunks WHERE id = ANY($1)`, chunkIDs)
	if err != nil {
		return errs.IndexUnavailable("textindex.PGText.Delete", err)
	}
	return nil
}
