package textindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
)

type bleveDoc struct {
	Content           string  `json:"content"`
	Tier              string  `json:"tier"`
	DocumentType      string  `json:"documentType"`
	FolderID          string  `json:"folderId"`
	IsPrivileged      bool    `json:"isPrivileged"`
	ExpiresAtUnix     int64   `json:"expiresAtUnix"`
}

// Bleve is a TextIndex backed by blevesearch/bleve, used for the persistent
// web-KB tier where a real BM25 engine is preferable to emulating one in SQL
// a second time.
type Bleve struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveMemory creates an in-memory bleve index, for tests or an
// all-in-process deployment.
func NewBleveMemory() (*Bleve, error) {
	m := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("textindex.NewBleveMemory: %w", err)
	}
	return &Bleve{index: idx}, nil
}

// NewBleveFile opens or creates a bleve index on disk at path.
func NewBleveFile(path string) (*Bleve, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("textindex.NewBleveFile: %w", err)
	}
	return &Bleve{index: idx}, nil
}

var _ TextIndex = (*Bleve)(nil)

func (b *Bleve) Upsert(ctx context.Context, chunks []model.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := bleveDoc{Content: c.Content, Tier: string(c.Tier), IsPrivileged: c.IsPrivileged}
		if c.DocumentType != nil {
			doc.DocumentType = *c.DocumentType
		}
		if c.FolderID != nil {
			doc.FolderID = *c.FolderID
		}
		if c.ExpiresAt != nil {
			doc.ExpiresAtUnix = c.ExpiresAt.Unix()
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return errs.IndexUnavailable("textindex.Bleve.Upsert", fmt.Errorf("chunk %s: %w", c.ID, err))
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return errs.IndexUnavailable("textindex.Bleve.Upsert", err)
	}
	return nil
}

func (b *Bleve) Search(ctx context.Context, query string, topK int, filter vectorindex.Filter) ([]model.TextRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	tierQuery := bleve.NewTermQuery(string(filter.Tier))
	tierQuery.SetField("tier")

	conj := bleve.NewConjunctionQuery(matchQuery, tierQuery)
	if filter.DocumentType != nil {
		dt := bleve.NewTermQuery(*filter.DocumentType)
		dt.SetField("documentType")
		conj.AddQuery(dt)
	}
	if filter.FolderID != nil {
		fd := bleve.NewTermQuery(*filter.FolderID)
		fd.SetField("folderId")
		conj.AddQuery(fd)
	}
	if filter.ExcludePrivileged {
		priv := bleve.NewBoolFieldQuery(false)
		priv.SetField("isPrivileged")
		conj.AddQuery(priv)
	}

	// Chunks without an expiry are indexed with expiresAtUnix 0; any other
	// value must not lie before the filter's "as of" time.
	zero, asOf := 0.0, float64(filter.NowOrDefault().Unix())
	inclusive := true
	noExpiry := bleve.NewNumericRangeInclusiveQuery(&zero, &zero, &inclusive, &inclusive)
	noExpiry.SetField("expiresAtUnix")
	notExpired := bleve.NewNumericRangeQuery(&asOf, nil)
	notExpired.SetField("expiresAtUnix")
	conj.AddQuery(bleve.NewDisjunctionQuery(noExpiry, notExpired))

	req := bleve.NewSearchRequest(conj)
	req.Size = topK

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errs.IndexUnavailable("textindex.Bleve.Search", err)
	}

	out := make([]model.TextRecord, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, model.TextRecord{ChunkID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (b *Bleve) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return errs.IndexUnavailable("textindex.Bleve.Delete", err)
	}
	return nil
}
