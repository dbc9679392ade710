package model

import (
	"encoding/json"
	"time"
)

// Tier identifies one of the three retrieval tiers the orchestrator fans out to.
type Tier string

const (
	TierCurated Tier = "curated"
	TierWebKB   Tier = "web_kb"
	TierLiveWeb Tier = "live_web"
)

// Chunk is a unit of retrievable text belonging to one of the curated or
// web-KB tiers, addressable by a vector index and a text index alike.
type Chunk struct {
	ID              string          `json:"id"`
	Tier            Tier            `json:"tier"`
	DocumentID      string          `json:"documentId"`
	Content         string          `json:"content"`
	Embedding       []float32       `json:"-"`
	TokenCount      int             `json:"tokenCount"`
	ParentDocSize   int             `json:"parentDocSize,omitempty"`
	SourceURL       *string         `json:"sourceUrl,omitempty"`
	DocumentType    *string         `json:"documentType,omitempty"`
	FolderID        *string         `json:"folderId,omitempty"`
	IsPrivileged    bool            `json:"isPrivileged"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	ExpiresAt       *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// VectorRecord is what a VectorIndex stores and returns: a chunk id, its
// embedding, and the similarity score computed against a query vector.
type VectorRecord struct {
	ChunkID string
	Vector  []float32
	Score   float64
}

// TextRecord is what a TextIndex stores and returns: a chunk id and a BM25 /
// ts_rank-style keyword score.
type TextRecord struct {
	ChunkID string
	Score   float64
}

// UserContext carries the request-scoped filters spec §6.1 allows on a query.
type UserContext struct {
	DocumentType      *string `json:"document_type,omitempty"`
	TierOrigin        *Tier   `json:"tier_origin,omitempty"`
	FolderID          *string `json:"folder_id,omitempty"`
	ExcludePrivileged bool    `json:"exclude_privileged,omitempty"`
}

// RetrievedChunk is a chunk plus the retrieval score/provenance it was
// surfaced with, the unit both the orchestrator and the answer generator work on.
type RetrievedChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Tier       Tier    `json:"tier"`
	Score      float64 `json:"score"`
	VectorRank int     `json:"vectorRank,omitempty"`
	TextRank   int     `json:"textRank,omitempty"`
	Ordinal    int     `json:"ordinal"`
}

// WebSearchResult is a single snippet hit from a live web search provider.
type WebSearchResult struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Domain    string  `json:"domain"`
	TrustScore float64 `json:"trustScore"`
}

// WebDocument is the extracted full text of a web search result, ready to be
// chunked and promoted into the web-KB tier.
type WebDocument struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Domain      string    `json:"domain"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

// CalibrationMatrix maps a premium embedder's vector space onto the local
// embedder's space so rescoring can compare premium query vectors against
// locally-embedded chunk vectors.
type CalibrationMatrix struct {
	PremiumName string      `json:"premiumName"`
	LocalDim    int         `json:"localDim"`
	PremiumDim  int         `json:"premiumDim"`
	Weights     [][]float64 `json:"weights"` // premiumDim x localDim
	Bias        []float64   `json:"bias"`     // localDim
	FittedAt    time.Time   `json:"fittedAt"`
	SampleCount int         `json:"sampleCount"`
}

// CacheEntry is a semantic-cache row: a past query's embedding and the
// answer produced for it, retrievable by cosine similarity.
type CacheEntry struct {
	Key          string    `json:"key"`
	Query        string    `json:"query"`
	QueryVector  []float32 `json:"queryVector"`
	Answer       AnswerResult `json:"answer"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// DecisionStep records one stage of the pipeline for observability/debugging,
// mirroring spec §6.1's decision_path field.
type DecisionStep struct {
	Stage   string `json:"stage"`
	Detail  string `json:"detail,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
}

// Citation references the retrieved chunk an answer sentence/claim draws on.
type Citation struct {
	Ordinal int    `json:"ordinal"`
	ChunkID string `json:"chunkId"`
	Snippet string `json:"snippet,omitempty"`
}

// QualityScores is the full metric set C10 computes over an answer.
type QualityScores struct {
	Faithfulness            float64 `json:"faithfulness"`
	HallucinationSeverity   string  `json:"hallucinationSeverity"` // none|minor|moderate|severe
	AnswerRelevancy         float64 `json:"answerRelevancy"`
	AnswerCompleteness      float64 `json:"answerCompleteness"`
	CitationGrounding       float64 `json:"citationGrounding"`
	ContextPrecision        float64 `json:"contextPrecision"`
	ContextRecall           float64 `json:"contextRecall"`
	ContextRelevancy        float64 `json:"contextRelevancy"`
	ContextUtilization      float64 `json:"contextUtilization"`
}

// AnswerResult is the final assembled output of the query coordinator.
type AnswerResult struct {
	Answer        string         `json:"answer"`
	Citations     []Citation     `json:"citations"`
	Quality       QualityScores  `json:"quality"`
	TiersUsed     []Tier         `json:"tiersUsed"`
	DecisionPath  []DecisionStep `json:"decisionPath"`
	CacheHit      bool           `json:"cacheHit"`
	Confidence    float64        `json:"confidence"`
	GeneratedAt   time.Time      `json:"generatedAt"`
}
