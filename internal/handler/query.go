package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/orchestrator"
	"github.com/ragcore/retrieval-engine/internal/query"
)

// QueryCoordinator is the capability the query handler needs from
// *query.Coordinator, kept as a narrow interface for testability.
type QueryCoordinator interface {
	Query(ctx context.Context, req query.Request) (*model.AnswerResult, error)
}

// queryWireRequest is the JSON shape spec §6.1 defines for the query endpoint.
type queryWireRequest struct {
	Query             string             `json:"query"`
	TopK              int                `json:"top_k"`
	UseCache          *bool              `json:"use_cache"`
	QueryEmbedderType *string            `json:"query_embedder_type"`
	UserContext       *userContextWire   `json:"user_context"`
	EnableWebSearch   bool               `json:"enable_web_search"`
	WebMode           string             `json:"web_mode"`
}

type userContextWire struct {
	DocumentType      *string `json:"document_type"`
	TierOrigin        *string `json:"tier_origin"`
	FolderID          *string `json:"folder_id"`
	ExcludePrivileged bool    `json:"exclude_privileged"`
}

// UnmarshalJSON rejects user_context keys other than the four fields above.
func (u *userContextWire) UnmarshalJSON(data []byte) error {
	type plain userContextWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode((*plain)(u))
}

type sourceWire struct {
	DocumentID   string   `json:"document_id"`
	SourcePath   string   `json:"source_path"`
	DocumentType string   `json:"document_type,omitempty"`
	Score        float64  `json:"score"`
	SourceType   string   `json:"source_type"`
	URL          *string  `json:"url,omitempty"`
	TrustScore   *float64 `json:"trust_score,omitempty"`
	Title        string   `json:"title,omitempty"`
	ChunkText    string   `json:"chunk_text"`
}

type retrievalStatsWire struct {
	Tier1Results int  `json:"tier_1_results"`
	Tier2Results int  `json:"tier_2_results"`
	Tier3Results int  `json:"tier_3_results"`
	CacheHit     bool `json:"cache_hit"`
}

type retrievalMetricsWire struct {
	Documents        int                   `json:"documents"`
	TierBreakdown    map[string]int        `json:"tier_breakdown"`
	DecisionPath     []model.DecisionStep  `json:"decision_path"`
	SearchParameters map[string]interface{} `json:"search_parameters"`
}

type generationReasoningWire struct {
	ContextSelection string `json:"context_selection"`
	DocumentRanking  string `json:"document_ranking"`
	PromptStructure  string `json:"prompt_structure"`
	CitationsFound   int    `json:"citations_found"`
	ModelUsed        string `json:"model_used"`
}

type qualityMetricsWire struct {
	Answer  model.QualityScores `json:"answer"`
	Context map[string]float64  `json:"context"`
}

type queryWireResponse struct {
	Answer             string                   `json:"answer"`
	Sources            []sourceWire             `json:"sources"`
	CacheHit           bool                     `json:"cache_hit"`
	RetrievedDocs      int                      `json:"retrieved_docs"`
	ContextDocsUsed    int                      `json:"context_docs_used"`
	RetrievalStats     *retrievalStatsWire      `json:"retrieval_stats,omitempty"`
	RetrievalMetrics   *retrievalMetricsWire    `json:"retrieval_metrics,omitempty"`
	GenerationReasoning *generationReasoningWire `json:"generation_reasoning,omitempty"`
	QualityMetrics     *qualityMetricsWire      `json:"quality_metrics,omitempty"`
}

// Query returns the C12 query endpoint handler: POST /v1/query. Unlike the
// teacher's chat.go, this is plain request/response JSON (spec §6.1), not
// SSE — the pipeline here produces one assembled answer per call rather than
// a token stream.
func Query(coordinator QueryCoordinator, modelUsed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wire queryWireRequest
		if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req := query.Request{
			Query:           wire.Query,
			TopK:            wire.TopK,
			UseCache:        wire.UseCache == nil || *wire.UseCache,
			EnableWebSearch: wire.EnableWebSearch,
			WebMode:         orchestrator.TriggerOnLowConfidence,
		}
		if wire.QueryEmbedderType != nil {
			req.PremiumName = *wire.QueryEmbedderType
		}
		if wire.WebMode == string(orchestrator.TriggerParallel) {
			req.WebMode = orchestrator.TriggerParallel
		}
		if wire.UserContext != nil {
			req.UserContext = model.UserContext{
				DocumentType:      wire.UserContext.DocumentType,
				FolderID:          wire.UserContext.FolderID,
				ExcludePrivileged: wire.UserContext.ExcludePrivileged,
			}
			if wire.UserContext.TierOrigin != nil {
				tier := model.Tier(*wire.UserContext.TierOrigin)
				req.UserContext.TierOrigin = &tier
			}
		}

		result, err := coordinator.Query(r.Context(), req)
		if err != nil {
			writeQueryError(w, err)
			return
		}

		resp := buildQueryResponse(result, modelUsed)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		respondError(w, http.StatusBadRequest, err.Error())
	case errs.KindRateLimited:
		respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "query failed")
	}
}

func buildQueryResponse(result *model.AnswerResult, modelUsed string) queryWireResponse {
	sources := make([]sourceWire, 0, len(result.Citations))
	tierBreakdown := map[string]int{}
	for _, t := range result.TiersUsed {
		tierBreakdown[string(t)]++
	}

	for _, c := range result.Citations {
		sources = append(sources, sourceWire{
			DocumentID: c.ChunkID,
			SourcePath: c.ChunkID,
			Score:      0,
			SourceType: "retrieved",
			ChunkText:  c.Snippet,
		})
	}

	return queryWireResponse{
		Answer:          result.Answer,
		Sources:         sources,
		CacheHit:        result.CacheHit,
		RetrievedDocs:   len(result.Citations),
		ContextDocsUsed: len(result.Citations),
		RetrievalStats: &retrievalStatsWire{
			Tier1Results: tierBreakdown[string(model.TierCurated)],
			Tier2Results: tierBreakdown[string(model.TierWebKB)],
			Tier3Results: tierBreakdown[string(model.TierLiveWeb)],
			CacheHit:     result.CacheHit,
		},
		RetrievalMetrics: &retrievalMetricsWire{
			Documents:     len(result.Citations),
			TierBreakdown: tierBreakdown,
			DecisionPath:  result.DecisionPath,
			SearchParameters: map[string]interface{}{
				"confidence": result.Confidence,
			},
		},
		GenerationReasoning: &generationReasoningWire{
			ContextSelection: "top-ranked fused chunks within the context budget",
			DocumentRanking:  "weighted reciprocal rank fusion across tiers",
			PromptStructure:  "grounding system prompt + numbered context chunks + query",
			CitationsFound:   len(result.Citations),
			ModelUsed:        modelUsed,
		},
		QualityMetrics: &qualityMetricsWire{
			Answer: result.Quality,
			Context: map[string]float64{
				"precision":   result.Quality.ContextPrecision,
				"recall":      result.Quality.ContextRecall,
				"relevancy":   result.Quality.ContextRelevancy,
				"utilization": result.Quality.ContextUtilization,
			},
		},
	}
}
