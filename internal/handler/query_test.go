package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragcore/retrieval-engine/internal/errs"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/query"
)

type stubCoordinator struct {
	result *model.AnswerResult
	err    error
	gotReq query.Request
}

func (s *stubCoordinator) Query(ctx context.Context, req query.Request) (*model.AnswerResult, error) {
	s.gotReq = req
	return s.result, s.err
}

func TestQueryHandler_Success(t *testing.T) {
	stub := &stubCoordinator{result: &model.AnswerResult{
		Answer:    "Q3 revenue grew 12% year over year.",
		Citations: []model.Citation{{Ordinal: 1, ChunkID: "chunk-1", Snippet: "revenue grew 12%"}},
		TiersUsed: []model.Tier{model.TierCurated},
		Quality:   model.QualityScores{Faithfulness: 0.9},
	}}

	handler := Query(stub, "gemini-2.0-flash")

	body, _ := json.Marshal(map[string]any{"query": "how did revenue grow?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if stub.gotReq.Query != "how did revenue grow?" {
		t.Errorf("coordinator got query %q", stub.gotReq.Query)
	}
	if !stub.gotReq.UseCache {
		t.Error("expected UseCache to default true")
	}

	var resp queryWireResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != stub.result.Answer {
		t.Errorf("answer = %q, want %q", resp.Answer, stub.result.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(resp.Sources))
	}
	if resp.RetrievalStats.Tier1Results != 1 {
		t.Errorf("tier_1_results = %d, want 1", resp.RetrievalStats.Tier1Results)
	}
}

func TestQueryHandler_UseCacheFalseHonored(t *testing.T) {
	stub := &stubCoordinator{result: &model.AnswerResult{}}
	handler := Query(stub, "gemini-2.0-flash")

	body, _ := json.Marshal(map[string]any{"query": "x", "use_cache": false})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if stub.gotReq.UseCache {
		t.Error("expected UseCache false when explicitly set")
	}
}

func TestQueryHandler_InvalidBody(t *testing.T) {
	handler := Query(&stubCoordinator{}, "gemini-2.0-flash")

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryHandler_ValidationErrorMaps400(t *testing.T) {
	stub := &stubCoordinator{err: errs.Validation("query.Query", context.DeadlineExceeded)}
	handler := Query(stub, "gemini-2.0-flash")

	body, _ := json.Marshal(map[string]any{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryHandler_RateLimitedMaps429(t *testing.T) {
	stub := &stubCoordinator{err: errs.RateLimited("websearch.Hybrid.Search", context.DeadlineExceeded)}
	handler := Query(stub, "gemini-2.0-flash")

	body, _ := json.Marshal(map[string]any{"query": "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestQueryHandler_GenericErrorMaps500(t *testing.T) {
	stub := &stubCoordinator{err: errs.IndexUnavailable("vectorindex.PGVector.Search", context.DeadlineExceeded)}
	handler := Query(stub, "gemini-2.0-flash")

	body, _ := json.Marshal(map[string]any{"query": "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
