package quality

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// MetricsSink receives each computed metric, decoupling the evaluator from
// whatever telemetry backend is wired in cmd/server.
type MetricsSink interface {
	Observe(name string, value float64, tags map[string]string)
}

// GroundTruth carries the optional relevant-chunk judgment set a caller may
// supply for a query; IR metrics are only computed when present.
type GroundTruth struct {
	RelevantChunkIDs map[string]bool
}

// IRMetrics holds the ranking-quality metrics computed only against a
// ground-truth relevant set.
type IRMetrics struct {
	PrecisionAtK float64
	RecallAtK    float64
	MRR          float64
	MAP          float64
	NDCGAtK      float64
}

// Config tunes evaluation thresholds.
type Config struct {
	RelevanceThreshold        float64 // chunk relevance floor for context_precision, default 0.5
	ClaimSupportThreshold     float64 // Jaccard floor for faithfulness, default 0.3
	UtilizationJaccardThreshold float64 // Jaccard floor for context_utilization, default 0.1
}

func (c Config) withDefaults() Config {
	if c.RelevanceThreshold == 0 {
		c.RelevanceThreshold = 0.5
	}
	if c.ClaimSupportThreshold == 0 {
		c.ClaimSupportThreshold = 0.3
	}
	if c.UtilizationJaccardThreshold == 0 {
		c.UtilizationJaccardThreshold = 0.1
	}
	return c
}

// Evaluator is the C10 quality evaluator.
type Evaluator struct {
	sink MetricsSink
	cfg  Config
}

func New(sink MetricsSink, cfg Config) *Evaluator {
	return &Evaluator{sink: sink, cfg: cfg.withDefaults()}
}

// EvaluateQuick runs Evaluate with no ground truth, for callers (the query
// coordinator) that only need the scores and not the IR metric block.
func (e *Evaluator) EvaluateQuick(query, answerText string, chunks []model.RetrievedChunk) model.QualityScores {
	scores, _, _ := e.Evaluate(query, answerText, chunks, nil)
	return scores
}

// Evaluate computes the full named metric set for a single answer. groundTruth
// may be nil, in which case context_recall and the IR metric block are
// omitted (contextRecallAvailable=false, ir=nil).
func (e *Evaluator) Evaluate(query, answerText string, chunks []model.RetrievedChunk, groundTruth *GroundTruth) (scores model.QualityScores, contextRecallAvailable bool, ir *IRMetrics) {
	claims := splitSentences(answerText)
	unionChunks := unionTokenSets(chunks)

	supported := 0
	var unsupportedClaims []string
	for _, claim := range claims {
		if jaccard(tokenSet(claim), unionChunks) >= e.cfg.ClaimSupportThreshold {
			supported++
		} else {
			unsupportedClaims = append(unsupportedClaims, claim)
		}
	}

	faithfulness := 1.0
	if len(claims) > 0 {
		faithfulness = float64(supported) / float64(len(claims))
	}

	scores.Faithfulness = faithfulness
	scores.HallucinationSeverity = severityFor(faithfulness)
	scores.AnswerRelevancy = jaccard(tokenSet(query), tokenSet(answerText))
	scores.AnswerCompleteness = completeness(query, answerText)
	scores.CitationGrounding = citationGrounding(answerText, len(chunks))
	scores.ContextPrecision = contextPrecision(chunks, e.cfg.RelevanceThreshold)
	scores.ContextRelevancy = contextRelevancy(chunks)
	scores.ContextUtilization = contextUtilization(chunks, answerText, e.cfg.UtilizationJaccardThreshold)

	if groundTruth != nil && len(groundTruth.RelevantChunkIDs) > 0 {
		scores.ContextRecall = contextRecall(chunks, groundTruth)
		contextRecallAvailable = true
		ir = computeIRMetrics(chunks, groundTruth)
	}

	e.emit(scores, contextRecallAvailable)
	if scores.HallucinationSeverity == "moderate" || scores.HallucinationSeverity == "severe" {
		slog.Warn("[QUALITY] hallucination detected", "query", query, "severity", scores.HallucinationSeverity, "unsupported_claims", unsupportedClaims)
	}

	return scores, contextRecallAvailable, ir
}

func (e *Evaluator) emit(s model.QualityScores, contextRecallAvailable bool) {
	if e.sink == nil {
		return
	}
	tags := map[string]string{"severity": s.HallucinationSeverity}
	e.sink.Observe("quality.faithfulness", s.Faithfulness, tags)
	e.sink.Observe("quality.answer_relevancy", s.AnswerRelevancy, tags)
	e.sink.Observe("quality.answer_completeness", s.AnswerCompleteness, tags)
	e.sink.Observe("quality.citation_grounding", s.CitationGrounding, tags)
	e.sink.Observe("quality.context_precision", s.ContextPrecision, tags)
	e.sink.Observe("quality.context_relevancy", s.ContextRelevancy, tags)
	e.sink.Observe("quality.context_utilization", s.ContextUtilization, tags)
	if contextRecallAvailable {
		e.sink.Observe("quality.context_recall", s.ContextRecall, tags)
	}
}

func severityFor(faithfulness float64) string {
	switch {
	case faithfulness >= 1.0:
		return "none"
	case faithfulness >= 0.7:
		return "minor"
	case faithfulness >= 0.4:
		return "moderate"
	default:
		return "severe"
	}
}

func completeness(query, answer string) float64 {
	words := contentWords(query)
	if len(words) == 0 {
		return 1.0
	}
	answerSet := tokenSet(answer)
	found := 0
	for _, w := range words {
		if answerSet[w] {
			found++
		}
	}
	return float64(found) / float64(len(words))
}

var citationRefRe = regexp.MustCompile(`\[(\d+)\]`)

func citationGrounding(answerText string, numChunks int) float64 {
	matches := citationRefRe.FindAllStringSubmatch(answerText, -1)
	if len(matches) == 0 {
		return 1.0
	}
	inRange := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= numChunks {
			inRange++
		}
	}
	return float64(inRange) / float64(len(matches))
}

func contextPrecision(chunks []model.RetrievedChunk, threshold float64) float64 {
	if len(chunks) == 0 {
		return 0
	}
	above := 0
	for _, c := range chunks {
		if c.Score >= threshold {
			above++
		}
	}
	return float64(above) / float64(len(chunks))
}

func contextRelevancy(chunks []model.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}

func contextUtilization(chunks []model.RetrievedChunk, answerText string, threshold float64) float64 {
	if len(chunks) == 0 {
		return 0
	}
	answerTokens := tokenSet(answerText)
	used := 0
	for _, c := range chunks {
		if jaccard(tokenSet(c.Chunk.Content), answerTokens) >= threshold {
			used++
		}
	}
	return float64(used) / float64(len(chunks))
}

func contextRecall(chunks []model.RetrievedChunk, gt *GroundTruth) float64 {
	if len(gt.RelevantChunkIDs) == 0 {
		return 0
	}
	retrieved := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		retrieved[c.Chunk.ID] = true
	}
	found := 0
	for id := range gt.RelevantChunkIDs {
		if retrieved[id] {
			found++
		}
	}
	return float64(found) / float64(len(gt.RelevantChunkIDs))
}

func unionTokenSets(chunks []model.RetrievedChunk) map[string]bool {
	union := make(map[string]bool)
	for _, c := range chunks {
		for t := range tokenSet(c.Chunk.Content) {
			union[t] = true
		}
	}
	return union
}

// computeIRMetrics treats chunks as already rank-ordered (by prior retrieval
// ordinal) and scores against a binary relevance judgment.
func computeIRMetrics(chunks []model.RetrievedChunk, gt *GroundTruth) *IRMetrics {
	k := len(chunks)
	if k == 0 {
		return &IRMetrics{}
	}

	relevantTotal := len(gt.RelevantChunkIDs)
	relevantRetrieved := 0
	mrr := 0.0
	var apSum float64
	dcg := 0.0

	for i, c := range chunks {
		rank := i + 1
		isRelevant := gt.RelevantChunkIDs[c.Chunk.ID]
		if isRelevant {
			relevantRetrieved++
			if mrr == 0 {
				mrr = 1.0 / float64(rank)
			}
			apSum += float64(relevantRetrieved) / float64(rank)
			dcg += 1.0 / math.Log2(float64(rank)+1)
		}
	}

	precisionAtK := float64(relevantRetrieved) / float64(k)
	recallAtK := 0.0
	if relevantTotal > 0 {
		recallAtK = float64(relevantRetrieved) / float64(relevantTotal)
	}
	mapScore := 0.0
	if relevantRetrieved > 0 {
		mapScore = apSum / float64(relevantRetrieved)
	}

	idealHits := relevantTotal
	if idealHits > k {
		idealHits = k
	}
	idcg := 0.0
	for i := 0; i < idealHits; i++ {
		idcg += 1.0 / math.Log2(float64(i+2))
	}
	ndcg := 0.0
	if idcg > 0 {
		ndcg = dcg / idcg
	}

	return &IRMetrics{
		PrecisionAtK: precisionAtK,
		RecallAtK:    recallAtK,
		MRR:          mrr,
		MAP:          mapScore,
		NDCGAtK:      ndcg,
	}
}
