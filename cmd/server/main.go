package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ragcore/retrieval-engine/internal/answer"
	"github.com/ragcore/retrieval-engine/internal/calibrate"
	"github.com/ragcore/retrieval-engine/internal/config"
	"github.com/ragcore/retrieval-engine/internal/embedregistry"
	"github.com/ragcore/retrieval-engine/internal/handler"
	"github.com/ragcore/retrieval-engine/internal/middleware"
	"github.com/ragcore/retrieval-engine/internal/model"
	"github.com/ragcore/retrieval-engine/internal/orchestrator"
	"github.com/ragcore/retrieval-engine/internal/quality"
	"github.com/ragcore/retrieval-engine/internal/query"
	"github.com/ragcore/retrieval-engine/internal/retrieval"
	"github.com/ragcore/retrieval-engine/internal/router"
	"github.com/ragcore/retrieval-engine/internal/semcache"
	"github.com/ragcore/retrieval-engine/internal/textindex"
	"github.com/ragcore/retrieval-engine/internal/vectorindex"
	"github.com/ragcore/retrieval-engine/internal/websearch"
)

const Version = "0.1.0"

// evaluatorAdapter narrows quality.Evaluator's ground-truth-aware Evaluate
// down to the single-return shape query.Evaluator expects.
type evaluatorAdapter struct{ eval *quality.Evaluator }

func (a evaluatorAdapter) Evaluate(q, answerText string, chunks []model.RetrievedChunk) model.QualityScores {
	return a.eval.EvaluateQuick(q, answerText, chunks)
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := vectorindex.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	local := embedregistry.NewLocal()
	calibStore, err := calibrate.Open(cfg.CalibrationMatrixDataDir)
	if err != nil {
		return fmt.Errorf("open calibration store: %w", err)
	}
	defer calibStore.Close()
	calibCache, err := calibrate.NewMemoryCache(calibStore)
	if err != nil {
		return fmt.Errorf("load calibration matrices: %w", err)
	}

	var premiumEmbedders []embedregistry.PremiumEmbedder
	if cfg.DefaultPremiumEmbedder != "" {
		vertexEmbedder, err := embedregistry.NewVertex(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.DefaultPremiumEmbedder, local.Dim())
		if err != nil {
			return fmt.Errorf("init vertex embedder: %w", err)
		}
		premiumEmbedders = append(premiumEmbedders, vertexEmbedder)
	}
	registry := embedregistry.New(local, calibCache, premiumEmbedders...)
	if cfg.DefaultPremiumEmbedder != "" {
		registry.SetDefaultPremium(premiumEmbedders[0].Name())
	}

	vectorIdx := vectorindex.NewPGVector(pool)
	textIdx := textindex.NewPGText(pool)
	fetcher := vectorindex.NewPGChunkFetcher(pool)

	hybrid := retrieval.NewHybridRetriever(vectorIdx, textIdx, fetcher, retrieval.Config{
		TopK: cfg.TopKDefault * 2,
	})
	premiumName := ""
	if len(premiumEmbedders) > 0 {
		premiumName = premiumEmbedders[0].Name()
	}
	twoStep := retrieval.NewTwoStep(hybrid, registry, premiumName)

	var liveWeb orchestrator.LiveWebRetriever
	var promoter orchestrator.Promoter
	if cfg.WebSearchMode != config.WebSearchOff {
		trust := websearch.TrustConfig{DefaultScore: cfg.WebKBMinTrustScore}
		for _, d := range cfg.WebSearchTrustedDomainSuffixes {
			if trust.TrustedDomains == nil {
				trust.TrustedDomains = map[string]float64{}
			}
			trust.TrustedDomains[d] = 0.9
		}
		trust.BlockedDomains = cfg.WebSearchBlockedDomains

		limiter := websearch.NewRateLimiter(cfg.WebSearchMaxQueriesPerMinute, time.Minute)
		snippetProvider, err := websearch.NewCustomSearch(ctx, cfg.GoogleCustomSearchAPIKey, cfg.GoogleCustomSearchCX)
		if err != nil {
			return fmt.Errorf("init web search provider: %w", err)
		}
		extractor := websearch.NewHTTPExtract(&http.Client{Timeout: 10 * time.Second})
		liveWeb = websearch.NewHybrid(snippetProvider, extractor, trust, limiter)

		if topicID := os.Getenv("WEB_KB_PROMOTION_TOPIC"); topicID != "" {
			psClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
			if err != nil {
				return fmt.Errorf("init pubsub client: %w", err)
			}
			promoter = orchestrator.NewPubSubPromoter(psClient.Topic(topicID))
		}
	}

	orch := orchestrator.New(twoStep, twoStep, liveWeb, promoter, orchestrator.Config{
		Trigger:            orchestrator.TriggerMode(cfg.WebSearchMode),
		LowConfidenceFloor: 0.55,
		TierWeights: map[model.Tier]float64{
			model.TierCurated: cfg.TierWeights[0],
			model.TierWebKB:   cfg.TierWeights[1],
			model.TierLiveWeb: cfg.TierWeights[2],
		},
		PerTierTimeout:     time.Duration(cfg.PerTierTimeoutMS) * time.Millisecond,
		LiveWebResultLimit: cfg.WebSearchMaxResults,
	})

	var llm answer.LLMClient
	switch {
	case cfg.OpenRouterAPIKey != "":
		llm = answer.NewBYOLLMClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.OpenRouterModel)
	default:
		vertexLLM, err := answer.NewVertexClient(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
		if err != nil {
			return fmt.Errorf("init vertex LLM client: %w", err)
		}
		llm = vertexLLM
	}
	generator := answer.New(llm, answer.Config{Model: cfg.VertexAIModel})

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)
	evaluator := quality.New(quality.NewPromSink(reg), quality.Config{})

	var kv semcache.KVStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		kv = semcache.NewRedisStore(redis.NewClient(opts), "semcache:")
	}
	cache, err := semcache.New(semcache.Config{
		TTL:                 time.Duration(cfg.SemanticCacheTTLSeconds) * time.Second,
		SimilarityThreshold: cfg.SemanticCacheThreshold,
	}, kv)
	if err != nil {
		return fmt.Errorf("init semantic cache: %w", err)
	}
	defer cache.Stop()

	coordinator := query.New(registry, cache, orch, generator, evaluatorAdapter{evaluator}, query.Config{
		DefaultTopK: cfg.TopKDefault,
		MaxTopK:     cfg.MaxTopK,
		QueryTimeout: time.Duration(cfg.QueryTimeoutMS) * time.Millisecond,
	})

	queryRateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 60,
		Window:      time.Minute,
	})
	defer queryRateLimiter.Stop()

	mux := router.New(&router.Dependencies{
		DB:               pool,
		Coordinator:      coordinator,
		ModelUsed:        cfg.VertexAIModel,
		Version:          Version,
		FrontendURL:      cfg.FrontendURL,
		Metrics:          metrics,
		MetricsReg:       reg,
		APIKey:           cfg.InternalAPIKey,
		QueryRateLimiter: queryRateLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // query pipeline can run a full retrieval+generation cycle
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("retrieval-engine starting", "version", Version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down gracefully", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
