package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ragcore/retrieval-engine/internal/errs"
)

// WebSearchMode controls when the orchestrator's live-web tier is consulted.
type WebSearchMode string

const (
	WebSearchOff             WebSearchMode = "off"
	WebSearchParallel        WebSearchMode = "parallel"
	WebSearchOnLowConfidence WebSearchMode = "on_low_confidence"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns. Field set and defaults
// follow the recognized options table.
type Config struct {
	Port        int
	Environment string

	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject       string
	GCPRegion        string
	VertexAILocation string
	VertexAIModel    string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string

	TopKDefault int
	MaxTopK     int

	SemanticCacheThreshold  float64
	SemanticCacheTTLSeconds int
	RedisURL                string

	WebSearchMode                  WebSearchMode
	WebSearchMaxResults            int
	WebSearchTrustedDomainSuffixes []string
	WebSearchBlockedDomains        []string
	WebSearchMaxQueriesPerMinute   int
	GoogleCustomSearchAPIKey       string
	GoogleCustomSearchCX           string

	WebKBTTLDays        int
	WebKBMinTrustScore  float64

	RRFK        int
	TierWeights [3]float64

	PerTierTimeoutMS int
	QueryTimeoutMS   int

	DefaultPremiumEmbedder      string
	CalibrationMatrixDataDir    string

	InternalAPIKey string
	FrontendURL    string
}

// Load reads configuration from environment variables. DATABASE_URL and
// GOOGLE_CLOUD_PROJECT are required (the vector index and the Vertex
// premium embedder/generator both need them), and INTERNAL_API_KEY is
// required whenever ENVIRONMENT is not "development"; everything else falls
// back to the spec's documented default. A missing required value or an
// invalid WEB_SEARCH_MODE is returned as an errs fatal_config_error.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errs.FatalConfig("config.Load", fmt.Errorf("DATABASE_URL is required"))
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, errs.FatalConfig("config.Load", fmt.Errorf("GOOGLE_CLOUD_PROJECT is required"))
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:       gcpProject,
		GCPRegion:        envStr("GCP_REGION", "us-east4"),
		VertexAILocation: envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:    envStr("VERTEX_AI_MODEL", "gemini-2.0-flash"),

		OpenRouterAPIKey:  envStr("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: envStr("OPENROUTER_BASE_URL", ""),
		OpenRouterModel:   envStr("OPENROUTER_MODEL", ""),

		TopKDefault: envInt("TOP_K_DEFAULT", 10),
		MaxTopK:     envInt("MAX_TOP_K", 25),

		SemanticCacheThreshold:  envFloat("SEMANTIC_CACHE_THRESHOLD", 0.95),
		SemanticCacheTTLSeconds: envInt("SEMANTIC_CACHE_TTL_SECONDS", 3600),
		RedisURL:                envStr("REDIS_URL", ""),

		WebSearchMode:                  WebSearchMode(envStr("WEB_SEARCH_MODE", string(WebSearchOnLowConfidence))),
		WebSearchMaxResults:            envInt("WEB_SEARCH_MAX_RESULTS", 5),
		WebSearchTrustedDomainSuffixes: envList("WEB_SEARCH_TRUSTED_DOMAIN_SUFFIXES"),
		WebSearchBlockedDomains:        envList("WEB_SEARCH_BLOCKED_DOMAINS"),
		WebSearchMaxQueriesPerMinute:   envInt("WEB_SEARCH_MAX_QUERIES_PER_MINUTE", 10),
		GoogleCustomSearchAPIKey:       envStr("GOOGLE_CUSTOM_SEARCH_API_KEY", ""),
		GoogleCustomSearchCX:           envStr("GOOGLE_CUSTOM_SEARCH_CX", ""),

		WebKBTTLDays:       envInt("WEB_KB_TTL_DAYS", 7),
		WebKBMinTrustScore: envFloat("WEB_KB_MIN_TRUST_SCORE", 0.5),

		RRFK: envInt("RRF_K", 60),
		TierWeights: [3]float64{
			envFloat("TIER_WEIGHT_1", 1.0),
			envFloat("TIER_WEIGHT_2", 0.9),
			envFloat("TIER_WEIGHT_3", 0.7),
		},

		PerTierTimeoutMS: envInt("PER_TIER_TIMEOUT_MS", 10000),
		QueryTimeoutMS:   envInt("QUERY_TIMEOUT_MS", 30000),

		DefaultPremiumEmbedder:   envStr("DEFAULT_PREMIUM_EMBEDDER", ""),
		CalibrationMatrixDataDir: envStr("CALIBRATION_MATRIX_DATA_DIR", ""),

		InternalAPIKey: envStr("INTERNAL_API_KEY", ""),
		FrontendURL:    envStr("FRONTEND_URL", "http://localhost:3000"),
	}

	switch cfg.WebSearchMode {
	case WebSearchOff, WebSearchParallel, WebSearchOnLowConfidence:
	default:
		return nil, errs.FatalConfig("config.Load", fmt.Errorf("invalid WEB_SEARCH_MODE %q", cfg.WebSearchMode))
	}

	if cfg.Environment != "development" && cfg.InternalAPIKey == "" {
		return nil, errs.FatalConfig("config.Load", fmt.Errorf("INTERNAL_API_KEY is required in %s environment", cfg.Environment))
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
