// Package config loads service configuration from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string

	// CacheTTL bounds staleness of alias-based prompt loads. 0 disables
	// caching for rapid iteration during development.
	CacheTTL     time.Duration
	DefaultAlias string

	// GateThresholds maps eval type to the minimum pass rate required for
	// promotion. DefaultThreshold applies to types missing from the table.
	GateThresholds   map[string]float64
	DefaultThreshold float64
	StableMarginPp   float64
	TolerancePp      float64

	EvalServiceURL     string
	EvalServiceTimeout time.Duration
	EvalServiceRetries int
	SuiteDatasets      []string

	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	JWTSecret       string
	AllowDebugToken bool
	DebugToken      string
}

const (
	defaultAddr            = ":8071"
	defaultCacheTTLSeconds = 300
	defaultAliasName       = "stable"
	defaultThreshold       = 0.8
	defaultStableMarginPp  = 2.0
	defaultTolerancePp     = 2.0
)

func Load() (Config, error) {
	cfg := Config{
		Addr:               getEnv("PROMPTGATE_ADDR", defaultAddr),
		DatabaseURL:        firstNonEmpty(os.Getenv("PROMPTGATE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		CacheTTL:           time.Duration(getInt("PROMPTGATE_CACHE_TTL_SECONDS", defaultCacheTTLSeconds)) * time.Second,
		DefaultAlias:       getEnv("PROMPTGATE_DEFAULT_ALIAS", defaultAliasName),
		DefaultThreshold:   getFloat("PROMPTGATE_DEFAULT_THRESHOLD", defaultThreshold),
		StableMarginPp:     getFloat("PROMPTGATE_STABLE_MARGIN_PP", defaultStableMarginPp),
		TolerancePp:        getFloat("PROMPTGATE_TOLERANCE_PP", defaultTolerancePp),
		EvalServiceURL:     os.Getenv("PROMPTGATE_EVAL_SERVICE_URL"),
		EvalServiceTimeout: getDuration("PROMPTGATE_EVAL_SERVICE_TIMEOUT", 5*time.Minute),
		EvalServiceRetries: getInt("PROMPTGATE_EVAL_SERVICE_RETRIES", 1),
		SuiteDatasets:      splitList(os.Getenv("PROMPTGATE_SUITE_DATASETS")),
		KafkaBrokers:       splitList(os.Getenv("PROMPTGATE_KAFKA_BROKERS")),
		KafkaTopic:         getEnv("PROMPTGATE_KAFKA_TOPIC", "release-audit"),
		S3Bucket:           os.Getenv("PROMPTGATE_S3_BUCKET"),
		S3Prefix:           getEnv("PROMPTGATE_S3_PREFIX", "promptgate"),
		JWTSecret:          os.Getenv("PROMPTGATE_JWT_SECRET"),
		AllowDebugToken:    getBool("PROMPTGATE_ALLOW_DEBUG_TOKEN", false),
		DebugToken:         os.Getenv("PROMPTGATE_DEBUG_TOKEN"),
	}

	thresholds, err := parseThresholds(os.Getenv("PROMPTGATE_GATE_THRESHOLDS"))
	if err != nil {
		return Config{}, err
	}
	cfg.GateThresholds = thresholds

	if cfg.JWTSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("PROMPTGATE_JWT_SECRET required unless PROMPTGATE_ALLOW_DEBUG_TOKEN=true")
	}
	if cfg.AllowDebugToken && cfg.DebugToken == "" {
		return Config{}, fmt.Errorf("PROMPTGATE_DEBUG_TOKEN required when PROMPTGATE_ALLOW_DEBUG_TOKEN=true")
	}
	return cfg, nil
}

func parseThresholds(raw string) (map[string]float64, error) {
	if raw == "" {
		return map[string]float64{}, nil
	}
	var thresholds map[string]float64
	if err := json.Unmarshal([]byte(raw), &thresholds); err != nil {
		return nil, fmt.Errorf("PROMPTGATE_GATE_THRESHOLDS must be a JSON object of evalType to pass rate: %w", err)
	}
	for evalType, threshold := range thresholds {
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("threshold for %q out of range [0,1]: %v", evalType, threshold)
		}
	}
	return thresholds, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
