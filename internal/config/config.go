// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures runtime settings for the packgraph service.
type Config struct {
	Addr        string
	DatabaseURL string

	// JWTSecret verifies bearer tokens carrying tenant and actor claims.
	JWTSecret string

	// KafkaBrokers and KafkaTopic configure the domain-event emitter. Empty
	// brokers disable Kafka; events are dropped.
	KafkaBrokers []string
	KafkaTopic   string

	// ArchiveBucket enables S3 archival of install-ledger rows when set.
	ArchiveBucket string
	ArchivePrefix string

	// WebhookTimeoutSeconds bounds each promotion-notification delivery.
	WebhookTimeoutSeconds int

	LogLevel string
}

const (
	defaultAddr           = ":8053"
	defaultKafkaTopic     = "packgraph.events"
	defaultWebhookTimeout = 10
	defaultLogLevel       = "info"
)

// Load reads environment variables and returns a Config.
func Load() (Config, error) {
	cfg := Config{
		Addr:                  getEnv("PACKGRAPH_ADDR", defaultAddr),
		DatabaseURL:           firstNonEmpty(os.Getenv("PACKGRAPH_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		JWTSecret:             os.Getenv("PACKGRAPH_JWT_SECRET"),
		KafkaBrokers:          splitList(os.Getenv("PACKGRAPH_KAFKA_BROKERS")),
		KafkaTopic:            getEnv("PACKGRAPH_KAFKA_TOPIC", defaultKafkaTopic),
		ArchiveBucket:         os.Getenv("PACKGRAPH_ARCHIVE_BUCKET"),
		ArchivePrefix:         getEnv("PACKGRAPH_ARCHIVE_PREFIX", "installs"),
		WebhookTimeoutSeconds: getInt("PACKGRAPH_WEBHOOK_TIMEOUT_SECONDS", defaultWebhookTimeout),
		LogLevel:              getEnv("PACKGRAPH_LOG_LEVEL", defaultLogLevel),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or PACKGRAPH_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("PACKGRAPH_JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
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

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
