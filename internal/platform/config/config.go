// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"agora/internal/deadline"
	platformstrings "agora/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	LogLevel string
}

// RedisConfig controls the optional Redis connection backing the sweep lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	RelayInterval time.Duration
}

// SweepConfig controls the automation sweep loop.
type SweepConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

// Config is centralized process configuration.
type Config struct {
	Server      Server
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Sweep       SweepConfig

	// Mandate is the default policy snapshotted onto newly assigned mandates.
	Mandate         deadline.Config
	BinaryTiePolicy string
}

// Load reads configuration from the environment, after applying an optional
// .env file from the working directory. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Server: Server{
			Addr:     envString("AGORA_ADDR", ":8080"),
			LogLevel: envString("AGORA_LOG_LEVEL", "info"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:         envString("KAFKA_TOPIC", "agora.events"),
			RelayInterval: p.duration("OUTBOX_RELAY_INTERVAL", time.Second),
		},
		Sweep: SweepConfig{
			Interval:    p.duration("SWEEP_INTERVAL", time.Minute),
			BatchSize:   p.int("SWEEP_BATCH_SIZE", 500),
			Concurrency: p.int("SWEEP_CONCURRENCY", 8),
			LockTTL:     p.duration("SWEEP_LOCK_TTL", time.Minute),
		},
		Mandate: deadline.Config{
			Term:                  p.duration("MANDATE_TERM", 90*24*time.Hour),
			EvaluationWindow:      p.duration("EVALUATION_WINDOW", 14*24*time.Hour),
			CureWindow:            p.duration("CURE_WINDOW", 0),
			Quorum:                p.int("EVALUATION_QUORUM", 1),
			RequiredDeliverables:  p.int("REQUIRED_DELIVERABLES", 1),
			ExpireOnNonConformity: p.bool("EXPIRE_ON_NON_CONFORMITY", false),
		},
		BinaryTiePolicy: strings.ToLower(envString("BINARY_TIE_POLICY", "reject")),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.BinaryTiePolicy {
	case "reject", "accept":
	default:
		return fmt.Errorf("BINARY_TIE_POLICY must be reject or accept, got %q", c.BinaryTiePolicy)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Sweep.BatchSize < 1 || c.Sweep.Concurrency < 1 {
		return fmt.Errorf("SWEEP_BATCH_SIZE and SWEEP_CONCURRENCY must be at least 1")
	}
	return nil
}

// parser accumulates the first malformed variable so Load reports it once.
type parser struct {
	err error
}

func (p *parser) int(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, raw)
		return fallback
	}
	return v
}

func (p *parser) duration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(name, raw)
		return fallback
	}
	return v
}

func (p *parser) bool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch raw {
	case "":
		return fallback
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	}
	p.fail(name, raw)
	return fallback
}

func (p *parser) fail(name, raw string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value for %s: %q", name, raw)
	}
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}
