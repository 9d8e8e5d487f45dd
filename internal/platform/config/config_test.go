package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, name := range []string{"AGORA_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "MANDATE_TERM", "BINARY_TIE_POLICY"} {
		t.Setenv(name, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "reject", cfg.BinaryTiePolicy)
	assert.Equal(t, 90*24*time.Hour, cfg.Mandate.Term)
	assert.Equal(t, 500, cfg.Sweep.BatchSize)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AGORA_ADDR", ":9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MANDATE_TERM", "720h")
	t.Setenv("EVALUATION_QUORUM", "3")
	t.Setenv("EXPIRE_ON_NON_CONFORMITY", "yes")
	t.Setenv("BINARY_TIE_POLICY", "Accept")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 720*time.Hour, cfg.Mandate.Term)
	assert.Equal(t, 3, cfg.Mandate.Quorum)
	assert.True(t, cfg.Mandate.ExpireOnNonConformity)
	assert.Equal(t, "accept", cfg.BinaryTiePolicy)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
}

func TestFromEnvRejectsMalformed(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"duration", "CURE_WINDOW", "soon"},
		{"integer", "SWEEP_BATCH_SIZE", "many"},
		{"boolean", "EXPIRE_ON_NON_CONFORMITY", "maybe"},
		{"tie policy", "BINARY_TIE_POLICY", "coin_flip"},
		{"zero concurrency", "SWEEP_CONCURRENCY", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
