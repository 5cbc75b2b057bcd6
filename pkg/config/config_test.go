package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, 60*time.Second, c.Bazaar.PollInterval)
	assert.Equal(t, 5*time.Minute, c.Compaction.MaxGap)
	assert.Equal(t, 0.2, c.Compaction.MoveThreshold)
	assert.Equal(t, 256, c.Compaction.FlushEvery)
	assert.Equal(t, 30, c.Compaction.LadderDepth)
	assert.Equal(t, []int{1, 6, 48}, c.Aggregation.Windows)
	assert.Equal(t, 500, c.Aggregation.BatchSize)
	assert.Equal(t, 0.005, c.Scorer.CompetitionCoef)
	assert.Equal(t, 1.5, c.Scorer.RiskPenaltyCoef)
	assert.Equal(t, 2*time.Hour, c.Scorer.ETAHalfLife)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: prod
compaction:
  grace: 5m
  workers: 1
aggregation:
  windows: [2, 24]
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, c.Compaction.Grace)
	assert.Equal(t, 1, c.Compaction.Workers)
	assert.Equal(t, []int{2, 24}, c.Aggregation.Windows)
	// untouched siblings keep their defaults
	assert.Equal(t, 5*time.Minute, c.Compaction.Interval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := Parse([]byte("backend:\n  type: rabbit\n"))
	require.Error(t, err)

	_, err = Parse([]byte("aggregation:\n  windows: [0, 6]\n"))
	require.Error(t, err)

	_, err = Parse([]byte("backend:\n  type: kafka\n"))
	require.ErrorContains(t, err, "kafka.brokers")

	_, err = Parse([]byte("scorer:\n  liquidity_floor: 100\n  liquidity_ref: 50\n"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":       "kafka",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"REDIS_ADDR":    "cache:6380",
		"POSTGRES_DSN":  "postgres://x",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "kafka", c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Redis.Enabled)
	assert.True(t, c.Postgres.Enabled)
	require.NoError(t, c.Validate())
}
