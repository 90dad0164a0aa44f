package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"VERSION", "HTTP_RPC_ENDPOINT", "WS_RPC_ENDPOINT", "POSTGRES_HOST",
		"POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DATABASE",
		"POSTGRES_CREATE_TABLE_ORDER", "NB_OF_WS_CONNECTIONS", "NB_OF_DB_CONNECTIONS",
		"START_BLOCK", "END_BLOCK", "LOG_LEVEL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		_ = k
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VERSION", "1.0.0")
	t.Setenv("HTTP_RPC_ENDPOINT", "http://localhost:8545")
	t.Setenv("WS_RPC_ENDPOINT", "ws://localhost:8546")
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("POSTGRES_USER", "indexer")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DATABASE", "indexer")
	t.Setenv("POSTGRES_CREATE_TABLE_ORDER", "blocks,transactions,receipts")
	t.Setenv("NB_OF_WS_CONNECTIONS", "4")
	t.Setenv("NB_OF_DB_CONNECTIONS", "4")
	t.Setenv("START_BLOCK", "100")
	t.Setenv("END_BLOCK", "-1")
	t.Setenv("LOG_LEVEL", "info")
}

func TestLoad_MissingRequiredVariablesCombinesErrors(t *testing.T) {
	clearRequiredEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
	assert.Contains(t, err.Error(), "postgres_host")
}

func TestLoad_AllRequiredPresent(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.App.Version)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, []string{"blocks", "transactions", "receipts"}, cfg.Postgres.CreateTableOrder)
	assert.Equal(t, 4, cfg.Pool.WSConnections)
	assert.Equal(t, int64(100), cfg.Range.StartBlock)
	assert.Equal(t, int64(-1), cfg.Range.EndBlock)
	assert.Equal(t, 100, cfg.Pool.MaxConcurrency, "default applies when MAX_CONCURRENCY unset")
}

func TestLoad_KafkaBrokersOptional(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Kafka.Brokers)

	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
}
