// Package config gathers every environment-sourced setting once at startup
// into a single immutable struct, the way service/reporting/regulatory's
// internal/config/config.go does for its own service, adapted here because
// this system's environment contract requires every listed variable to be
// present rather than falling back to defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, immutable configuration for one run of the
// indexer. It is built once in Load and threaded through the scheduler,
// never re-read from the environment deeper in the call graph.
type Config struct {
	App      AppConfig
	RPC      RPCConfig
	Postgres PostgresConfig
	Pool     PoolConfig
	Range    RangeConfig
	Explorer ExplorerConfig
	Kafka    KafkaConfig
	Metrics  MetricsConfig
}

type AppConfig struct {
	Version  string
	LogLevel string
}

type RPCConfig struct {
	HTTPEndpoint string
	WSEndpoint   string
}

type PostgresConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	CreateTableOrder []string
	MaxOpenConns     int
	MaxIdleConns     int
}

type PoolConfig struct {
	WSConnections  int
	DBConnections  int
	MaxConcurrency int
	BatchSize      int
}

type RangeConfig struct {
	StartBlock int64
	EndBlock   int64 // -1 means "chain tip"
}

type ExplorerConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MetricsConfig struct {
	Addr string
}

// requiredKeys lists every viper key that must resolve to a present value.
// Mirrors the "all must be present or startup aborts" contract in spec §6.
var requiredKeys = []string{
	"version",
	"http_rpc_endpoint",
	"ws_rpc_endpoint",
	"postgres_host",
	"postgres_port",
	"postgres_user",
	"postgres_password",
	"postgres_database",
	"postgres_create_table_order",
	"nb_of_ws_connections",
	"nb_of_db_connections",
	"start_block",
	"end_block",
	"log_level",
}

// Load binds every environment variable named in spec §6, validates that all
// required ones are present, and unmarshals into Config. Unlike the template
// this is grounded on, every missing key is collected into a single combined
// error via errors.Join instead of failing on the first.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range requiredKeys {
		_ = v.BindEnv(key)
	}

	var missing []error
	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, fmt.Errorf("missing required environment variable for %q", key))
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	cfg := &Config{
		App: AppConfig{
			Version:  v.GetString("version"),
			LogLevel: v.GetString("log_level"),
		},
		RPC: RPCConfig{
			HTTPEndpoint: v.GetString("http_rpc_endpoint"),
			WSEndpoint:   v.GetString("ws_rpc_endpoint"),
		},
		Postgres: PostgresConfig{
			Host:             v.GetString("postgres_host"),
			Port:             v.GetInt("postgres_port"),
			User:             v.GetString("postgres_user"),
			Password:         v.GetString("postgres_password"),
			Database:         v.GetString("postgres_database"),
			SSLMode:          v.GetString("postgres_sslmode"),
			CreateTableOrder: splitCSV(v.GetString("postgres_create_table_order")),
			MaxOpenConns:     v.GetInt("postgres_max_open_conns"),
			MaxIdleConns:     v.GetInt("postgres_max_idle_conns"),
		},
		Pool: PoolConfig{
			WSConnections:  v.GetInt("nb_of_ws_connections"),
			DBConnections:  v.GetInt("nb_of_db_connections"),
			MaxConcurrency: v.GetInt("max_concurrency"),
			BatchSize:      v.GetInt("batch_size"),
		},
		Range: RangeConfig{
			StartBlock: v.GetInt64("start_block"),
			EndBlock:   v.GetInt64("end_block"),
		},
		Explorer: ExplorerConfig{
			Endpoint: v.GetString("blockscout_endpoint"),
			APIKey:   v.GetString("blockscout_api_key"),
			Timeout:  60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(v.GetString("kafka_brokers")),
			Topic:   v.GetString("kafka_topic"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics_addr"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("postgres_max_open_conns", 10)
	v.SetDefault("postgres_max_idle_conns", 5)
	v.SetDefault("max_concurrency", 100)
	v.SetDefault("batch_size", 100)
	v.SetDefault("kafka_topic", "indexer.events")
	v.SetDefault("metrics_addr", ":9102")
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
