package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "arenaforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ARENAFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "ARENAFORGE_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ARENAFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ARENAFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ARENAFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ARENAFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ARENAFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.LLM.Mode, "ARENAFORGE_LLM_MODE")
	setString(&cfg.LLM.URL, "ARENAFORGE_LLM_URL")
	setString(&cfg.LLM.APIKey, "ARENAFORGE_LLM_API_KEY")
	setDuration(&cfg.LLM.Timeout, "ARENAFORGE_LLM_TIMEOUT")

	setString(&cfg.Wallet.Mode, "ARENAFORGE_WALLET_MODE")
	setString(&cfg.Wallet.URL, "ARENAFORGE_WALLET_URL")
	setString(&cfg.Wallet.Network, "ARENAFORGE_WALLET_NETWORK")
	setString(&cfg.Wallet.KeystorePath, "ARENAFORGE_WALLET_KEYSTORE")
	setString(&cfg.Wallet.Passphrase, "ARENAFORGE_WALLET_PASSPHRASE")

	setString(&cfg.Source.Mode, "ARENAFORGE_SOURCE_MODE")
	setString(&cfg.Source.APIURL, "ARENAFORGE_SOURCE_API_URL")
	setString(&cfg.Source.Token, "ARENAFORGE_SOURCE_TOKEN")

	setString(&cfg.Retrieval.Mode, "ARENAFORGE_RETRIEVAL_MODE")
	setString(&cfg.Retrieval.LocalPath, "ARENAFORGE_RETRIEVAL_LOCAL_PATH")
	setDuration(&cfg.Retrieval.RequestTimeout, "ARENAFORGE_RETRIEVAL_REQUEST_TIMEOUT")
	setDuration(&cfg.Retrieval.IndexTimeout, "ARENAFORGE_RETRIEVAL_INDEX_TIMEOUT")
	setInt(&cfg.Retrieval.QueryLimit, "ARENAFORGE_RETRIEVAL_QUERY_LIMIT")

	setString(&cfg.Arena.JudgeModel, "ARENAFORGE_JUDGE_MODEL")
	setString(&cfg.Arena.PayoutPolicy, "ARENAFORGE_PAYOUT_POLICY")
	setString(&cfg.Arena.PayoutFixed, "ARENAFORGE_PAYOUT_FIXED")
	setString(&cfg.Arena.PayoutMin, "ARENAFORGE_PAYOUT_MIN")
	setString(&cfg.Arena.PayoutMax, "ARENAFORGE_PAYOUT_MAX")
	setInt(&cfg.Arena.MaxParallel, "ARENAFORGE_MAX_PARALLEL")
	setDuration(&cfg.Arena.SolveTimeout, "ARENAFORGE_SOLVE_TIMEOUT")
	setDuration(&cfg.Arena.JudgeTimeout, "ARENAFORGE_JUDGE_TIMEOUT")
	setDuration(&cfg.Arena.ConfirmTimeout, "ARENAFORGE_CONFIRM_TIMEOUT")
	setInt(&cfg.Arena.ContextByteCeiling, "ARENAFORGE_CONTEXT_BYTE_CEILING")
	setInt(&cfg.Arena.JudgeCodeCap, "ARENAFORGE_JUDGE_CODE_CAP")
	setString(&cfg.Arena.PublishAuthor, "ARENAFORGE_PUBLISH_AUTHOR")

	setString(&cfg.Logging.Level, "ARENAFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ARENAFORGE_LOG_SERVICE")

	setInt(&cfg.Breaker.MaxFailures, "ARENAFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ARENAFORGE_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.MaxSizeMB, "ARENAFORGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.IndexTTL, "ARENAFORGE_CACHE_INDEX_TTL")

	setBool(&cfg.OTel.Enabled, "ARENAFORGE_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set and coherent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if len(cfg.Arena.Roster) == 0 {
		return errors.New("arena.roster must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Arena.Roster))
	for _, s := range cfg.Arena.Roster {
		if s.ID == "" || s.Model == "" {
			return errors.New("arena.roster entries require id and model")
		}
		if seen[s.ID] {
			return fmt.Errorf("arena.roster has duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
	switch cfg.Arena.PayoutPolicy {
	case "fixed", "label", "random":
	default:
		return fmt.Errorf("arena.payout_policy %q is not one of fixed, label, random", cfg.Arena.PayoutPolicy)
	}
	for _, v := range []string{cfg.Arena.PayoutFixed, cfg.Arena.PayoutMin, cfg.Arena.PayoutMax} {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("arena payout amount %q: %w", v, err)
		}
	}
	if cfg.Arena.ContextByteCeiling < 1 {
		return errors.New("arena.context_byte_ceiling must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
