package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Pacing    PacingConfig
	Reconcile ReconcileConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

// GatewayConfig points at the browser-automation gateway that holds the
// actual WhatsApp session.
type GatewayConfig struct {
	URL          string
	PollInterval time.Duration
	AutoConnect  bool
}

// PacingConfig bounds the randomized delay between consecutive sends.
type PacingConfig struct {
	Min time.Duration
	Max time.Duration
}

type ReconcileConfig struct {
	Interval time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	gatewayURL, err := requireEnv("GATEWAY_URL")
	if err != nil {
		errs = append(errs, err)
	}

	pollSeconds, err := getEnvInt("GATEWAY_POLL_SECONDS", 2)
	if err != nil {
		errs = append(errs, err)
	}
	pacingMin, err := getEnvInt("PACING_MIN_SECONDS", 5)
	if err != nil {
		errs = append(errs, err)
	}
	pacingMax, err := getEnvInt("PACING_MAX_SECONDS", 10)
	if err != nil {
		errs = append(errs, err)
	}
	reconcileSeconds, err := getEnvInt("RECONCILE_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Gateway: GatewayConfig{
			URL:          gatewayURL,
			PollInterval: time.Duration(pollSeconds) * time.Second,
			AutoConnect:  getEnv("AUTO_CONNECT", "true") == "true",
		},
		Pacing: PacingConfig{
			Min: time.Duration(pacingMin) * time.Second,
			Max: time.Duration(pacingMax) * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval: time.Duration(reconcileSeconds) * time.Second,
		},
		Redis: redisCfg,
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttlSeconds, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Gateway.PollInterval <= 0 {
		errs = append(errs, errors.New("GATEWAY_POLL_SECONDS must be > 0"))
	}
	if cfg.Pacing.Min < 0 {
		errs = append(errs, errors.New("PACING_MIN_SECONDS must be >= 0"))
	}
	if cfg.Pacing.Max < cfg.Pacing.Min {
		errs = append(errs, errors.New("PACING_MAX_SECONDS must be >= PACING_MIN_SECONDS"))
	}
	if cfg.Reconcile.Interval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL_SECONDS must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
