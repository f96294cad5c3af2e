package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the solver.
type Config struct {
	Server        ServerConfig
	Redis         RedisConfig
	Solver        SolverConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL             string
	Password        string
	DB              int
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// ChainConfig is one network's RPC/contract address set, keyed by chain id
// in SolverConfig.Chains -- a flat env var can't express a map, so this
// nested block is only ever populated from the YAML config file.
type ChainConfig struct {
	Name                    string        `yaml:"name"`
	RPCURL                  string        `yaml:"rpc_url"`
	Orderbook               string        `yaml:"orderbook"`
	ArbAddress              string        `yaml:"arb_address"`
	SignerAddress           string        `yaml:"signer_address"`
	BlockPollPeriod         time.Duration `yaml:"block_poll_period"`
	WeightedPoolAddress     string        `yaml:"weighted_pool_address"`
	WeightedPoolAlternates  []string      `yaml:"weighted_pool_alternates"`
}

// SolverConfig replaces the teacher's Web3Config: chain-keyed RPC/contract
// wiring plus the round-scheduling and risk knobs spec.md §6.4 names.
type SolverConfig struct {
	Chains                map[string]ChainConfig `yaml:"chains"`
	DefaultOwnerLimit     uint32                 `yaml:"default_owner_limit"`
	OwnerLimitOverrides   map[string]uint32      `yaml:"owner_limit_overrides"`
	BaseTokens            []string               `yaml:"base_tokens"`
	GasCoveragePercentage float64                `yaml:"gas_coverage_percentage"`
	RoundInterval         time.Duration          `yaml:"round_interval"`
	RoundTimeout          time.Duration          `yaml:"round_timeout"`
	MaxConcurrentPairs    int                    `yaml:"max_concurrent_pairs"`
	IndexerPollInterval   time.Duration          `yaml:"indexer_poll_interval"`
	DownscaleThresholdPct float64                `yaml:"downscale_threshold_percentage"`
	RouteCacheTTL         time.Duration          `yaml:"route_cache_ttl"`
	BackendRequestsPerSec float64                `yaml:"backend_requests_per_second"`
	IndexerBaseURL        string                 `yaml:"indexer_base_url"`
	AggregatorBaseURL     string                 `yaml:"aggregator_base_url"`
	StablecoinDecimals    map[string]uint8       `yaml:"stablecoin_decimals"`
	DownscaleEveryNRounds int                    `yaml:"downscale_every_n_rounds"`
	MaxRatioMode          bool                   `yaml:"max_ratio_mode"`
	AllowPartialFill      bool                   `yaml:"allow_partial_fill"`
	MaxInputWei           string                 `yaml:"max_input_wei"`
	NativeToken           string                 `yaml:"native_token"`
	PriceReferenceToken   string                 `yaml:"price_reference_token"`
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	ServiceName    string
	LogLevel       string
	LogFormat      string
}

// Load builds a Config from environment variables, then overlays a YAML
// file (SOLVER_CONFIG_FILE, default configs/solver.yaml) for the nested
// map fields env vars can't express -- mirroring cmd/trading-bots's
// yaml-overlay pattern, generalized from a single bot-engine block to the
// solver's chain/owner-limit/round-scheduling knobs.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getDurationEnv("READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			PoolSize:        getIntEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns:    getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
			PoolTimeout:     getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			MaxRetries:      getIntEnv("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: getDurationEnv("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: getDurationEnv("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
		},
		Solver: SolverConfig{
			DefaultOwnerLimit:     uint32(getIntEnv("SOLVER_DEFAULT_OWNER_LIMIT", 25)),
			GasCoveragePercentage: getFloatEnv("SOLVER_GAS_COVERAGE_PERCENTAGE", 1.1),
			RoundInterval:         getDurationEnv("SOLVER_ROUND_INTERVAL", 10*time.Second),
			RoundTimeout:          getDurationEnv("SOLVER_ROUND_TIMEOUT", 30*time.Second),
			MaxConcurrentPairs:    getIntEnv("SOLVER_MAX_CONCURRENT_PAIRS", 16),
			IndexerPollInterval:   getDurationEnv("SOLVER_INDEXER_POLL_INTERVAL", 5*time.Second),
			DownscaleThresholdPct: getFloatEnv("SOLVER_DOWNSCALE_THRESHOLD_PERCENTAGE", 0.9),
			RouteCacheTTL:         getDurationEnv("SOLVER_ROUTE_CACHE_TTL", 5*time.Second),
			BackendRequestsPerSec: getFloatEnv("SOLVER_BACKEND_REQUESTS_PER_SECOND", 10),
			IndexerBaseURL:        getEnv("SOLVER_INDEXER_BASE_URL", ""),
			AggregatorBaseURL:     getEnv("SOLVER_AGGREGATOR_BASE_URL", ""),
			DownscaleEveryNRounds: getIntEnv("SOLVER_DOWNSCALE_EVERY_N_ROUNDS", 10),
			MaxRatioMode:          getBoolEnv("SOLVER_MAX_RATIO_MODE", false),
			AllowPartialFill:      getBoolEnv("SOLVER_ALLOW_PARTIAL_FILL", false),
			MaxInputWei:           getEnv("SOLVER_MAX_INPUT_WEI", ""),
			NativeToken:           getEnv("SOLVER_NATIVE_TOKEN", ""),
			PriceReferenceToken:   getEnv("SOLVER_PRICE_REFERENCE_TOKEN", ""),
		},
		Observability: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "rain-solver"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.loadYAMLOverlay(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAMLOverlay reads the chain table, owner-limit overrides, base token
// list and stablecoin decimals -- the map/slice-shaped fields a flat env var
// can't carry -- from a YAML file. A missing file is not an error here, but
// validate then rejects the config, since it has no chains.
func (c *Config) loadYAMLOverlay() error {
	path := getEnv("SOLVER_CONFIG_FILE", "configs/solver.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay struct {
		Solver SolverConfig `yaml:"solver"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if overlay.Solver.Chains != nil {
		c.Solver.Chains = overlay.Solver.Chains
	}
	if overlay.Solver.OwnerLimitOverrides != nil {
		c.Solver.OwnerLimitOverrides = overlay.Solver.OwnerLimitOverrides
	}
	if overlay.Solver.BaseTokens != nil {
		c.Solver.BaseTokens = overlay.Solver.BaseTokens
	}
	if overlay.Solver.StablecoinDecimals != nil {
		c.Solver.StablecoinDecimals = overlay.Solver.StablecoinDecimals
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Solver.Chains) == 0 {
		return fmt.Errorf("solver: at least one chain must be configured (see SOLVER_CONFIG_FILE)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
