package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/skyoxu/myguild-sub003/internal/domain/sampling"
	"github.com/skyoxu/myguild-sub003/internal/domain/slo"
)

type Config struct {
	Server     ServerConfig
	Control    ControlConfig
	Sampling   SamplingConfig
	Breaker    BreakerConfig
	Recovery   RecoveryConfig
	Sweep      SweepConfig
	Gate       GateConfig
	NATS       NATSConfig
	Redis      RedisConfig
	CloudWatch CloudWatchConfig
	Security   SecurityConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type ControlConfig struct {
	// Environment the control plane manages (production, staging, development).
	Environment slo.Environment

	// EvaluationInterval drives the periodic sampling-control loop.
	EvaluationInterval time.Duration
}

type SamplingConfig struct {
	BaseSampleRate       float64
	CriticalTransactions []string
	CriticalMinRate      float64
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

type RecoveryConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	AttemptTimeout time.Duration
}

type SweepConfig struct {
	Interval          time.Duration
	MemoryPressurePct float64
	DiskPressurePct   float64
	Path              string
}

type GateConfig struct {
	Interval        time.Duration
	CheckTimeout    time.Duration
	StrictMode      bool
	TrackerEndpoint string
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	TTL          time.Duration
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CloudWatchConfig struct {
	Enabled         bool
	Namespace       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LogGroupName    string
	LogStreamName   string
	LogBufferCap    int
	FlushInterval   time.Duration
	AutoCreateLogs  bool
}

type SecurityConfig struct {
	AllowedOrigins   []string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

func Load() (*Config, error) {
	// Missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	evaluationInterval, err := time.ParseDuration(getEnv("CONTROL_EVALUATION_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONTROL_EVALUATION_INTERVAL: %w", err)
	}

	baseRate, err := getEnvFloat("SAMPLING_BASE_RATE", 0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid SAMPLING_BASE_RATE: %w", err)
	}

	criticalMinRate, err := getEnvFloat("SAMPLING_CRITICAL_MIN_RATE", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid SAMPLING_CRITICAL_MIN_RATE: %w", err)
	}

	breakerTimeout, err := time.ParseDuration(getEnv("BREAKER_RECOVERY_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_RECOVERY_TIMEOUT: %w", err)
	}

	retryBaseDelay, err := time.ParseDuration(getEnv("RECOVERY_RETRY_BASE_DELAY", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECOVERY_RETRY_BASE_DELAY: %w", err)
	}

	attemptTimeout, err := time.ParseDuration(getEnv("RECOVERY_ATTEMPT_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECOVERY_ATTEMPT_TIMEOUT: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	memoryPressure, err := getEnvFloat("SWEEP_MEMORY_PRESSURE_PCT", 90)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_MEMORY_PRESSURE_PCT: %w", err)
	}

	diskPressure, err := getEnvFloat("SWEEP_DISK_PRESSURE_PCT", 95)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_DISK_PRESSURE_PCT: %w", err)
	}

	gateInterval, err := time.ParseDuration(getEnv("GATE_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATE_INTERVAL: %w", err)
	}

	gateCheckTimeout, err := time.ParseDuration(getEnv("GATE_CHECK_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GATE_CHECK_TIMEOUT: %w", err)
	}

	redisTTL, err := time.ParseDuration(getEnv("REDIS_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_TTL: %w", err)
	}

	cwFlushInterval, err := time.ParseDuration(getEnv("CLOUDWATCH_FLUSH_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_FLUSH_INTERVAL: %w", err)
	}

	rateLimitRPS, err := getEnvFloat("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Control: ControlConfig{
			Environment:        slo.Environment(getEnv("CONTROL_ENVIRONMENT", "production")),
			EvaluationInterval: evaluationInterval,
		},
		Sampling: SamplingConfig{
			BaseSampleRate:       baseRate,
			CriticalTransactions: splitCSV(getEnv("SAMPLING_CRITICAL_TRANSACTIONS", "ai.decision,guild.battle,app.startup")),
			CriticalMinRate:      criticalMinRate,
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3),
			RecoveryTimeout:  breakerTimeout,
		},
		Recovery: RecoveryConfig{
			MaxRetries:     getEnvInt("RECOVERY_MAX_RETRIES", 3),
			RetryBaseDelay: retryBaseDelay,
			AttemptTimeout: attemptTimeout,
		},
		Sweep: SweepConfig{
			Interval:          sweepInterval,
			MemoryPressurePct: memoryPressure,
			DiskPressurePct:   diskPressure,
			Path:              getEnv("SWEEP_DISK_PATH", "/"),
		},
		Gate: GateConfig{
			Interval:        gateInterval,
			CheckTimeout:    gateCheckTimeout,
			StrictMode:      getEnvBool("GATE_STRICT_MODE", false),
			TrackerEndpoint: getEnv("GATE_TRACKER_ENDPOINT", ""),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			TTL:          redisTTL,
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		CloudWatch: CloudWatchConfig{
			Enabled:         getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "OpsCore/ControlPlane"),
			Region:          getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			LogGroupName:    getEnv("CLOUDWATCH_LOG_GROUP", "/opscore/decisions"),
			LogStreamName:   getEnv("CLOUDWATCH_LOG_STREAM", "gate"),
			LogBufferCap:    getEnvInt("CLOUDWATCH_LOG_BUFFER_CAP", 1000),
			FlushInterval:   cwFlushInterval,
			AutoCreateLogs:  getEnvBool("CLOUDWATCH_AUTO_CREATE_LOGS", true),
		},
		Security: SecurityConfig{
			AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RateLimitRPS:     rateLimitRPS,
			RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 40),
		},
	}

	if !cfg.Control.Environment.Valid() {
		return nil, fmt.Errorf("invalid CONTROL_ENVIRONMENT: %q", cfg.Control.Environment)
	}
	if cfg.Control.EvaluationInterval <= 0 {
		return nil, fmt.Errorf("CONTROL_EVALUATION_INTERVAL must be positive")
	}
	if cfg.Gate.Interval <= 0 {
		return nil, fmt.Errorf("GATE_INTERVAL must be positive")
	}

	// Strategy validation happens here too so a bad rate fails startup, not
	// the first control cycle.
	if err := cfg.ToStrategy().Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling configuration: %w", err)
	}

	return cfg, nil
}

// ToStrategy builds the sampling strategy from configuration, keeping the
// default environment multipliers.
func (c *Config) ToStrategy() sampling.Strategy {
	strategy := sampling.DefaultStrategy()
	strategy.BaseSampleRate = c.Sampling.BaseSampleRate
	strategy.CriticalTransactions = c.Sampling.CriticalTransactions
	strategy.CriticalMinRate = c.Sampling.CriticalMinRate
	return strategy
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	return strconv.ParseFloat(value, 64)
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	current := ""

	for _, r := range raw {
		if r == ',' {
			if current != "" {
				items = append(items, current)
				current = ""
			}
			continue
		}
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			current += string(r)
		}
	}

	if current != "" {
		items = append(items, current)
	}

	return items
}
