package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"sidebet/database"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `yaml:"database_url"`
	DatabaseName string `yaml:"database_name"`

	// Connection pool sizing. Zero keeps the pgx default.
	DBMaxConns        int           `yaml:"db_max_conns"`
	DBMinConns        int           `yaml:"db_min_conns"`
	DBMaxConnLifetime time.Duration `yaml:"db_max_conn_lifetime"`

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json

	// Money rules. The fee rate is a quoted decimal string in YAML ("0.03").
	PlatformFeeRate decimal.Decimal `yaml:"platform_fee_rate"`

	// Dispute rules
	DisputeWindow        time.Duration `yaml:"dispute_window"`
	DisputeCooldown      time.Duration `yaml:"dispute_cooldown"`
	DisputeFilingWindow  time.Duration `yaml:"dispute_filing_window"`
	MaxPendingDisputes   int           `yaml:"max_pending_disputes"`
	EarlyClosureBackdate time.Duration `yaml:"early_closure_backdate"`

	// Trust scoring windows
	SlowResolutionAfter        time.Duration `yaml:"slow_resolution_after"`
	UnresolvedGrace            time.Duration `yaml:"unresolved_grace"`
	CancellationAbuseWindow    time.Duration `yaml:"cancellation_abuse_window"`
	CancellationAbuseThreshold int           `yaml:"cancellation_abuse_threshold"`

	// Sweep scheduling
	ExpirySweepInterval     time.Duration `yaml:"expiry_sweep_interval"`
	PayoutSweepInterval     time.Duration `yaml:"payout_sweep_interval"`
	WithdrawalSweepInterval time.Duration `yaml:"withdrawal_sweep_interval"`
	SweepWritesPerSecond    float64       `yaml:"sweep_writes_per_second"` // 0 disables pacing
	SweepQueryTimeout       time.Duration `yaml:"sweep_query_timeout"`

	// List cache. An empty RedisAddr selects the in-process cache.
	ListCacheTTL  time.Duration `yaml:"list_cache_ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`

	// NATS configuration. Empty disables event forwarding.
	NATSServers string `yaml:"nats_servers"`

	// Kafka notification stream. Empty brokers disables it.
	KafkaBrokers           []string `yaml:"kafka_brokers"`
	KafkaNotificationTopic string   `yaml:"kafka_notification_topic"`

	// Observability
	ServiceName     string `yaml:"service_name"`
	MetricsExporter string `yaml:"metrics_exporter"` // none | console | otlp
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	MetricsAddr     string `yaml:"metrics_addr"` // Prometheus /metrics and /healthz listener

	MetricsExportInterval time.Duration `yaml:"metrics_export_interval"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Environment
	Environment string `yaml:"environment"` // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// PoolOptions returns the connection pool settings
func (c *Config) PoolOptions() database.PoolOptions {
	return database.PoolOptions{
		MaxConns:        int32(c.DBMaxConns),
		MinConns:        int32(c.DBMinConns),
		MaxConnLifetime: c.DBMaxConnLifetime,
	}
}

// defaults returns the configuration used before any file or environment overrides
func defaults() *Config {
	return &Config{
		DBMaxConns:        10,
		DBMinConns:        2,
		DBMaxConnLifetime: time.Hour,

		LogLevel:  "info",
		LogFormat: "text",

		PlatformFeeRate: decimal.RequireFromString("0.03"),

		DisputeWindow:        48 * time.Hour,
		DisputeCooldown:      24 * time.Hour,
		DisputeFilingWindow:  7 * 24 * time.Hour,
		MaxPendingDisputes:   3,
		EarlyClosureBackdate: time.Minute,

		SlowResolutionAfter:        24 * time.Hour,
		UnresolvedGrace:            72 * time.Hour,
		CancellationAbuseWindow:    7 * 24 * time.Hour,
		CancellationAbuseThreshold: 3,

		ExpirySweepInterval:     time.Minute,
		PayoutSweepInterval:     5 * time.Minute,
		WithdrawalSweepInterval: 5 * time.Minute,
		SweepQueryTimeout:       30 * time.Second,

		ListCacheTTL: 30 * time.Second,

		KafkaNotificationTopic: "sidebet.notifications",

		ServiceName:     "sidebet",
		MetricsExporter: "none",
		MetricsAddr:     ":9090",

		MetricsExportInterval: 30 * time.Second,

		ShutdownTimeout: 30 * time.Second,
	}
}

// load loads configuration from an optional .env file, an optional YAML file
// named by SIDEBET_CONFIG_FILE, and then environment variables
func load() (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	config := defaults()

	if path := os.Getenv("SIDEBET_CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadFile merges a YAML file over config
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(config *Config) error {
	setString("DATABASE_URL", &config.DatabaseURL)
	setString("DATABASE_NAME", &config.DatabaseName)
	setString("LOG_LEVEL", &config.LogLevel)
	setString("LOG_FORMAT", &config.LogFormat)
	setString("REDIS_ADDR", &config.RedisAddr)
	setString("REDIS_PASSWORD", &config.RedisPassword)
	setString("NATS_SERVERS", &config.NATSServers)
	setString("KAFKA_NOTIFICATION_TOPIC", &config.KafkaNotificationTopic)
	setString("SERVICE_NAME", &config.ServiceName)
	setString("METRICS_EXPORTER", &config.MetricsExporter)
	setString("OTLP_ENDPOINT", &config.OTLPEndpoint)
	setString("METRICS_ADDR", &config.MetricsAddr)
	setString("ENVIRONMENT", &config.Environment)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.KafkaBrokers = splitList(brokers)
	}

	if rate := os.Getenv("PLATFORM_FEE_RATE"); rate != "" {
		parsed, err := decimal.NewFromString(rate)
		if err != nil {
			return fmt.Errorf("invalid PLATFORM_FEE_RATE %q: %w", rate, err)
		}
		config.PlatformFeeRate = parsed
	}

	durations := map[string]*time.Duration{
		"DISPUTE_WINDOW":            &config.DisputeWindow,
		"DISPUTE_COOLDOWN":          &config.DisputeCooldown,
		"DISPUTE_FILING_WINDOW":     &config.DisputeFilingWindow,
		"EARLY_CLOSURE_BACKDATE":    &config.EarlyClosureBackdate,
		"SLOW_RESOLUTION_AFTER":     &config.SlowResolutionAfter,
		"UNRESOLVED_GRACE":          &config.UnresolvedGrace,
		"CANCELLATION_ABUSE_WINDOW": &config.CancellationAbuseWindow,
		"EXPIRY_SWEEP_INTERVAL":     &config.ExpirySweepInterval,
		"PAYOUT_SWEEP_INTERVAL":     &config.PayoutSweepInterval,
		"WITHDRAWAL_SWEEP_INTERVAL": &config.WithdrawalSweepInterval,
		"SWEEP_QUERY_TIMEOUT":       &config.SweepQueryTimeout,
		"LIST_CACHE_TTL":            &config.ListCacheTTL,
		"SHUTDOWN_TIMEOUT":          &config.ShutdownTimeout,
		"METRICS_EXPORT_INTERVAL":   &config.MetricsExportInterval,
		"DB_MAX_CONN_LIFETIME":      &config.DBMaxConnLifetime,
	}
	for key, target := range durations {
		if err := setDuration(key, target); err != nil {
			return err
		}
	}

	ints := map[string]*int{
		"MAX_PENDING_DISPUTES":         &config.MaxPendingDisputes,
		"CANCELLATION_ABUSE_THRESHOLD": &config.CancellationAbuseThreshold,
		"REDIS_DB":                     &config.RedisDB,
		"DB_MAX_CONNS":                 &config.DBMaxConns,
		"DB_MIN_CONNS":                 &config.DBMinConns,
	}
	for key, target := range ints {
		if err := setInt(key, target); err != nil {
			return err
		}
	}

	if rps := os.Getenv("SWEEP_WRITES_PER_SECOND"); rps != "" {
		parsed, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_WRITES_PER_SECOND %q: %w", rps, err)
		}
		config.SweepWritesPerSecond = parsed
	}
	return nil
}

// Validate rejects configurations the services cannot run with
func (c *Config) Validate() error {
	if c.Environment != "test" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// If DatabaseName is provided, ensure it's not empty
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	if c.PlatformFeeRate.IsNegative() || c.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("PLATFORM_FEE_RATE must be in [0,1), got %s", c.PlatformFeeRate)
	}
	if c.DisputeWindow <= 0 {
		return fmt.Errorf("DISPUTE_WINDOW must be positive")
	}
	if c.MaxPendingDisputes < 1 {
		return fmt.Errorf("MAX_PENDING_DISPUTES must be at least 1")
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS and DB_MIN_CONNS cannot be negative")
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SweepWritesPerSecond < 0 {
		return fmt.Errorf("SWEEP_WRITES_PER_SECOND cannot be negative")
	}
	switch c.MetricsExporter {
	case "none", "console", "otlp":
	default:
		return fmt.Errorf("unknown METRICS_EXPORTER %q", c.MetricsExporter)
	}
	return nil
}

// ConfigureLogging applies the configured level and format to the standard logrus logger
func ConfigureLogging(c *Config) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func setString(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setDuration(key string, target *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*target = parsed
	return nil
}

func setInt(key string, target *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*target = parsed
	return nil
}

func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a config with production rule values suitable for unit tests
func NewTestConfig() *Config {
	config := defaults()
	config.Environment = "test"
	return config
}
