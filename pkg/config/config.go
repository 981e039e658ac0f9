package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// BillingConfig holds the pricing and checkout settings
type BillingConfig struct {
	Currency                       string
	CurrencyDecimals               int
	TaxesEnabled                   bool
	TaxInclusive                   bool
	TaxRatesFile                   string
	AllowTrialWithoutPaymentMethod bool
	RequireEmailVerification       bool
	RetryAllowedStatuses           []billing.PaymentStatus
	PendingPaymentTolerance        decimal.Decimal
	ManualGatewayInstructions      string

	DraftTTL time.Duration

	SwapRunnerSchedule  string
	SwapRunnerWorkers   int
	SwapRunnerBatchSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	billingCfg, err := loadBillingConfig()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Billing:       billingCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTCART_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTCART_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTCART_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTCART_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("TENANTCART_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTCART_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    int64(getEnvInt("TENANTCART_MAX_BODY_BYTES", 1<<20)),
		AllowedOrigins:  getEnvList("TENANTCART_ALLOWED_ORIGINS"),
		HealthPort:      getEnv("TENANTCART_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("TENANTCART_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("TENANTCART_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("TENANTCART_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("TENANTCART_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	cfg.MigrateOnStart = getEnvBool("TENANTCART_MIGRATE_ON_START", cfg.MigrateOnStart)

	if redisURL := getEnv("TENANTCART_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("TENANTCART_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("TENANTCART_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("TENANTCART_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

func loadBillingConfig() (BillingConfig, error) {
	cfg := BillingConfig{
		Currency:                       strings.ToUpper(getEnv("TENANTCART_CURRENCY", "USD")),
		CurrencyDecimals:               getEnvInt("TENANTCART_CURRENCY_DECIMALS", 2),
		TaxesEnabled:                   getEnvBool("TENANTCART_TAXES_ENABLED", false),
		TaxInclusive:                   getEnvBool("TENANTCART_TAX_INCLUSIVE", false),
		TaxRatesFile:                   getEnv("TENANTCART_TAX_RATES_FILE", ""),
		AllowTrialWithoutPaymentMethod: getEnvBool("TENANTCART_TRIAL_WITHOUT_PAYMENT_METHOD", false),
		RequireEmailVerification:       getEnvBool("TENANTCART_REQUIRE_EMAIL_VERIFICATION", false),
		ManualGatewayInstructions:      getEnv("TENANTCART_MANUAL_GATEWAY_INSTRUCTIONS", ""),
		DraftTTL:                       getEnvDuration("TENANTCART_DRAFT_TTL", 24*time.Hour),
		SwapRunnerSchedule:             getEnv("TENANTCART_SWAP_SCHEDULE", "@every 15m"),
		SwapRunnerWorkers:              getEnvInt("TENANTCART_SWAP_WORKERS", 4),
		SwapRunnerBatchSize:            getEnvInt("TENANTCART_SWAP_BATCH_SIZE", 100),
	}

	for _, s := range getEnvList("TENANTCART_RETRY_ALLOWED_STATUSES") {
		cfg.RetryAllowedStatuses = append(cfg.RetryAllowedStatuses, billing.PaymentStatus(strings.ToLower(s)))
	}
	if len(cfg.RetryAllowedStatuses) == 0 {
		cfg.RetryAllowedStatuses = []billing.PaymentStatus{billing.PaymentStatusPending}
	}

	tolerance, err := decimal.NewFromString(getEnv("TENANTCART_PENDING_PAYMENT_TOLERANCE", "0.01"))
	if err != nil {
		return cfg, fmt.Errorf("invalid TENANTCART_PENDING_PAYMENT_TOLERANCE: %w", err)
	}
	cfg.PendingPaymentTolerance = tolerance

	return cfg, nil
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TENANTCART_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TENANTCART_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTCART_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTCART_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTCART_OTEL_SERVICE_NAME", "tenantcart"),
		OTelServiceVersion: getEnv("TENANTCART_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTCART_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if err := c.Billing.Validate(); err != nil {
		return err
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Validate checks the billing settings
func (b BillingConfig) Validate() error {
	if len(b.Currency) != 3 {
		return fmt.Errorf("currency must be a three letter code, got %q", b.Currency)
	}
	if b.CurrencyDecimals < 0 || b.CurrencyDecimals > 4 {
		return fmt.Errorf("currency decimals must be between 0 and 4, got %d", b.CurrencyDecimals)
	}
	if b.TaxesEnabled && b.TaxRatesFile == "" {
		return fmt.Errorf("tax rates file is required when taxes are enabled")
	}
	if b.PendingPaymentTolerance.IsNegative() {
		return fmt.Errorf("pending payment tolerance must not be negative")
	}
	for _, s := range b.RetryAllowedStatuses {
		switch s {
		case billing.PaymentStatusPending, billing.PaymentStatusFailed, billing.PaymentStatusCancelled:
		default:
			return fmt.Errorf("payment status %q cannot be retried", s)
		}
	}
	if _, err := cron.ParseStandard(b.SwapRunnerSchedule); err != nil {
		return fmt.Errorf("invalid swap runner schedule %q: %w", b.SwapRunnerSchedule, err)
	}
	if b.SwapRunnerWorkers <= 0 || b.SwapRunnerBatchSize <= 0 {
		return fmt.Errorf("swap runner workers and batch size must be positive")
	}
	return nil
}

// CartSettings returns the pricing settings the cart engine receives
func (b BillingConfig) CartSettings() cart.Settings {
	return cart.Settings{
		Currency:                       b.Currency,
		Precision:                      int32(b.CurrencyDecimals),
		TaxesEnabled:                   b.TaxesEnabled,
		TaxInclusive:                   b.TaxInclusive,
		AllowTrialWithoutPaymentMethod: b.AllowTrialWithoutPaymentMethod,
		RetryAllowedStatuses:           append([]billing.PaymentStatus(nil), b.RetryAllowedStatuses...),
		PendingPaymentTolerance:        b.PendingPaymentTolerance,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated environment variable
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
