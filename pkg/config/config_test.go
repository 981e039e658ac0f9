package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", want: true},
		{name: "one", envValue: "1", want: true},
		{name: "upper case", envValue: "TRUE", want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "unset uses default", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}

	t.Setenv("TEST_INT", "forty-two")
	if got := getEnvInt("TEST_INT", 1); got != 1 {
		t.Errorf("getEnvInt() with invalid value = %v, want default 1", got)
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}

	t.Setenv("TEST_DURATION", "soon")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " pending, failed ,,")
	got := getEnvList("TEST_LIST")
	if len(got) != 2 || got[0] != "pending" || got[1] != "failed" {
		t.Errorf("getEnvList() = %q, want [pending failed]", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.HealthPort != "9090" {
		t.Errorf("unexpected ports %s/%s", cfg.Server.Port, cfg.Server.HealthPort)
	}
	if cfg.Billing.Currency != "USD" || cfg.Billing.CurrencyDecimals != 2 {
		t.Errorf("unexpected currency %s/%d", cfg.Billing.Currency, cfg.Billing.CurrencyDecimals)
	}
	if !cfg.Billing.PendingPaymentTolerance.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("PendingPaymentTolerance = %s, want 0.01", cfg.Billing.PendingPaymentTolerance)
	}
	if len(cfg.Billing.RetryAllowedStatuses) != 1 || cfg.Billing.RetryAllowedStatuses[0] != billing.PaymentStatusPending {
		t.Errorf("RetryAllowedStatuses = %v, want [pending]", cfg.Billing.RetryAllowedStatuses)
	}
	if cfg.Billing.SwapRunnerSchedule != "@every 15m" {
		t.Errorf("SwapRunnerSchedule = %q", cfg.Billing.SwapRunnerSchedule)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.Observability.LogLevel)
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("TENANTCART_PORT", "8000")
	t.Setenv("TENANTCART_POSTGRES_URL", "postgres://db/tenantcart")
	t.Setenv("TENANTCART_CURRENCY", "eur")
	t.Setenv("TENANTCART_CURRENCY_DECIMALS", "3")
	t.Setenv("TENANTCART_TAXES_ENABLED", "true")
	t.Setenv("TENANTCART_TAX_RATES_FILE", "/etc/tenantcart/rates.yaml")
	t.Setenv("TENANTCART_RETRY_ALLOWED_STATUSES", "pending,failed")
	t.Setenv("TENANTCART_PENDING_PAYMENT_TOLERANCE", "0.5")
	t.Setenv("TENANTCART_ALLOWED_ORIGINS", "https://shop.example")
	t.Setenv("TENANTCART_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("Port = %s", cfg.Server.Port)
	}
	if cfg.Storage.PostgresURL != "postgres://db/tenantcart" {
		t.Errorf("PostgresURL = %s", cfg.Storage.PostgresURL)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	settings := cfg.Billing.CartSettings()
	if settings.Currency != "EUR" || settings.Precision != 3 || !settings.TaxesEnabled {
		t.Errorf("unexpected cart settings %+v", settings)
	}
	if len(settings.RetryAllowedStatuses) != 2 || settings.RetryAllowedStatuses[1] != billing.PaymentStatusFailed {
		t.Errorf("RetryAllowedStatuses = %v", settings.RetryAllowedStatuses)
	}
	if settings.PendingPaymentTolerance.String() != "0.5" {
		t.Errorf("PendingPaymentTolerance = %s", settings.PendingPaymentTolerance)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoadConfig_InvalidTolerance(t *testing.T) {
	t.Setenv("TENANTCART_PENDING_PAYMENT_TOLERANCE", "a cent")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error for an invalid tolerance")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Storage: storage.Config{PostgresURL: "postgres://localhost/tenantcart"},
			Billing: BillingConfig{
				Currency:                "USD",
				CurrencyDecimals:        2,
				RetryAllowedStatuses:    []billing.PaymentStatus{billing.PaymentStatusPending},
				PendingPaymentTolerance: decimal.RequireFromString("0.01"),
				SwapRunnerSchedule:      "@every 15m",
				SwapRunnerWorkers:       4,
				SwapRunnerBatchSize:     100,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: "must be different"},
		{name: "no postgres", mutate: func(c *Config) { c.Storage.PostgresURL = "" }, wantErr: "postgres URL"},
		{name: "bad currency", mutate: func(c *Config) { c.Billing.Currency = "DOLLAR" }, wantErr: "three letter"},
		{name: "too many decimals", mutate: func(c *Config) { c.Billing.CurrencyDecimals = 8 }, wantErr: "between 0 and 4"},
		{name: "taxes without rates", mutate: func(c *Config) { c.Billing.TaxesEnabled = true }, wantErr: "tax rates file"},
		{name: "negative tolerance", mutate: func(c *Config) {
			c.Billing.PendingPaymentTolerance = decimal.RequireFromString("-1")
		}, wantErr: "tolerance"},
		{name: "completed payments are final", mutate: func(c *Config) {
			c.Billing.RetryAllowedStatuses = []billing.PaymentStatus{billing.PaymentStatusCompleted}
		}, wantErr: "cannot be retried"},
		{name: "bad schedule", mutate: func(c *Config) { c.Billing.SwapRunnerSchedule = "every so often" }, wantErr: "schedule"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "tenantcart"
		}, wantErr: "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
