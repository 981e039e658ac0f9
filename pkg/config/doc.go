// Package config loads and validates the service configuration from
// TENANTCART_* environment variables.
//
// Server settings:
//
//	TENANTCART_HOST="0.0.0.0"
//	TENANTCART_PORT="8080"
//	TENANTCART_HEALTH_PORT="9090"
//	TENANTCART_ALLOWED_ORIGINS="https://shop.example"
//
// Storage settings:
//
//	TENANTCART_POSTGRES_URL="postgres://localhost/tenantcart"
//	TENANTCART_MIGRATE_ON_START="true"
//	TENANTCART_REDIS_URL="redis://localhost:6379/0"
//
// Billing settings:
//
//	TENANTCART_CURRENCY="USD"
//	TENANTCART_CURRENCY_DECIMALS="2"
//	TENANTCART_TAXES_ENABLED="true"
//	TENANTCART_TAX_RATES_FILE="/etc/tenantcart/rates.yaml"
//	TENANTCART_RETRY_ALLOWED_STATUSES="pending,failed"
//	TENANTCART_PENDING_PAYMENT_TOLERANCE="0.01"
//	TENANTCART_SWAP_SCHEDULE="@every 15m"
//
// Observability settings:
//
//	TENANTCART_LOG_LEVEL="info"
//	TENANTCART_METRICS_ENABLED="true"
//	TENANTCART_OTEL_ENABLED="true"
//	TENANTCART_OTEL_ENDPOINT="otel-collector:4317"
//
// BillingConfig.CartSettings converts the billing section into the
// cart.Settings the pricing engine is built with.
package config
