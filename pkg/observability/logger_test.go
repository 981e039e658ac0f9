package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithCustomer(42).WithMembership(7).WithError(errors.New("boom")).Infof("built %s cart", "upgrade")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "built upgrade cart", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(42), entry["customer_id"])
	assert.Equal(t, float64(7), entry["membership_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_ZeroIDsAreOmitted(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithCustomer(0).WithMembership(0).WithError(nil).Info("anonymous")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "customer_id")
	assert.NotContains(t, entry, "membership_id")
	assert.NotContains(t, entry, "error")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess-9")

	FromContext(ctx).Info("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "sess-9", entry["session_id"])
	assert.Equal(t, "sess-9", GetSessionID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}
