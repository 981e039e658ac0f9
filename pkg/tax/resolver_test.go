package tax

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRates = `
rates:
  - title: US Sales Tax
    country: us
    rate: 5
  - title: NY State Tax
    country: US
    state: NY
    rate: 7
  - title: NYC Tax
    country: US
    state: NY
    city: New York
    rate: 8.875
  - title: Digital Goods
    country: US
    category: digital
    rate: 3
`

func TestParseRates(t *testing.T) {
	rates, err := ParseRates([]byte(sampleRates))
	require.NoError(t, err)
	require.Len(t, rates, 4)
	assert.Equal(t, "US", rates[0].Country)
	assert.Equal(t, "8.875", rates[2].Rate.String())

	_, err = ParseRates([]byte("rates:\n  - title: x\n    rate: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country is required")

	_, err = ParseRates([]byte("rates: [::"))
	require.Error(t, err)
}

func TestStaticResolver_ApplicableTaxRates(t *testing.T) {
	rates, err := ParseRates([]byte(sampleRates))
	require.NoError(t, err)
	r := NewStaticResolver(rates)
	ctx := context.Background()

	t.Run("most specific first", func(t *testing.T) {
		got, err := r.ApplicableTaxRates(ctx, "US", "", "NY", "New York")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "NYC Tax", got[0].Title)
		assert.Equal(t, "NY State Tax", got[1].Title)
		assert.Equal(t, "US Sales Tax", got[2].Title)
	})

	t.Run("state narrows", func(t *testing.T) {
		got, err := r.ApplicableTaxRates(ctx, "us", "default", "CA", "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "US Sales Tax", got[0].Title)
	})

	t.Run("category must match", func(t *testing.T) {
		got, err := r.ApplicableTaxRates(ctx, "US", "digital", "", "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Digital Goods", got[0].Title)
	})

	t.Run("no country means no tax", func(t *testing.T) {
		got, err := r.ApplicableTaxRates(ctx, "", "", "", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFileResolver_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  - title: VAT\n    country: DE\n    rate: 19\n"), 0o644))

	r, err := NewFileResolver(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	got, err := r.ApplicableTaxRates(ctx, "DE", "", "", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "19", got[0].Rate.String())

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  - title: VAT\n    country: DE\n    rate: 7\n"), 0o644))

	require.Eventually(t, func() bool {
		got, _ := r.ApplicableTaxRates(context.Background(), "DE", "", "", "")
		return len(got) == 1 && got[0].Rate.String() == "7"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestFileResolver_KeepsTableOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  - title: VAT\n    country: DE\n    rate: 19\n"), 0o644))

	r, err := NewFileResolver(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("rates: [::"), 0o644))
	require.Error(t, r.Reload())

	got, err := r.ApplicableTaxRates(context.Background(), "DE", "", "", "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
