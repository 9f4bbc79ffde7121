package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleRegistry = `strategies:
  btc-momentum:
    name: BTC Momentum
    segment: crypto
    symbol: BTC/USDT
    enabled: true
  disabled-one:
    name: Disabled
    segment: crypto
    symbol: ETH/USDT
    enabled: false
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(writeRegistry(t, sampleRegistry))
	assert.NoError(t, err)

	t.Run("enabled strategy resolves", func(t *testing.T) {
		s, ok := registry.Strategy("btc-momentum")
		assert.True(t, ok)
		assert.Equal(t, "CRYPTO", s.Segment)
		assert.Equal(t, "BTC/USDT", s.Symbol)
	})

	t.Run("disabled strategy is hidden", func(t *testing.T) {
		_, ok := registry.Strategy("disabled-one")
		assert.False(t, ok)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, ok := registry.Strategy("nope")
		assert.False(t, ok)
	})

	t.Run("snapshot carries all entries", func(t *testing.T) {
		snap := registry.Snapshot()
		assert.Len(t, snap.Strategies, 2)
	})
}

func TestNewRegistryValidation(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewRegistry(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := NewRegistry("  ")
		assert.Error(t, err)
	})

	t.Run("strategy without segment rejected", func(t *testing.T) {
		path := writeRegistry(t, "strategies:\n  bad:\n    symbol: BTC/USDT\n    enabled: true\n")
		_, err := NewRegistry(path)
		assert.Error(t, err)
	})
}
