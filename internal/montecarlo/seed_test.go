package montecarlo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSeed_Deterministic(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	first := DeriveSeed(date, "BTCUSDT")
	second := DeriveSeed(date, "BTCUSDT")
	require.Equal(t, first, second, "same date+symbol must always yield the same seed")
}

func TestDeriveSeed_CaseInsensitiveSymbol(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	upper := DeriveSeed(date, "ETHUSDT")
	lower := DeriveSeed(date, "ethusdt")
	assert.Equal(t, upper, lower)
}

func TestDeriveSeed_DiffersByDate(t *testing.T) {
	d1 := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)

	assert.NotEqual(t, DeriveSeed(d1, "BTCUSDT"), DeriveSeed(d2, "BTCUSDT"))
}

func TestDeriveSeed_WithinMersenne31Bound(t *testing.T) {
	date := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	seed := DeriveSeed(date, "SOLUSDT")

	assert.GreaterOrEqual(t, seed, int64(0))
	assert.Less(t, seed, int64((1<<31)-1))
}

func TestDeriveSeed_TimeOfDayIgnored(t *testing.T) {
	morning := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, DeriveSeed(morning, "BTCUSDT"), DeriveSeed(evening, "BTCUSDT"))
}
