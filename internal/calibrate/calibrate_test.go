package calibrate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, m Manifest) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "calibrators.json")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCalibrate_PlattArtifactApplied(t *testing.T) {
	path := writeManifest(t, Manifest{Artifacts: []Artifact{
		{Regime: signal.RegimeBull, ModelID: "platt-bull-v1", Method: MethodPlatt, PlattA: 2.0, PlattB: 0.0, ECE: 0.02, Brier: 0.1},
	}})

	c, err := LoadManifest(path, DefaultRejectionGuard())
	require.NoError(t, err)

	out := c.Calibrate(0.0, signal.RegimeBull)
	assert.InDelta(t, 0.5, out.Probability, 1e-9)
	assert.False(t, out.Fallback)
	assert.Equal(t, "platt-bull-v1", out.ModelID)
}

func TestCalibrate_IsotonicInterpolates(t *testing.T) {
	path := writeManifest(t, Manifest{Artifacts: []Artifact{
		{Regime: signal.RegimeRange, ModelID: "iso-range-v1", Method: MethodIsotonic, ECE: 0.01, Brier: 0.1,
			IsotonicMap: []IsotonicPoint{{Raw: -1, Probability: 0.1}, {Raw: 0, Probability: 0.5}, {Raw: 1, Probability: 0.9}}},
	}})

	c, err := LoadManifest(path, DefaultRejectionGuard())
	require.NoError(t, err)

	out := c.Calibrate(0.5, signal.RegimeRange)
	assert.InDelta(t, 0.7, out.Probability, 1e-9)
}

func TestCalibrate_PoorFitRejectedFallsBackToRescale(t *testing.T) {
	path := writeManifest(t, Manifest{Artifacts: []Artifact{
		{Regime: signal.RegimeCalm, ModelID: "bad-fit", Method: MethodPlatt, PlattA: 1, PlattB: 0, ECE: 0.5, Brier: 0.5},
	}})

	c, err := LoadManifest(path, DefaultRejectionGuard())
	require.NoError(t, err)

	out := c.Calibrate(0.5, signal.RegimeCalm)
	assert.True(t, out.Fallback)
	assert.InDelta(t, 0.75, out.Probability, 1e-9)
}

func TestCalibrate_MissingRegimeFallsBack(t *testing.T) {
	path := writeManifest(t, Manifest{Artifacts: []Artifact{
		{Regime: signal.RegimeBull, ModelID: "m", Method: MethodPlatt, ECE: 0.01, Brier: 0.01},
	}})

	c, err := LoadManifest(path, DefaultRejectionGuard())
	require.NoError(t, err)

	out := c.Calibrate(1.0, signal.RegimeStress)
	assert.True(t, out.Fallback)
	assert.Equal(t, signal.RegimeStress, out.Regime)
	assert.InDelta(t, 1.0, out.Probability, 1e-9)
}
