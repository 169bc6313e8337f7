// Package calibrate implements the regime-partitioned confidence
// calibrator (C7): a Platt (logistic) or Isotonic mapping from an
// ensemble's raw score to a probability, loaded from a JSON artifact
// manifest produced offline per regime.
//
// Grounded on the teacher's config-artifact loading idiom
// (internal/config/regime/weights.go loads a YAML preset file per
// regime); this swaps to JSON because a calibrator is a numeric model,
// not a weight table, matching original_source's calibrators which
// serialize as a metadata.json plus opaque model parameters.
package calibrate

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/quantcandle/signalengine/internal/signal"
)

// Method identifies which calibration function an artifact encodes.
type Method string

const (
	MethodPlatt    Method = "platt"
	MethodIsotonic Method = "isotonic"
)

// IsotonicPoint is one (rawScore, calibratedProbability) control point;
// intermediate values are linearly interpolated between the bracketing
// points.
type IsotonicPoint struct {
	Raw         float64 `json:"raw"`
	Probability float64 `json:"probability"`
}

// Artifact is one regime's calibrator, as produced by an offline fit.
type Artifact struct {
	Regime      signal.Regime   `json:"regime"`
	ModelID     string          `json:"model_id"`
	Method      Method          `json:"method"`
	PlattA      float64         `json:"platt_a,omitempty"`
	PlattB      float64         `json:"platt_b,omitempty"`
	IsotonicMap []IsotonicPoint `json:"isotonic_map,omitempty"`
	ECE         float64         `json:"ece"`   // expected calibration error, computed at fit time
	Brier       float64         `json:"brier"` // Brier score, computed at fit time
}

// Manifest is the on-disk JSON document: one Artifact per regime.
type Manifest struct {
	Artifacts []Artifact `json:"artifacts"`
}

// RejectionGuard holds the fit-quality thresholds an artifact must clear
// to be trusted; an artifact failing either is treated as absent.
type RejectionGuard struct {
	MaxECE   float64
	MaxBrier float64
}

// DefaultRejectionGuard returns the spec-default quality floor.
func DefaultRejectionGuard() RejectionGuard {
	return RejectionGuard{MaxECE: 0.1, MaxBrier: 0.25}
}

// Calibrator resolves a regime to its artifact and applies it.
type Calibrator struct {
	byRegime map[signal.Regime]Artifact
	guard    RejectionGuard
}

// LoadManifest reads and parses a calibrator manifest from path.
func LoadManifest(path string, guard RejectionGuard) (*Calibrator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibrator manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse calibrator manifest %s: %w", path, err)
	}

	byRegime := make(map[signal.Regime]Artifact, len(m.Artifacts))
	for _, a := range m.Artifacts {
		if a.ECE > guard.MaxECE || a.Brier > guard.MaxBrier {
			log.Warn().Str("regime", string(a.Regime)).Float64("ece", a.ECE).Float64("brier", a.Brier).
				Msg("calibrator artifact rejected for poor fit quality")
			continue
		}
		byRegime[a.Regime] = a
	}

	return &Calibrator{byRegime: byRegime, guard: guard}, nil
}

// Calibrate maps a raw ensemble score in [-1, 1] to a calibrated
// probability in [0, 1]. When no artifact exists for the active regime
// — either never fit, or rejected by the quality guard — it falls back
// to a raw min-max rescale and logs a warning; it does not error, since
// a missing calibrator must not block recommendation generation.
func (c *Calibrator) Calibrate(rawScore float64, r signal.Regime) signal.CalibratedConfidence {
	artifact, ok := c.byRegime[r]
	if !ok {
		log.Warn().Str("regime", string(r)).Msg("no calibrator artifact for regime, falling back to raw rescale")
		return signal.CalibratedConfidence{
			Probability: rescale(rawScore),
			Regime:      r,
			Fallback:    true,
		}
	}

	var prob float64
	switch artifact.Method {
	case MethodPlatt:
		prob = platt(rawScore, artifact.PlattA, artifact.PlattB)
	case MethodIsotonic:
		prob = isotonic(rawScore, artifact.IsotonicMap)
	default:
		prob = rescale(rawScore)
	}

	return signal.CalibratedConfidence{
		Probability: prob,
		Regime:      r,
		ModelID:     artifact.ModelID,
	}
}

func rescale(raw float64) float64 {
	v := (raw + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func platt(raw, a, b float64) float64 {
	z := a*raw + b
	return 1.0 / (1.0 + math.Exp(-z))
}

func isotonic(raw float64, points []IsotonicPoint) float64 {
	if len(points) == 0 {
		return rescale(raw)
	}
	if raw <= points[0].Raw {
		return points[0].Probability
	}
	last := points[len(points)-1]
	if raw >= last.Raw {
		return last.Probability
	}
	for i := 1; i < len(points); i++ {
		if raw <= points[i].Raw {
			prev := points[i-1]
			curr := points[i]
			frac := (raw - prev.Raw) / (curr.Raw - prev.Raw)
			return prev.Probability + frac*(curr.Probability-prev.Probability)
		}
	}
	return last.Probability
}
