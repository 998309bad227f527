// Package model loads the pretrained inference artifacts: the feature scaler,
// the label encoder and the classifier (CatBoost oblivious trees or a
// recurrent sequence model). Artifacts are read-only once loaded.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
)

// ErrWidthMismatch is returned when a feature vector does not match the
// width an artifact was fitted on.
var ErrWidthMismatch = errors.New("feature width mismatch")

// Scaler is a fitted standard scaler: (x - mean) / scale per feature.
type Scaler struct {
	mean  []float64
	scale []float64
}

type scalerFile struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	Var   []float64 `json:"var"`
}

// NewScaler builds a scaler from fitted means and scales. A zero scale is
// treated as 1 so constant features pass through centred but unscaled.
func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) == 0 {
		return nil, errors.New("scaler has no features")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("%w: %d means, %d scales", ErrWidthMismatch, len(mean), len(scale))
	}
	s := &Scaler{
		mean:  append([]float64(nil), mean...),
		scale: make([]float64, len(scale)),
	}
	for i, v := range scale {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
			return nil, fmt.Errorf("invalid scale %v for feature %d", v, i)
		case v == 0:
			s.scale[i] = 1
		default:
			s.scale[i] = v
		}
	}
	for i, v := range s.mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid mean %v for feature %d", v, i)
		}
	}
	return s, nil
}

// ParseScaler decodes a scaler artifact. Either "scale" or "var" must be
// present; when only the variance is stored the scale is its square root.
func ParseScaler(data []byte) (*Scaler, error) {
	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scaler JSON: %w", err)
	}
	scale := f.Scale
	if len(scale) == 0 && len(f.Var) > 0 {
		scale = make([]float64, len(f.Var))
		for i, v := range f.Var {
			if v < 0 {
				return nil, fmt.Errorf("negative variance %v for feature %d", v, i)
			}
			scale[i] = math.Sqrt(v)
		}
	}
	return NewScaler(f.Mean, scale)
}

// LoadScaler reads and parses a scaler artifact from disk.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler: %w", err)
	}
	return ParseScaler(data)
}

// Width is the number of features the scaler was fitted on.
func (s *Scaler) Width() int {
	return len(s.mean)
}

// Transform returns a new, normalized copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d features, scaler expects %d", ErrWidthMismatch, len(x), len(s.mean))
	}
	out := make([]float64, len(x))
	floats.SubTo(out, x, s.mean)
	floats.Div(out, s.scale)
	return out, nil
}
