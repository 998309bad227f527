package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/airquality.report/internal/testutil"
)

func TestSequenceDistribution(t *testing.T) {
	m, err := ParseSequence([]byte(testutil.SequenceJSON))
	require.NoError(t, err)
	assert.Equal(t, 5, m.Outputs())

	tests := []struct {
		name     string
		features []float64
		class    int
	}{
		{"strongly negative", []float64{-1.14, -1.18, -1.38}, 0},
		{"near zero", []float64{0, 0.09, 0}, 3},
		{"moderate", []float64{0.29, 0.18, 0.46}, 4},
		{"saturated", []float64{6, 4.3, 3.2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := m.Distribution(tt.features)
			require.NoError(t, err)
			require.Len(t, dist, 5)
			assert.InDelta(t, 1, floats.Sum(dist), 1e-9)
			for _, p := range dist {
				assert.True(t, p >= 0 && p <= 1)
			}

			class, err := m.Predict(tt.features)
			require.NoError(t, err)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, floats.MaxIdx(dist), class)
		})
	}
}

func TestSequenceWidthMismatch(t *testing.T) {
	m, err := ParseSequence([]byte(testutil.SequenceJSON))
	require.NoError(t, err)
	_, err = m.Predict([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrWidthMismatch))
}

func TestSequenceDenseActivations(t *testing.T) {
	m, err := ParseSequence([]byte(`{
		"input_size": 2,
		"layers": [
			{"type": "dense", "activation": "relu", "kernel": [[1, -1], [0, 0]], "bias": [0, 0]},
			{"type": "dense", "activation": "sigmoid", "kernel": [[1], [1]], "bias": [0]}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Outputs())

	dist, err := m.Distribution([]float64{2, 5})
	require.NoError(t, err)
	// relu([2, -2]) = [2, 0]; sigmoid(2).
	assert.InDelta(t, 1/(1+math.Exp(-2)), dist[0], 1e-12)
}

func TestParseSequenceErrors(t *testing.T) {
	tests := map[string]string{
		"no input size":    `{"layers": [{"type": "dense", "kernel": [[1]], "bias": [0]}]}`,
		"no layers":        `{"input_size": 1}`,
		"unknown type":     `{"input_size": 1, "layers": [{"type": "gru", "units": 1}]}`,
		"kernel rows":      `{"input_size": 2, "layers": [{"type": "dense", "kernel": [[1]], "bias": [0]}]}`,
		"activation":       `{"input_size": 1, "layers": [{"type": "dense", "activation": "swish", "kernel": [[1]], "bias": [0]}]}`,
		"lstm bias":        `{"input_size": 1, "layers": [{"type": "lstm", "units": 1, "kernel": [[1, 1, 1, 1]], "recurrent_kernel": [[0, 0, 0, 0]], "bias": [0]}]}`,
		"lstm after dense": `{"input_size": 1, "layers": [{"type": "dense", "kernel": [[1]], "bias": [0]}, {"type": "lstm", "units": 1, "kernel": [[1, 1, 1, 1]], "recurrent_kernel": [[0, 0, 0, 0]], "bias": [0, 0, 0, 0]}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSequence([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"catboost": KindCatBoost,
		" Tree ":   KindCatBoost,
		"LSTM":     KindSequence,
		"sequence": KindSequence,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("svm")
	assert.Error(t, err)
}
