package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CatBoostModel evaluates a CatBoost oblivious tree ensemble exported with
// save_model(format="json"). Only float feature splits are supported.
type CatBoostModel struct {
	trees        []obliviousTree
	dimension    int
	scale        float64
	bias         []float64
	classToLabel []int
	minFeatures  int
}

type obliviousTree struct {
	splits     []treeSplit
	leafValues []float64
}

type treeSplit struct {
	feature int
	border  float64
}

type catboostFile struct {
	ModelInfo      map[string]json.RawMessage `json:"model_info"`
	ObliviousTrees []struct {
		LeafValues []float64 `json:"leaf_values"`
		Splits     []struct {
			Border            float64 `json:"border"`
			FloatFeatureIndex *int    `json:"float_feature_index"`
			SplitType         string  `json:"split_type"`
		} `json:"splits"`
	} `json:"oblivious_trees"`
	ScaleAndBias []json.RawMessage `json:"scale_and_bias"`
}

type classParams struct {
	ClassToLabel []float64 `json:"class_to_label"`
}

// ParseCatBoost decodes a CatBoost JSON model.
func ParseCatBoost(data []byte) (*CatBoostModel, error) {
	var f catboostFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catboost JSON: %w", err)
	}
	if len(f.ObliviousTrees) == 0 {
		return nil, errors.New("catboost model has no trees")
	}

	m := &CatBoostModel{scale: 1}
	for ti, t := range f.ObliviousTrees {
		depth := len(t.Splits)
		leaves := 1 << depth
		if len(t.LeafValues) == 0 || len(t.LeafValues)%leaves != 0 {
			return nil, fmt.Errorf("tree %d: %d leaf values do not fit depth %d", ti, len(t.LeafValues), depth)
		}
		dim := len(t.LeafValues) / leaves
		if m.dimension == 0 {
			m.dimension = dim
		} else if dim != m.dimension {
			return nil, fmt.Errorf("tree %d: dimension %d differs from %d", ti, dim, m.dimension)
		}

		tree := obliviousTree{leafValues: t.LeafValues, splits: make([]treeSplit, depth)}
		for si, s := range t.Splits {
			if s.SplitType != "" && s.SplitType != "FloatFeature" {
				return nil, fmt.Errorf("tree %d split %d: unsupported split type %q", ti, si, s.SplitType)
			}
			if s.FloatFeatureIndex == nil || *s.FloatFeatureIndex < 0 {
				return nil, fmt.Errorf("tree %d split %d: missing float_feature_index", ti, si)
			}
			tree.splits[si] = treeSplit{feature: *s.FloatFeatureIndex, border: s.Border}
			if *s.FloatFeatureIndex+1 > m.minFeatures {
				m.minFeatures = *s.FloatFeatureIndex + 1
			}
		}
		m.trees = append(m.trees, tree)
	}

	bias, scale, err := parseScaleAndBias(f.ScaleAndBias, m.dimension)
	if err != nil {
		return nil, err
	}
	m.bias, m.scale = bias, scale

	if raw, ok := f.ModelInfo["class_params"]; ok {
		labels, err := parseClassToLabel(raw)
		if err != nil {
			return nil, err
		}
		m.classToLabel = labels
	}
	if n := len(m.classToLabel); n > 0 {
		want := m.dimension
		if m.dimension == 1 {
			want = 2
		}
		if n != want {
			return nil, fmt.Errorf("class_to_label has %d entries, model has %d classes", n, want)
		}
	}
	return m, nil
}

func parseScaleAndBias(raw []json.RawMessage, dim int) ([]float64, float64, error) {
	bias := make([]float64, dim)
	if len(raw) == 0 {
		return bias, 1, nil
	}
	if len(raw) != 2 {
		return nil, 0, fmt.Errorf("scale_and_bias: expected 2 entries, got %d", len(raw))
	}
	var scale float64
	if err := json.Unmarshal(raw[0], &scale); err != nil {
		return nil, 0, fmt.Errorf("scale_and_bias scale: %w", err)
	}
	var list []float64
	if err := json.Unmarshal(raw[1], &list); err == nil {
		if len(list) != dim {
			return nil, 0, fmt.Errorf("scale_and_bias: %d biases for dimension %d", len(list), dim)
		}
		copy(bias, list)
		return bias, scale, nil
	}
	var single float64
	if err := json.Unmarshal(raw[1], &single); err != nil {
		return nil, 0, fmt.Errorf("scale_and_bias bias: %w", err)
	}
	for i := range bias {
		bias[i] = single
	}
	return bias, scale, nil
}

// parseClassToLabel accepts class_params either as an object or as the
// JSON-encoded string CatBoost writes into model_info.
func parseClassToLabel(raw json.RawMessage) ([]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("class_params: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	var p classParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("class_params: %w", err)
	}
	out := make([]int, len(p.ClassToLabel))
	for i, v := range p.ClassToLabel {
		if v != math.Trunc(v) || v < 0 {
			return nil, fmt.Errorf("class_params: label %v is not a class index", v)
		}
		out[i] = int(v)
	}
	return out, nil
}

// RawScores returns scale*sum(leaf values)+bias per model dimension.
func (m *CatBoostModel) RawScores(features []float64) ([]float64, error) {
	if len(features) < m.minFeatures {
		return nil, fmt.Errorf("%w: got %d features, trees split on feature %d", ErrWidthMismatch, len(features), m.minFeatures-1)
	}
	scores := make([]float64, m.dimension)
	for _, t := range m.trees {
		leaf := 0
		for depth, s := range t.splits {
			if features[s.feature] > s.border {
				leaf |= 1 << depth
			}
		}
		floats.Add(scores, t.leafValues[leaf*m.dimension:(leaf+1)*m.dimension])
	}
	floats.Scale(m.scale, scores)
	floats.Add(scores, m.bias)
	return scores, nil
}

// Predict returns the class index CatBoost's predict() would return: the
// arg-max raw score (or raw > 0 for a single-dimension model) mapped through
// class_to_label when present.
func (m *CatBoostModel) Predict(features []float64) (int, error) {
	scores, err := m.RawScores(features)
	if err != nil {
		return 0, err
	}
	var idx int
	if m.dimension == 1 {
		if scores[0] > 0 {
			idx = 1
		}
	} else {
		idx = floats.MaxIdx(scores)
	}
	if len(m.classToLabel) > 0 {
		return m.classToLabel[idx], nil
	}
	return idx, nil
}

// Outputs is one more than the largest class index Predict can return.
func (m *CatBoostModel) Outputs() int {
	if len(m.classToLabel) > 0 {
		max := 0
		for _, l := range m.classToLabel {
			if l > max {
				max = l
			}
		}
		return max + 1
	}
	if m.dimension == 1 {
		return 2
	}
	return m.dimension
}

// Trees is the number of trees in the ensemble.
func (m *CatBoostModel) Trees() int {
	return len(m.trees)
}
