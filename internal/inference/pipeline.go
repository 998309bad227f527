// Package inference runs readings through the loaded artifacts: scale, then
// classify, then decode. It keeps no state between calls.
package inference

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/airquality.report/internal/model"
	"github.com/banshee-data/airquality.report/internal/reading"
)

// Prediction is one decoded classifier output. Probabilities is set only for
// classifiers that expose a distribution, indexed like the vocabulary.
type Prediction struct {
	Index         int       `json:"index"`
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities,omitempty"`
}

// Pipeline is safe for concurrent use; the artifacts are never mutated.
type Pipeline struct {
	kind       model.Kind
	scaler     *model.Scaler
	classifier model.Classifier
	encoder    *model.LabelEncoder
}

// NewPipeline wraps loaded artifacts.
func NewPipeline(a *model.Artifacts) (*Pipeline, error) {
	if a == nil || a.Scaler == nil || a.Classifier == nil || a.Encoder == nil {
		return nil, fmt.Errorf("incomplete artifacts")
	}
	return &Pipeline{
		kind:       a.Kind,
		scaler:     a.Scaler,
		classifier: a.Classifier,
		encoder:    a.Encoder,
	}, nil
}

// Kind is the classifier backend.
func (p *Pipeline) Kind() model.Kind { return p.kind }

// Classes is the closed label vocabulary, in index order.
func (p *Pipeline) Classes() []string { return p.encoder.Classes() }

// Predict classifies one reading. Values are not range checked.
func (p *Pipeline) Predict(r reading.Reading) (Prediction, error) {
	scaled, err := p.scaler.Transform(r.Features())
	if err != nil {
		return Prediction{}, fmt.Errorf("scale %s: %w", r, err)
	}

	var pred Prediction
	if d, ok := p.classifier.(model.Distributor); ok {
		// One forward pass: the index is the argmax of the distribution.
		dist, err := d.Distribution(scaled)
		if err != nil {
			return Prediction{}, fmt.Errorf("classify %s: %w", r, err)
		}
		if len(dist) == 0 {
			return Prediction{}, fmt.Errorf("classify %s: empty distribution", r)
		}
		pred.Probabilities = dist
		pred.Index = floats.MaxIdx(dist)
	} else if pred.Index, err = p.classifier.Predict(scaled); err != nil {
		return Prediction{}, fmt.Errorf("classify %s: %w", r, err)
	}
	if pred.Label, err = p.encoder.Decode(pred.Index); err != nil {
		return Prediction{}, fmt.Errorf("decode %s: %w", r, err)
	}
	return pred, nil
}
