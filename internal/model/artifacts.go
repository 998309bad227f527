package model

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/security"
)

// Paths locates the three artifacts. Relative paths are resolved against Dir,
// and every resolved path must stay inside Dir when Dir is set.
type Paths struct {
	Dir     string
	Scaler  string
	Encoder string
	Model   string
	Kind    Kind
}

// Artifacts is the loaded, immutable inference bundle.
type Artifacts struct {
	Kind       Kind
	Scaler     *Scaler
	Encoder    *LabelEncoder
	Classifier Classifier
}

// LoadArtifacts loads the scaler, label encoder and classifier. All problems
// are collected so a misconfigured deployment reports every bad artifact at
// once.
func LoadArtifacts(p Paths) (*Artifacts, error) {
	var result *multierror.Error

	scalerPath, err := p.resolve(p.Scaler)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("scaler: %w", err))
	}
	encoderPath, err := p.resolve(p.Encoder)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("label encoder: %w", err))
	}
	modelPath, err := p.resolve(p.Model)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("classifier: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	a := &Artifacts{Kind: p.Kind}
	if a.Scaler, err = LoadScaler(scalerPath); err != nil {
		result = multierror.Append(result, fmt.Errorf("scaler %s: %w", scalerPath, err))
	}
	if a.Encoder, err = LoadLabelEncoder(encoderPath); err != nil {
		result = multierror.Append(result, fmt.Errorf("label encoder %s: %w", encoderPath, err))
	}
	if a.Classifier, err = LoadClassifier(p.Kind, modelPath); err != nil {
		result = multierror.Append(result, fmt.Errorf("classifier %s: %w", modelPath, err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	if err := a.check(); err != nil {
		return nil, err
	}

	monitoring.Logf("loaded %s artifacts: scaler=%s encoder=%s model=%s (%s)",
		p.Kind, scalerPath, encoderPath, modelPath, a.Summary())
	return a, nil
}

// Summary describes the classifier shape for logs.
func (a *Artifacts) Summary() string {
	classes := fmt.Sprintf("%d classes", a.Encoder.Len())
	switch c := a.Classifier.(type) {
	case *CatBoostModel:
		return fmt.Sprintf("%d trees, %s", c.Trees(), classes)
	case *SequenceModel:
		return fmt.Sprintf("%d outputs, %s", c.Outputs(), classes)
	}
	return classes
}

// check verifies the three artifacts agree with each other and with the
// reading feature layout.
func (a *Artifacts) check() error {
	var result *multierror.Error
	if w := a.Scaler.Width(); w != reading.FeatureCount {
		result = multierror.Append(result, fmt.Errorf("%w: scaler fitted on %d features, readings have %d",
			ErrWidthMismatch, w, reading.FeatureCount))
	}
	if s, ok := a.Classifier.(Sized); ok {
		n := s.Outputs()
		_, dist := a.Classifier.(Distributor)
		// A distribution must cover the vocabulary exactly; index-only
		// classifiers may use a subset of it.
		if n > a.Encoder.Len() || (dist && n != a.Encoder.Len()) {
			result = multierror.Append(result, fmt.Errorf("%w: classifier emits %d classes, encoder knows %d",
				ErrClassOutOfRange, n, a.Encoder.Len()))
		}
	}
	return result.ErrorOrNil()
}

func (p Paths) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path not configured")
	}
	if p.Dir == "" {
		return filepath.Clean(path), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.Dir, path)
	}
	if err := security.ValidatePathWithinDirectory(path, p.Dir); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
