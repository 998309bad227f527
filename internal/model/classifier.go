package model

import (
	"fmt"
	"os"
	"strings"
)

// Classifier maps a normalized feature vector to a category index.
type Classifier interface {
	Predict(features []float64) (int, error)
}

// Distributor is implemented by classifiers that produce a probability
// distribution over categories before picking an index.
type Distributor interface {
	Classifier
	Distribution(features []float64) ([]float64, error)
}

// Sized is implemented by classifiers that know how many category indexes
// they can emit. LoadArtifacts uses it to check the decoder vocabulary.
type Sized interface {
	Outputs() int
}

// Kind selects the classifier implementation.
type Kind string

const (
	// KindCatBoost is a gradient-boosted oblivious tree ensemble in CatBoost
	// JSON export format.
	KindCatBoost Kind = "catboost"
	// KindSequence is a recurrent network evaluated on a single timestep.
	KindSequence Kind = "sequence"
)

// ParseKind accepts the configured kind name, with a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "catboost", "tree", "gbdt":
		return KindCatBoost, nil
	case "sequence", "lstm", "rnn":
		return KindSequence, nil
	default:
		return "", fmt.Errorf("unknown classifier kind %q (want catboost or sequence)", s)
	}
}

// LoadClassifier reads a classifier artifact of the given kind.
func LoadClassifier(kind Kind, path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s model: %w", kind, err)
	}
	switch kind {
	case KindCatBoost:
		return ParseCatBoost(data)
	case KindSequence:
		return ParseSequence(data)
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}
