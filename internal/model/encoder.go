package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrClassOutOfRange is returned when a classifier index has no label.
var ErrClassOutOfRange = errors.New("class index out of range")

// LabelEncoder maps classifier output indexes back to category names. The
// vocabulary is fixed at load time.
type LabelEncoder struct {
	classes []string
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

// NewLabelEncoder builds an encoder over classes, in index order.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, errors.New("label encoder has no classes")
	}
	seen := make(map[string]struct{}, len(classes))
	for i, c := range classes {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("label encoder class %d is empty", i)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("label encoder class %q is duplicated", c)
		}
		seen[c] = struct{}{}
	}
	return &LabelEncoder{classes: append([]string(nil), classes...)}, nil
}

// ParseLabelEncoder decodes a {"classes": [...]} artifact.
func ParseLabelEncoder(data []byte) (*LabelEncoder, error) {
	var f encoderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse label encoder JSON: %w", err)
	}
	return NewLabelEncoder(f.Classes)
}

// LoadLabelEncoder reads and parses a label encoder artifact from disk.
func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label encoder: %w", err)
	}
	return ParseLabelEncoder(data)
}

// Decode returns the label for index i.
func (e *LabelEncoder) Decode(i int) (string, error) {
	if i < 0 || i >= len(e.classes) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrClassOutOfRange, i, len(e.classes))
	}
	return e.classes[i], nil
}

// Len is the vocabulary size.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Classes returns a copy of the vocabulary in index order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}
