// Package testutil provides shared test helpers and fixtures: a small set of
// inference artifacts with known outputs and a matching sheet export.
//
// The fixtures are plain strings so any package can use them without an
// import cycle back into the packages under test.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Fixture file names written by WriteArtifacts.
const (
	ScalerFile   = "scaler_ispu.json"
	EncoderFile  = "label_encoder_ispu.json"
	CatBoostFile = "catboost_ispu_model.json"
	SequenceFile = "lstm_ispu_weights.json"
)

// ScalerJSON is a standard scaler fitted on PM2.5, PM10 and CO.
const ScalerJSON = `{"mean": [80, 130, 9000], "scale": [70, 110, 6500]}`

// EncoderJSON is the label vocabulary in encoder index order.
const EncoderJSON = `{"classes": ["Baik", "Berbahaya", "Sangat Tidak Sehat", "Sedang", "Tidak Sehat"]}`

// Classes mirrors EncoderJSON.
var Classes = []string{"Baik", "Berbahaya", "Sangat Tidak Sehat", "Sedang", "Tidak Sehat"}

// CatBoostJSON is a three-tree, depth-two multiclass ensemble.
const CatBoostJSON = `{
  "model_info": {
    "catboost_model_info": "{}",
    "class_params": "{\"class_label_type\":\"Integer\",\"class_to_label\":[0,1,2,3,4],\"class_names\":[0,1,2,3,4]}"
  },
  "features_info": {
    "float_features": [
      {"feature_index": 0, "flat_feature_index": 0, "nan_value_treatment": "AsIs"},
      {"feature_index": 1, "flat_feature_index": 1, "nan_value_treatment": "AsIs"},
      {"feature_index": 2, "flat_feature_index": 2, "nan_value_treatment": "AsIs"}
    ]
  },
  "oblivious_trees": [
    {
      "splits": [
        {"border": -0.351, "float_feature_index": 0, "split_index": 0, "split_type": "FloatFeature"},
        {"border": 1.006, "float_feature_index": 0, "split_index": 1, "split_type": "FloatFeature"}
      ],
      "leaf_values": [2, -1, -1, 0, -1, 0, -1, -1, 1.5, 0.5, 0, 0, 0, 0, 0, -1, 0, 0.5, 0, 1.5]
    },
    {
      "splits": [
        {"border": 2.45, "float_feature_index": 0, "split_index": 2, "split_type": "FloatFeature"},
        {"border": 1.231, "float_feature_index": 2, "split_index": 3, "split_type": "FloatFeature"}
      ],
      "leaf_values": [0, 0, 0, 0, 0, -1, 1, 2, -0.5, 0, -1, 0.5, 1, 0, 1, -2, 3, 1, -1, 0]
    },
    {
      "splits": [
        {"border": 0.2, "float_feature_index": 1, "split_index": 4, "split_type": "FloatFeature"},
        {"border": 0.154, "float_feature_index": 2, "split_index": 5, "split_type": "FloatFeature"}
      ],
      "leaf_values": [0.5, -0.5, -0.5, 0, -0.5, -0.5, 0, 0, 0.5, 0.5, -0.5, 0, 0, 0.5, 0.5, -1, 0.5, 0.5, 0, 1]
    }
  ],
  "scale_and_bias": [1, [0, 0, 0, 0, 0]]
}`

// SequenceJSON is a one-layer LSTM with a softmax head. The input and output
// gates saturate open, so the hidden state tracks tanh of the summed scaled
// features.
const SequenceJSON = `{
  "input_size": 3,
  "layers": [
    {
      "type": "lstm",
      "units": 2,
      "kernel": [
        [0, 0, 0, 0, 1, 2, 0, 0],
        [0, 0, 0, 0, 1, 0, 0, 0],
        [0, 0, 0, 0, 1, 0, 0, 0]
      ],
      "recurrent_kernel": [
        [0.1, 0, 0, 0, 0.2, 0, 0, 0],
        [0, 0.1, 0, 0, 0, 0.2, 0, 0]
      ],
      "bias": [10, 10, 0, 0, 0, 0, 10, 10]
    },
    {
      "type": "dense",
      "activation": "softmax",
      "kernel": [
        [-6, 8, 6, 0, 4],
        [0, 0, 0, 0, 0]
      ],
      "bias": [0, -3.76, -2.26, 0.5, -0.9]
    }
  ]
}`

// SheetCSV is a spreadsheet export whose rows land in known categories. The
// last row holds the manual-form defaults.
const SheetCSV = `Timestamp,PM2.5,PM10,CO
2025-06-01 08:00:00,12.5,20,350
2025-06-01 08:05:00,80,140,9000
2025-06-01 08:10:00,250.4,410,21000
2025-06-01 08:15:00,100,150,12000
`

// CatBoostLabels and SequenceLabels are the expected per-row predictions for
// SheetCSV.
var (
	CatBoostLabels = []string{"Baik", "Sedang", "Tidak Sehat", "Sedang"}
	SequenceLabels = []string{"Baik", "Sedang", "Berbahaya", "Tidak Sehat"}
)

// ArtifactDir is a directory holding every fixture artifact.
type ArtifactDir struct {
	Dir      string
	Scaler   string
	Encoder  string
	CatBoost string
	Sequence string
}

// WriteArtifacts writes the fixture artifacts into a fresh temp directory.
func WriteArtifacts(t testing.TB) ArtifactDir {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		ScalerFile:   ScalerJSON,
		EncoderFile:  EncoderJSON,
		CatBoostFile: CatBoostJSON,
		SequenceFile: SequenceJSON,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return ArtifactDir{
		Dir:      dir,
		Scaler:   filepath.Join(dir, ScalerFile),
		Encoder:  filepath.Join(dir, EncoderFile),
		CatBoost: filepath.Join(dir, CatBoostFile),
		Sequence: filepath.Join(dir, SequenceFile),
	}
}

// WriteFile writes body to name inside a fresh temp directory.
func WriteFile(t testing.TB, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewFormRequest builds a POST request with an urlencoded form body.
func NewFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
