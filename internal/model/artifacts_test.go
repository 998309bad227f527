package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/airquality.report/internal/testutil"
)

func TestLoadArtifacts(t *testing.T) {
	files := testutil.WriteArtifacts(t)

	tests := []struct {
		name    string
		kind    Kind
		model   string
		summary string
	}{
		{"catboost", KindCatBoost, testutil.CatBoostFile, "3 trees, 5 classes"},
		{"sequence", KindSequence, testutil.SequenceFile, "5 outputs, 5 classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := LoadArtifacts(Paths{
				Dir:     files.Dir,
				Scaler:  testutil.ScalerFile,
				Encoder: testutil.EncoderFile,
				Model:   tt.model,
				Kind:    tt.kind,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, testutil.Classes, a.Encoder.Classes())
			assert.Equal(t, 3, a.Scaler.Width())
			assert.Equal(t, tt.summary, a.Summary())
		})
	}
}

func TestLoadArtifactsAbsolutePathsWithoutDir(t *testing.T) {
	files := testutil.WriteArtifacts(t)
	a, err := LoadArtifacts(Paths{
		Scaler:  files.Scaler,
		Encoder: files.Encoder,
		Model:   files.CatBoost,
		Kind:    KindCatBoost,
	})
	require.NoError(t, err)
	_, ok := a.Classifier.(*CatBoostModel)
	assert.True(t, ok)
}

func TestLoadArtifactsReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadArtifacts(Paths{
		Dir:     dir,
		Scaler:  "missing-scaler.json",
		Encoder: "missing-encoder.json",
		Model:   "missing-model.json",
		Kind:    KindCatBoost,
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
}

func TestLoadArtifactsRejectsEscape(t *testing.T) {
	files := testutil.WriteArtifacts(t)
	outside := testutil.WriteFile(t, "scaler.json", testutil.ScalerJSON)

	_, err := LoadArtifacts(Paths{
		Dir:     files.Dir,
		Scaler:  outside,
		Encoder: testutil.EncoderFile,
		Model:   testutil.CatBoostFile,
		Kind:    KindCatBoost,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scaler")

	_, err = LoadArtifacts(Paths{
		Dir:     files.Dir,
		Scaler:  testutil.ScalerFile,
		Encoder: "../" + filepath.Base(files.Dir) + "-x/encoder.json",
		Model:   testutil.CatBoostFile,
		Kind:    KindCatBoost,
	})
	assert.Error(t, err)
}

func TestLoadArtifactsConsistency(t *testing.T) {
	files := testutil.WriteArtifacts(t)
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(files.Dir, name), []byte(body), 0o644))
	}
	write("small_encoder.json", `{"classes": ["Baik", "Sedang"]}`)
	write("wide_scaler.json", `{"mean": [0, 0], "scale": [1, 1]}`)

	_, err := LoadArtifacts(Paths{
		Dir:     files.Dir,
		Scaler:  testutil.ScalerFile,
		Encoder: "small_encoder.json",
		Model:   testutil.CatBoostFile,
		Kind:    KindCatBoost,
	})
	assert.True(t, errors.Is(err, ErrClassOutOfRange), "got %v", err)

	_, err = LoadArtifacts(Paths{
		Dir:     files.Dir,
		Scaler:  "wide_scaler.json",
		Encoder: testutil.EncoderFile,
		Model:   testutil.SequenceFile,
		Kind:    KindSequence,
	})
	assert.True(t, errors.Is(err, ErrWidthMismatch), "got %v", err)
}

func TestLoadArtifactsUnconfigured(t *testing.T) {
	_, err := LoadArtifacts(Paths{Kind: KindCatBoost})
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
}
