package inference

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/airquality.report/internal/model"
	"github.com/banshee-data/airquality.report/internal/reading"
	"github.com/banshee-data/airquality.report/internal/testutil"
)

func loadPipeline(t *testing.T, kind model.Kind) *Pipeline {
	t.Helper()
	files := testutil.WriteArtifacts(t)
	name := testutil.CatBoostFile
	if kind == model.KindSequence {
		name = testutil.SequenceFile
	}
	a, err := model.LoadArtifacts(model.Paths{
		Dir:     files.Dir,
		Scaler:  testutil.ScalerFile,
		Encoder: testutil.EncoderFile,
		Model:   name,
		Kind:    kind,
	})
	require.NoError(t, err)
	p, err := NewPipeline(a)
	require.NoError(t, err)
	return p
}

func sheet(t *testing.T) *reading.Table {
	t.Helper()
	table, err := reading.ParseCSV(strings.NewReader(testutil.SheetCSV))
	require.NoError(t, err)
	return table
}

var (
	lower = reading.Reading{PM25: 0, PM10: 0, CO: 0}
	upper = reading.Reading{PM25: 500, PM10: 600, CO: 30000}
)

func TestPredictKnownLabels(t *testing.T) {
	tests := []struct {
		kind  model.Kind
		input reading.Reading
		want  string
	}{
		{model.KindCatBoost, lower, "Baik"},
		{model.KindCatBoost, DefaultManualInput().Reading, "Sedang"},
		{model.KindCatBoost, upper, "Berbahaya"},
		{model.KindSequence, lower, "Baik"},
		{model.KindSequence, DefaultManualInput().Reading, "Tidak Sehat"},
		{model.KindSequence, upper, "Berbahaya"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.input.String(), func(t *testing.T) {
			p := loadPipeline(t, tt.kind)
			got, err := p.Predict(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Label)
			assert.Equal(t, testutil.Classes[got.Index], got.Label)
		})
	}
}

func TestPredictClosedVocabularyAndDeterminism(t *testing.T) {
	for _, kind := range []model.Kind{model.KindCatBoost, model.KindSequence} {
		t.Run(string(kind), func(t *testing.T) {
			p := loadPipeline(t, kind)
			assert.Equal(t, testutil.Classes, p.Classes())
			assert.Equal(t, kind, p.Kind())

			for pm25 := 0.0; pm25 <= 500; pm25 += 50 {
				for co := 0.0; co <= 30000; co += 5000 {
					r := reading.Reading{PM25: pm25, PM10: pm25 * 1.2, CO: co}
					first, err := p.Predict(r)
					require.NoError(t, err)
					assert.Contains(t, testutil.Classes, first.Label)

					second, err := p.Predict(r)
					require.NoError(t, err)
					if diff := cmp.Diff(first, second); diff != "" {
						t.Errorf("prediction for %s changed (-first +second):\n%s", r, diff)
					}
				}
			}
		})
	}
}

func TestPredictUnboundedValues(t *testing.T) {
	p := loadPipeline(t, model.KindCatBoost)
	got, err := p.Predict(reading.Reading{PM25: 9000, PM10: -5, CO: 1e6})
	require.NoError(t, err)
	assert.Contains(t, testutil.Classes, got.Label)
}

func TestPredictProbabilities(t *testing.T) {
	p := loadPipeline(t, model.KindSequence)
	got, err := p.Predict(DefaultManualInput().Reading)
	require.NoError(t, err)
	require.Len(t, got.Probabilities, len(testutil.Classes))
	assert.InDelta(t, 1, floats.Sum(got.Probabilities), 1e-9)
	assert.Equal(t, got.Index, floats.MaxIdx(got.Probabilities))

	tree := loadPipeline(t, model.KindCatBoost)
	got, err = tree.Predict(DefaultManualInput().Reading)
	require.NoError(t, err)
	assert.Nil(t, got.Probabilities)
}

type fixedClassifier int

func (c fixedClassifier) Predict([]float64) (int, error) { return int(c), nil }

func TestPredictDecodeOutOfRange(t *testing.T) {
	scaler, err := model.NewScaler([]float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	encoder, err := model.NewLabelEncoder([]string{"Baik"})
	require.NoError(t, err)

	p, err := NewPipeline(&model.Artifacts{Scaler: scaler, Encoder: encoder, Classifier: fixedClassifier(3)})
	require.NoError(t, err)
	_, err = p.Predict(lower)
	assert.True(t, errors.Is(err, model.ErrClassOutOfRange))
}

type countingDistributor struct {
	dist          []float64
	predicts, fwd int
}

func (c *countingDistributor) Predict(features []float64) (int, error) {
	c.predicts++
	dist, _ := c.Distribution(features)
	return floats.MaxIdx(dist), nil
}

func (c *countingDistributor) Distribution([]float64) ([]float64, error) {
	c.fwd++
	return c.dist, nil
}

func TestPredictRunsOneForwardPass(t *testing.T) {
	scaler, err := model.NewScaler([]float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	encoder, err := model.NewLabelEncoder(testutil.Classes)
	require.NoError(t, err)

	c := &countingDistributor{dist: []float64{0.1, 0.1, 0.6, 0.1, 0.1}}
	p, err := NewPipeline(&model.Artifacts{Scaler: scaler, Encoder: encoder, Classifier: c})
	require.NoError(t, err)

	got, err := p.Predict(lower)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Index)
	assert.Equal(t, "Sangat Tidak Sehat", got.Label)
	assert.Equal(t, c.dist, got.Probabilities)
	assert.Equal(t, 1, c.fwd)
	assert.Zero(t, c.predicts)

	c.dist = nil
	_, err = p.Predict(lower)
	assert.ErrorContains(t, err, "empty distribution")
}

func TestNewPipelineIncomplete(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.Error(t, err)
	_, err = NewPipeline(&model.Artifacts{})
	assert.Error(t, err)
}
