package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SequenceModel is a stacked LSTM followed by dense layers, evaluated on a
// single timestep with zero initial state. Weights use the Keras layout:
// kernels are [inputs][outputs] and LSTM gates are ordered i, f, c, o.
type SequenceModel struct {
	inputSize int
	lstms     []lstmLayer
	dense     []denseLayer
}

type lstmLayer struct {
	units     int
	kernel    *mat.Dense // inputs x 4*units
	recurrent *mat.Dense // units x 4*units
	bias      *mat.VecDense
}

type denseLayer struct {
	kernel     *mat.Dense // inputs x outputs
	bias       *mat.VecDense
	activation string
}

type sequenceFile struct {
	InputSize int         `json:"input_size"`
	Layers    []layerFile `json:"layers"`
}

type layerFile struct {
	Type            string      `json:"type"`
	Units           int         `json:"units"`
	Activation      string      `json:"activation"`
	Kernel          [][]float64 `json:"kernel"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel"`
	Bias            []float64   `json:"bias"`
}

// ParseSequence decodes a sequence model weight file.
func ParseSequence(data []byte) (*SequenceModel, error) {
	var f sequenceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sequence model JSON: %w", err)
	}
	if f.InputSize <= 0 {
		return nil, errors.New("sequence model: input_size must be positive")
	}
	if len(f.Layers) == 0 {
		return nil, errors.New("sequence model has no layers")
	}

	m := &SequenceModel{inputSize: f.InputSize}
	in := f.InputSize
	for i, l := range f.Layers {
		switch l.Type {
		case "lstm":
			if len(m.dense) > 0 {
				return nil, fmt.Errorf("layer %d: lstm after dense is not supported", i)
			}
			layer, err := newLSTMLayer(l, in)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			m.lstms = append(m.lstms, layer)
			in = layer.units
		case "dense":
			layer, err := newDenseLayer(l, in)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			m.dense = append(m.dense, layer)
			_, in = layer.kernel.Dims()
		default:
			return nil, fmt.Errorf("layer %d: unsupported layer type %q", i, l.Type)
		}
	}
	return m, nil
}

func newLSTMLayer(l layerFile, in int) (lstmLayer, error) {
	if l.Units <= 0 {
		return lstmLayer{}, errors.New("lstm units must be positive")
	}
	gates := 4 * l.Units
	kernel, err := denseFromRows(l.Kernel, in, gates)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("kernel: %w", err)
	}
	recurrent, err := denseFromRows(l.RecurrentKernel, l.Units, gates)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("recurrent_kernel: %w", err)
	}
	if len(l.Bias) != gates {
		return lstmLayer{}, fmt.Errorf("bias: expected %d values, got %d", gates, len(l.Bias))
	}
	return lstmLayer{
		units:     l.Units,
		kernel:    kernel,
		recurrent: recurrent,
		bias:      mat.NewVecDense(gates, append([]float64(nil), l.Bias...)),
	}, nil
}

func newDenseLayer(l layerFile, in int) (denseLayer, error) {
	if len(l.Bias) == 0 {
		return denseLayer{}, errors.New("dense bias is empty")
	}
	out := len(l.Bias)
	kernel, err := denseFromRows(l.Kernel, in, out)
	if err != nil {
		return denseLayer{}, fmt.Errorf("kernel: %w", err)
	}
	switch l.Activation {
	case "", "linear", "relu", "tanh", "sigmoid", "softmax":
	default:
		return denseLayer{}, fmt.Errorf("unsupported activation %q", l.Activation)
	}
	return denseLayer{
		kernel:     kernel,
		bias:       mat.NewVecDense(out, append([]float64(nil), l.Bias...)),
		activation: l.Activation,
	}, nil
}

func denseFromRows(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("expected %d rows, got %d", r, len(rows))
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, c, len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// Distribution runs the network forward and returns the output layer values.
// With a softmax head this is a probability distribution over categories.
func (m *SequenceModel) Distribution(features []float64) ([]float64, error) {
	if len(features) != m.inputSize {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrWidthMismatch, len(features), m.inputSize)
	}
	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	for _, l := range m.lstms {
		x = l.step(x)
	}
	for _, l := range m.dense {
		x = l.forward(x)
	}
	return append([]float64(nil), x.RawVector().Data...), nil
}

// Predict returns the index of the largest output.
func (m *SequenceModel) Predict(features []float64) (int, error) {
	dist, err := m.Distribution(features)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(dist), nil
}

// Outputs is the width of the output layer.
func (m *SequenceModel) Outputs() int {
	if len(m.dense) > 0 {
		return m.dense[len(m.dense)-1].bias.Len()
	}
	return m.lstms[len(m.lstms)-1].units
}

// step runs one timestep from a zero hidden and cell state and returns h.
func (l lstmLayer) step(x *mat.VecDense) *mat.VecDense {
	u := l.units
	h0 := mat.NewVecDense(u, nil)
	c0 := mat.NewVecDense(u, nil)

	var z, rec mat.VecDense
	z.MulVec(l.kernel.T(), x)
	rec.MulVec(l.recurrent.T(), h0)
	z.AddVec(&z, &rec)
	z.AddVec(&z, l.bias)

	h := mat.NewVecDense(u, nil)
	for k := 0; k < u; k++ {
		i := sigmoid(z.AtVec(k))
		f := sigmoid(z.AtVec(u + k))
		g := math.Tanh(z.AtVec(2*u + k))
		o := sigmoid(z.AtVec(3*u + k))
		c := f*c0.AtVec(k) + i*g
		h.SetVec(k, o*math.Tanh(c))
	}
	return h
}

func (l denseLayer) forward(x *mat.VecDense) *mat.VecDense {
	var y mat.VecDense
	y.MulVec(l.kernel.T(), x)
	y.AddVec(&y, l.bias)

	out := y.RawVector().Data
	switch l.activation {
	case "relu":
		for i, v := range out {
			out[i] = math.Max(0, v)
		}
	case "tanh":
		for i, v := range out {
			out[i] = math.Tanh(v)
		}
	case "sigmoid":
		for i, v := range out {
			out[i] = sigmoid(v)
		}
	case "softmax":
		softmax(out)
	}
	return &y
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func softmax(v []float64) {
	max := floats.Max(v)
	for i := range v {
		v[i] = math.Exp(v[i] - max)
	}
	floats.Scale(1/floats.Sum(v), v)
}
