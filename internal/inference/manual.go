package inference

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/airquality.report/internal/reading"
)

var (
	// ErrOutOfBounds is returned for a manual value outside its widget range.
	ErrOutOfBounds = errors.New("value out of bounds")
	// ErrNotNumber is returned for a manual value that does not parse.
	ErrNotNumber = errors.New("value is not a number")
)

// Bound is the inclusive range and default of one manual input.
type Bound struct {
	Field   string  `json:"field"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

// ManualBounds are the form widgets, in feature order.
var ManualBounds = [reading.FeatureCount]Bound{
	{Field: "pm25", Label: reading.ColumnPM25, Min: 0, Max: 500, Default: 100, Step: 0.1},
	{Field: "pm10", Label: reading.ColumnPM10, Min: 0, Max: 600, Default: 150, Step: 0.1},
	{Field: "co", Label: reading.ColumnCO, Min: 0, Max: 30000, Default: 12000, Step: 1},
}

// ManualInput is a what-if reading entered by hand.
type ManualInput struct {
	reading.Reading
}

// DefaultManualInput holds the widget defaults.
func DefaultManualInput() ManualInput {
	return ManualInput{reading.Reading{
		PM25: ManualBounds[0].Default,
		PM10: ManualBounds[1].Default,
		CO:   ManualBounds[2].Default,
	}}
}

// ParseManualInput reads the three fields through get, typically a form or
// query lookup. A blank field takes its default. The result is validated.
func ParseManualInput(get func(string) string) (ManualInput, error) {
	in := DefaultManualInput()
	targets := [reading.FeatureCount]*float64{&in.PM25, &in.PM10, &in.CO}
	for i, b := range ManualBounds {
		raw := strings.TrimSpace(get(b.Field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ManualInput{}, fmt.Errorf("%s: %w: %q", b.Label, ErrNotNumber, raw)
		}
		*targets[i] = v
	}
	if err := in.Validate(); err != nil {
		return ManualInput{}, err
	}
	return in, nil
}

// Validate checks every value against its bound, both ends inclusive.
func (m ManualInput) Validate() error {
	for i, v := range m.Features() {
		b := ManualBounds[i]
		if math.IsNaN(v) || v < b.Min || v > b.Max {
			return fmt.Errorf("%s: %w: %g not in [%g, %g]", b.Label, ErrOutOfBounds, v, b.Min, b.Max)
		}
	}
	return nil
}
