package inference

import (
	"fmt"

	"github.com/banshee-data/airquality.report/internal/reading"
)

// AnnotatedRow is a source row with its prediction.
type AnnotatedRow struct {
	reading.Row
	Prediction Prediction
}

// Annotated is a table with one prediction per row, in source order.
type Annotated struct {
	Columns []string
	Rows    []AnnotatedRow
}

// LabelCount is how many rows received a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Annotate predicts every row of t. Every call recomputes every row. The
// first failing row aborts the whole table.
func (p *Pipeline) Annotate(t *reading.Table) (*Annotated, error) {
	out := &Annotated{}
	if t == nil {
		return out, nil
	}
	out.Columns = append([]string(nil), t.Columns...)
	out.Rows = make([]AnnotatedRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		pred, err := p.Predict(row.Reading)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row.Index, err)
		}
		out.Rows = append(out.Rows, AnnotatedRow{Row: row, Prediction: pred})
	}
	return out, nil
}

// Labels lists the predicted labels in row order.
func (a *Annotated) Labels() []string {
	labels := make([]string, len(a.Rows))
	for i, r := range a.Rows {
		labels[i] = r.Prediction.Label
	}
	return labels
}

// Distribution counts predictions per label over the full vocabulary, in
// vocabulary order. Labels no row received have a zero count.
func (p *Pipeline) Distribution(a *Annotated) []LabelCount {
	classes := p.encoder.Classes()
	counts := make([]LabelCount, len(classes))
	for i, c := range classes {
		counts[i].Label = c
	}
	if a == nil {
		return counts
	}
	for _, r := range a.Rows {
		if i := r.Prediction.Index; i >= 0 && i < len(counts) {
			counts[i].Count++
		}
	}
	return counts
}
