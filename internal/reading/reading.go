// Package reading holds the sensor reading types and the CSV table codec used
// by every data source.
package reading

import (
	"fmt"
	"time"
)

// Column names of the three feature fields in the source sheet.
const (
	ColumnPM25 = "PM2.5"
	ColumnPM10 = "PM10"
	ColumnCO   = "CO"
)

// FeatureCount is the width of the feature vector fed to the scaler.
const FeatureCount = 3

// Reading is one air-quality sample. Values are kept exactly as read from the
// source; nothing here clamps or validates ranges.
type Reading struct {
	PM25 float64 `json:"pm25"`
	PM10 float64 `json:"pm10"`
	CO   float64 `json:"co"`
}

// Features returns the feature vector in model order: PM2.5, PM10, CO.
func (r Reading) Features() []float64 {
	return []float64{r.PM25, r.PM10, r.CO}
}

func (r Reading) String() string {
	return fmt.Sprintf("PM2.5=%g PM10=%g CO=%g", r.PM25, r.PM10, r.CO)
}

// Row is a single row of the source table. Cells keeps every source column so
// the dashboard can show the sheet as-is alongside the parsed reading.
type Row struct {
	Index   int      `json:"index"`
	Cells   []string `json:"cells"`
	Reading Reading  `json:"reading"`
}

// Table is the ordered history read from a source. The last row is the most
// recent reading.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`

	// Stored is set when the table was replayed from local storage instead
	// of read live from its source.
	Stored *Provenance `json:"-"`
}

// Provenance describes a stored table: the name to report as its source and
// the time it was originally fetched.
type Provenance struct {
	Name      string
	FetchedAt time.Time
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Latest returns the most recent row.
func (t *Table) Latest() (Row, bool) {
	if t.Len() == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Readings returns the parsed readings in row order.
func (t *Table) Readings() []Reading {
	out := make([]Reading, 0, t.Len())
	if t == nil {
		return out
	}
	for _, r := range t.Rows {
		out = append(out, r.Reading)
	}
	return out
}
