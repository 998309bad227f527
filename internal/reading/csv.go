package reading

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrMissingColumn is returned when the header lacks a required feature column.
	ErrMissingColumn = errors.New("missing required column")
	// ErrEmptyInput is returned when the input has no header row.
	ErrEmptyInput = errors.New("empty csv input")
)

// ParseCSV reads a header row followed by data rows. The PM2.5, PM10 and CO
// columns are located by name (case-insensitive, whitespace trimmed); other
// columns are carried through untouched in Row.Cells. Fully blank rows are
// skipped.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	idx, err := featureIndexes(columns)
	if err != nil {
		return nil, err
	}

	table := &Table{Columns: columns, Rows: []Row{}}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		if len(record) != len(columns) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(columns), len(record))
		}

		var rd Reading
		if rd.PM25, err = parseValue(record[idx[0]]); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse %s: %w", line, ColumnPM25, err)
		}
		if rd.PM10, err = parseValue(record[idx[1]]); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse %s: %w", line, ColumnPM10, err)
		}
		if rd.CO, err = parseValue(record[idx[2]]); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse %s: %w", line, ColumnCO, err)
		}

		cells := make([]string, len(record))
		copy(cells, record)
		table.Rows = append(table.Rows, Row{
			Index:   len(table.Rows),
			Cells:   cells,
			Reading: rd,
		})
	}
	return table, nil
}

// WriteCSV writes columns and rows as CSV. Callers append any derived columns
// before calling.
func WriteCSV(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// IsFeatureColumn reports whether name is one of the feature columns, using
// the same matching as ParseCSV.
func IsFeatureColumn(name string) bool {
	name = strings.TrimSpace(name)
	for _, w := range [...]string{ColumnPM25, ColumnPM10, ColumnCO} {
		if strings.EqualFold(name, w) {
			return true
		}
	}
	return false
}

func featureIndexes(columns []string) ([3]int, error) {
	want := [3]string{ColumnPM25, ColumnPM10, ColumnCO}
	idx := [3]int{-1, -1, -1}
	for i, c := range columns {
		for j, w := range want {
			if idx[j] == -1 && strings.EqualFold(c, w) {
				idx[j] = i
			}
		}
	}
	var missing []string
	for j, i := range idx {
		if i == -1 {
			missing = append(missing, want[j])
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseValue(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
