package reading

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheetFixture = `Timestamp,PM2.5,PM10,CO
2025-06-01 08:00:00,12.5,20,350
2025-06-01 08:05:00,80,140,9000
2025-06-01 08:10:00,250.4,410,21000
`

func TestParseCSV(t *testing.T) {
	table, err := ParseCSV(strings.NewReader(sheetFixture))
	require.NoError(t, err)

	assert.Equal(t, []string{"Timestamp", "PM2.5", "PM10", "CO"}, table.Columns)
	require.Equal(t, 3, table.Len())

	want := []Reading{
		{PM25: 12.5, PM10: 20, CO: 350},
		{PM25: 80, PM10: 140, CO: 9000},
		{PM25: 250.4, PM10: 410, CO: 21000},
	}
	if diff := cmp.Diff(want, table.Readings()); diff != "" {
		t.Errorf("readings mismatch (-want +got):\n%s", diff)
	}

	for i, row := range table.Rows {
		assert.Equal(t, i, row.Index)
		assert.Len(t, row.Cells, 4)
	}

	latest, ok := table.Latest()
	require.True(t, ok)
	assert.Equal(t, "2025-06-01 08:10:00", latest.Cells[0])
	assert.Equal(t, 250.4, latest.Reading.PM25)
}

func TestParseCSV_ColumnMatching(t *testing.T) {
	input := "\ufeff co , pm2.5,Pm10\n1,2,3\n"
	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, Reading{PM25: 2, PM10: 3, CO: 1}, table.Rows[0].Reading)
	assert.Equal(t, []string{"co", "pm2.5", "Pm10"}, table.Columns)

	for _, c := range table.Columns {
		assert.True(t, IsFeatureColumn(c), c)
	}
	assert.False(t, IsFeatureColumn("Timestamp"))
	assert.False(t, IsFeatureColumn("PM2"))
}

func TestParseCSV_SkipsBlankRows(t *testing.T) {
	input := "PM2.5,PM10,CO\n1,2,3\n,,\n4,5,6\n"
	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, 1, table.Rows[1].Index)
	assert.Equal(t, 4.0, table.Rows[1].Reading.PM25)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("PM2.5,PM10,CO\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	_, ok := table.Latest()
	assert.False(t, ok)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{name: "empty", input: "", wantErr: ErrEmptyInput},
		{name: "missing column", input: "PM2.5,PM10\n1,2\n", wantErr: ErrMissingColumn, wantMsg: "CO"},
		{name: "missing several", input: "Timestamp\nx\n", wantErr: ErrMissingColumn, wantMsg: "PM2.5, PM10, CO"},
		{name: "non numeric", input: "PM2.5,PM10,CO\n1,abc,3\n", wantMsg: "line 2: failed to parse PM10"},
		{name: "ragged row", input: "PM2.5,PM10,CO\n1,2\n", wantMsg: "expected 3 fields, got 2"},
		{name: "empty feature cell", input: "PM2.5,PM10,CO\n1,,3\n", wantMsg: "failed to parse PM10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"PM2.5", "Label"}, [][]string{{"1", "Baik"}, {"2", "Tidak, Sehat"}})
	require.NoError(t, err)
	assert.Equal(t, "PM2.5,Label\n1,Baik\n2,\"Tidak, Sehat\"\n", buf.String())
}

func TestReadingFeatures(t *testing.T) {
	r := Reading{PM25: 1, PM10: 2, CO: 3}
	assert.Equal(t, []float64{1, 2, 3}, r.Features())
	assert.Equal(t, "PM2.5=1 PM10=2 CO=3", r.String())

	var nilTable *Table
	assert.Equal(t, 0, nilTable.Len())
	assert.Empty(t, nilTable.Readings())
}
