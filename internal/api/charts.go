package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/airquality.report/internal/inference"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
)

var seriesColors = []color.RGBA{
	{R: 0x00, G: 0x55, B: 0xaa, A: 0xff},
	{R: 0xe6, G: 0x7e, B: 0x22, A: 0xff},
	{R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
}

// tail returns the last limit rows; limit 0 means all of them.
func tail(rows []inference.AnnotatedRow, limit int) []inference.AnnotatedRow {
	if limit > 0 && len(rows) > limit {
		return rows[len(rows)-limit:]
	}
	return rows
}

// rowLabel names a row on the x axis by its first non-feature cell, usually
// the timestamp, falling back to the row number.
func rowLabel(columns []string, row inference.AnnotatedRow) string {
	for i, c := range columns {
		if reading.IsFeatureColumn(c) {
			continue
		}
		if i < len(row.Cells) && row.Cells[i] != "" {
			return row.Cells[i]
		}
	}
	return strconv.Itoa(row.Index + 1)
}

// handleHistoryChart renders the readings as line series and the predicted
// categories as a bar chart on one go-echarts page.
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	rows := tail(snap.History.Rows, s.cfg.GetHistoryLimit())

	x := make([]string, len(rows))
	pm25 := make([]opts.LineData, len(rows))
	pm10 := make([]opts.LineData, len(rows))
	co := make([]opts.LineData, len(rows))
	for i, row := range rows {
		x[i] = rowLabel(snap.History.Columns, row)
		pm25[i] = opts.LineData{Value: row.Reading.PM25}
		pm10[i] = opts.LineData{Value: row.Reading.PM10}
		co[i] = opts.LineData{Value: row.Reading.CO, YAxisIndex: 1}
	}

	units := s.cfg.GetUnits()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.cfg.GetTitle(), Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Riwayat PM2.5 / PM10 / CO", Subtitle: fmt.Sprintf("%d baris, snapshot %s", len(rows), snap.Entry.ID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "PM (" + units.PM + ")"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "CO (" + units.CO + ")"})
	line.SetXAxis(x).
		AddSeries("PM2.5", pm25).
		AddSeries("PM10", pm10).
		AddSeries("CO", co).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}))

	dist := s.pipeline.Distribution(&inference.Annotated{Columns: snap.History.Columns, Rows: rows})
	labels := make([]string, len(dist))
	counts := make([]opts.BarData, len(dist))
	for i, c := range dist {
		labels[i] = c.Label
		counts[i] = opts.BarData{Value: c.Count}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Prediksi " + s.cfg.GetModelLabel() + " per kategori"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("baris", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.PageTitle = s.cfg.GetTitle()
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleHistoryPNG renders the three series as a static PNG.
func (s *Server) handleHistoryPNG(w http.ResponseWriter, r *http.Request) {
	snap, err := s.load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	p, err := HistoryPlot(s.cfg.GetTitle(), tail(snap.History.Rows, s.cfg.GetHistoryLimit()))
	if err != nil {
		http.Error(w, fmt.Sprintf("plot error: %v", err), http.StatusInternalServerError)
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("plot error: %v", err), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		http.Error(w, fmt.Sprintf("plot error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("failed to write history png: %v", err)
	}
}

// HistoryPlot draws PM2.5, PM10 and CO against row number. CO is divided by
// 100 so it shares the PM axis; the legend says so.
func HistoryPlot(title string, rows []inference.AnnotatedRow) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Row"
	p.Y.Label.Text = "Value"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	series := []struct {
		name  string
		value func(inference.AnnotatedRow) float64
	}{
		{"PM2.5", func(r inference.AnnotatedRow) float64 { return r.Reading.PM25 }},
		{"PM10", func(r inference.AnnotatedRow) float64 { return r.Reading.PM10 }},
		{"CO / 100", func(r inference.AnnotatedRow) float64 { return r.Reading.CO / 100 }},
	}
	if len(rows) == 0 {
		return p, nil
	}
	for i, sr := range series {
		pts := make(plotter.XYs, len(rows))
		for j, row := range rows {
			pts[j] = plotter.XY{X: float64(row.Index), Y: sr.value(row)}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sr.name, err)
		}
		l.Color = seriesColors[i]
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(sr.name, l)
	}
	return p, nil
}
