package telemetry

import (
	"Dumbbell/api"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Renderer accumulates labeled series and draws them once.
type Renderer interface {
	Append(s api.AlignedSeries) error
	Render() error
}

// CSVRenderer writes one row per sample in long format:
// series,time_sec,value. time_sec is the aligned interval end.
type CSVRenderer struct {
	w      io.Writer
	metric Metric
	series []api.AlignedSeries
}

func NewCSVRenderer(w io.Writer, m Metric) *CSVRenderer {
	return &CSVRenderer{w: w, metric: m}
}

func (r *CSVRenderer) Append(s api.AlignedSeries) error {
	r.series = append(r.series, s)
	return nil
}

func (r *CSVRenderer) Render() error {
	w := csv.NewWriter(r.w)
	if err := w.Write([]string{"series", "time_sec", "value"}); err != nil {
		return err
	}
	for _, s := range r.series {
		for _, smp := range s.Samples {
			row := []string{
				s.Label,
				strconv.FormatFloat(smp.IntervalEndSec, 'f', 2, 64),
				strconv.FormatFloat(r.metric.Value(smp), 'f', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// TableRenderer prints a summary table of every series.
type TableRenderer struct {
	w      io.Writer
	metric Metric
	rows   []Summary
}

func NewTableRenderer(w io.Writer, m Metric) *TableRenderer {
	return &TableRenderer{w: w, metric: m}
}

func (r *TableRenderer) Append(s api.AlignedSeries) error {
	r.rows = append(r.rows, Summarize(s, r.metric))
	return nil
}

func (r *TableRenderer) Render() error {
	table := tablewriter.NewWriter(r.w)
	table.SetHeader([]string{"Series", "Samples", "Mean", "Median", "Max"})
	table.SetCaption(true, r.metric.Name+" in "+r.metric.Unit)
	for _, s := range r.rows {
		table.Append([]string{
			s.Label,
			strconv.Itoa(s.Samples),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.Median),
			fmt.Sprintf("%.2f", s.Max),
		})
	}
	table.Render()
	return nil
}

// RenderDataset feeds every series of d to r in order and renders.
func RenderDataset(r Renderer, d *Dataset) error {
	for _, s := range d.All() {
		if err := r.Append(s); err != nil {
			return err
		}
	}
	return r.Render()
}
