package telemetry

import "Dumbbell/api"

// Align moves samples taken on a flow's local clock onto the experiment
// timeline. The input slice is not modified.
func Align(label string, samples []api.Sample, offsetSec float64) api.AlignedSeries {
	out := make([]api.Sample, len(samples))
	for i, s := range samples {
		s.IntervalStartSec += offsetSec
		s.IntervalEndSec += offsetSec
		out[i] = s
	}
	return api.AlignedSeries{Label: label, OffsetSec: offsetSec, Samples: out}
}

// Dataset is a set of aligned series keyed by label, in insertion order.
// Series may be ragged.
type Dataset struct {
	labels []string
	series map[string]api.AlignedSeries
}

// Merge builds a Dataset. Series sharing a label are concatenated in the
// order given.
func Merge(series ...api.AlignedSeries) *Dataset {
	d := &Dataset{series: make(map[string]api.AlignedSeries)}
	for _, s := range series {
		d.Add(s)
	}
	return d
}

func (d *Dataset) Add(s api.AlignedSeries) {
	prev, ok := d.series[s.Label]
	if !ok {
		d.labels = append(d.labels, s.Label)
		s.Samples = append([]api.Sample(nil), s.Samples...)
		d.series[s.Label] = s
		return
	}
	prev.Samples = append(prev.Samples, s.Samples...)
	d.series[s.Label] = prev
}

func (d *Dataset) Labels() []string {
	return append([]string(nil), d.labels...)
}

func (d *Dataset) Series(label string) (api.AlignedSeries, bool) {
	s, ok := d.series[label]
	return s, ok
}

// All returns the series in insertion order.
func (d *Dataset) All() []api.AlignedSeries {
	out := make([]api.AlignedSeries, 0, len(d.labels))
	for _, l := range d.labels {
		out = append(out, d.series[l])
	}
	return out
}

func (d *Dataset) Len() int {
	return len(d.labels)
}
