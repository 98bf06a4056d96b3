package telemetry

import (
	"Dumbbell/api"

	"github.com/montanaflynn/stats"
)

// Metric selects the plotted value of a sample.
type Metric struct {
	Name  string
	Unit  string
	Value func(api.Sample) float64
}

var (
	Bandwidth = Metric{Name: "bandwidth", Unit: "Mbits/sec", Value: func(s api.Sample) float64 { return s.RateMbps }}
	Volume    = Metric{Name: "volume", Unit: "KBytes", Value: func(s api.Sample) float64 { return s.Value }}
)

type Summary struct {
	Label   string
	Samples int
	Mean    float64
	Median  float64
	Max     float64
}

// Summarize reduces one series to its descriptive statistics. An empty
// series yields a zero Summary with its label set.
func Summarize(s api.AlignedSeries, m Metric) Summary {
	sum := Summary{Label: s.Label, Samples: len(s.Samples)}
	if len(s.Samples) == 0 {
		return sum
	}

	data := make(stats.Float64Data, len(s.Samples))
	for i, smp := range s.Samples {
		data[i] = m.Value(smp)
	}
	// only ErrEmptyInput is possible here
	sum.Mean, _ = stats.Mean(data)
	sum.Median, _ = stats.Median(data)
	sum.Max, _ = stats.Max(data)
	return sum
}
