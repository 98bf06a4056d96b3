package api

// UnitKind tells what the volume field of a Sample measures.
type UnitKind string

const (
	UnitTransfer         UnitKind = "TRANSFER"
	UnitCongestionWindow UnitKind = "CONGESTION_WINDOW"
)

// Sample is one measurement interval. Volumes are in KBytes, rates in Mbits/sec.
type Sample struct {
	IntervalStartSec float64
	IntervalEndSec   float64
	Value            float64 // transfer or window, KBytes
	Kind             UnitKind
	RateMbps         float64
}

// AlignedSeries is the samples of one flow expressed on the experiment timeline.
type AlignedSeries struct {
	Label     string
	OffsetSec float64
	Samples   []Sample
}
