package pkg

import (
	"Dumbbell/api"
)

const (
	msPerSec      = 1000
	bitsPerPacket = 12000 // a regular 1500 byte packet
	mbitPerBit    = 0.000001

	pmsToMbps = msPerSec * bitsPerPacket * mbitPerBit

	// queueFactor scales the bandwidth-delay product into a buffer size
	queueFactor = 0.2
)

// PmsToMbps converts a rate in packets per millisecond into Mbps.
func PmsToMbps(pms float64) float64 {
	return pms * pmsToMbps
}

// Compute derives the emulation parameters of a link. Only bottleneck
// links get a bounded queue, sized on the bandwidth-delay product.
func Compute(spec api.LinkSpec, isBottleneck bool) api.ComputedLink {
	bw := PmsToMbps(spec.RatePacketsPerMs)
	delay := spec.Delay.Millis()

	cl := api.ComputedLink{
		BandwidthMbps:      bw,
		PropagationDelayMs: delay,
	}
	if isBottleneck {
		cl.MaxQueuePackets = queueFactor * bw * delay
	}
	return cl
}
