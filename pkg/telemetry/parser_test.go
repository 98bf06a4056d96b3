package telemetry

import (
	"Dumbbell/api"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const senderReport = `Connecting to host 10.0.0.3, port 1111
[  5] local 10.0.0.1 port 41234 connected to 10.0.0.3 port 1111
[ ID] Interval           Transfer     Bitrate         Retr  Cwnd
[  5]   0.00-1.00   sec  30.1 MBytes   252 Mbits/sec    0   1.41 MBytes
[  5]   1.00-2.00   sec  29.9 MBytes   251 Mbits/sec    3    912 KBytes
[  5]   2.00-3.00   sec  1.05 GBytes  1.01 Gbits/sec    0   1.50 MBytes
- - - - - - - - - - - - - - - - - - - - - - - - -
[ ID] Interval           Transfer     Bitrate         Retr
[  5]   0.00-3.00   sec  1.11 GBytes  3.17 Gbits/sec    3             sender
[  5]   0.00-3.04   sec  1.10 GBytes  3.11 Gbits/sec                  receiver

iperf Done.
`

func TestParseRoundTrip(t *testing.T) {
	s, ok := Parser{}.Parse("2.00-3.00 sec 1.5 GBytes 1.2 Gbits/sec")
	require.True(t, ok)
	assert.Equal(t, 2.0, s.IntervalStartSec)
	assert.Equal(t, 3.0, s.IntervalEndSec)
	assert.InDelta(t, 1500000, s.Value, 1e-6)
	assert.InDelta(t, 1200, s.RateMbps, 1e-9)
	assert.Equal(t, api.UnitTransfer, s.Kind)
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		line  string
		value float64
		rate  float64
	}{
		{"[  5]   2.00-3.00   sec  30.1 MBytes   252 Mbits/sec", 30100, 252},
		{"[  5]   2.00-3.00   sec   512 KBytes  4.19 Mbits/sec", 512, 4.19},
		{"[  5]   2.00-3.00   sec  2 GBytes  17.2 Gbits/sec", 2e6, 17200},
		{"[  5]   2.00-3.00   sec  12.0 KBytes  98.3 Kbits/sec", 12, 0.0983},
	}
	for _, tc := range cases {
		s, ok := Parser{Kind: api.UnitTransfer}.Parse(tc.line)
		require.True(t, ok, tc.line)
		assert.InDelta(t, tc.value, s.Value, 1e-6, tc.line)
		assert.InDelta(t, tc.rate, s.RateMbps, 1e-9, tc.line)
	}
}

func TestParseSkips(t *testing.T) {
	for _, line := range []string{
		"",
		"iperf Done.",
		"[ ID] Interval           Transfer     Bitrate",
		"[  5]   0.00-1.00   sec  30.1 MBytes",
		"[  5]   0.00-1.00   sec   252 Mbits/sec",
		"[  5]   3.00-2.00   sec  30.1 MBytes   252 Mbits/sec",
		"[  5]   0.00-3.00   sec  1.11 GBytes  3.17 Gbits/sec    3             sender",
		"[  5]   0.00-3.04   sec  1.10 GBytes  3.11 Gbits/sec                  receiver",
	} {
		_, ok := Parser{}.Parse(line)
		assert.False(t, ok, line)
	}
}

func TestParseCongestionWindow(t *testing.T) {
	p := Parser{Kind: api.UnitCongestionWindow}

	s, ok := p.Parse("[  5]   0.00-1.00   sec  30.1 MBytes   252 Mbits/sec    0   1.41 MBytes")
	require.True(t, ok)
	assert.InDelta(t, 1410, s.Value, 1e-9)
	assert.Equal(t, api.UnitCongestionWindow, s.Kind)

	// receiver side lines carry no window
	_, ok = p.Parse("[  5]   0.00-1.00   sec  30.1 MBytes   252 Mbits/sec")
	assert.False(t, ok)
}

func TestReadReport(t *testing.T) {
	samples, err := ReadReport(strings.NewReader(senderReport), Parser{})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 1050000, samples[2].Value, 1e-6)
	assert.InDelta(t, 1010, samples[2].RateMbps, 1e-9)

	windows, err := ReadReport(strings.NewReader(senderReport), Parser{Kind: api.UnitCongestionWindow})
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.InDelta(t, 912, windows[1].Value, 1e-9)

	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].IntervalEndSec, samples[i-1].IntervalEndSec)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("/nonexistent/s1.txt", Parser{})
	assert.Error(t, err)
}
