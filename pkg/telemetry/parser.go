package telemetry

import (
	"Dumbbell/api"
	"regexp"
	"strconv"
)

var (
	intervalRe = regexp.MustCompile(`([0-9.]+)-\s*([0-9.]+)\s+sec`)
	volumeRe   = regexp.MustCompile(`([0-9.]+)\s+([KMG])Bytes`)
	rateRe     = regexp.MustCompile(`([0-9.]+)\s+([KMG])bits/sec`)
	summaryRe  = regexp.MustCompile(`\s(sender|receiver)\s*$`)
)

// decimal units, relative to KBytes and Mbits/sec
var (
	volumeScale = map[string]float64{"K": 1, "M": 1e3, "G": 1e6}
	rateScale   = map[string]float64{"K": 1e-3, "M": 1, "G": 1e3}
)

// Parser turns measurement report lines into samples. The zero value reads
// transferred volume.
type Parser struct {
	Kind api.UnitKind
}

// Parse scans one report line. It reports false for any line that lacks a
// required field: banners, connection lines and end-of-run summaries.
func (p Parser) Parse(line string) (api.Sample, bool) {
	if summaryRe.MatchString(line) {
		return api.Sample{}, false
	}

	iv := intervalRe.FindStringSubmatch(line)
	if iv == nil {
		return api.Sample{}, false
	}
	start, err1 := strconv.ParseFloat(iv[1], 64)
	end, err2 := strconv.ParseFloat(iv[2], 64)
	if err1 != nil || err2 != nil || end < start {
		return api.Sample{}, false
	}

	rl := rateRe.FindStringSubmatchIndex(line)
	if rl == nil {
		return api.Sample{}, false
	}
	rate, err := strconv.ParseFloat(line[rl[2]:rl[3]], 64)
	if err != nil {
		return api.Sample{}, false
	}
	rate *= rateScale[line[rl[4]:rl[5]]]

	kind := p.Kind
	if kind == "" {
		kind = api.UnitTransfer
	}
	// the window column follows the rate, the transfer column precedes it
	rest := line[:rl[0]]
	if kind == api.UnitCongestionWindow {
		rest = line[rl[1]:]
	}
	vol := volumeRe.FindStringSubmatch(rest)
	if vol == nil {
		return api.Sample{}, false
	}
	value, err := strconv.ParseFloat(vol[1], 64)
	if err != nil {
		return api.Sample{}, false
	}

	return api.Sample{
		IntervalStartSec: start,
		IntervalEndSec:   end,
		Value:            value * volumeScale[vol[2]],
		Kind:             kind,
		RateMbps:         rate,
	}, true
}
