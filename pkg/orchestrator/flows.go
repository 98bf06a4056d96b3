package orchestrator

import (
	"Dumbbell/api"
	"Dumbbell/pkg/util"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type receiverKey struct {
	host string
	port uint16
}

func (k receiverKey) String() string {
	return fmt.Sprintf("%s:%d", k.host, k.port)
}

// normalizeFlows labels unlabeled flows and orders them by start offset.
// Flows with equal offsets keep their input order.
func normalizeFlows(flows []api.FlowSpec) []api.FlowSpec {
	out := make([]api.FlowSpec, len(flows))
	copy(out, flows)
	for i := range out {
		if out[i].Label == "" {
			out[i].Label = "flow" + strconv.Itoa(i+1)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartOffsetSec < out[j].StartOffsetSec
	})
	return out
}

// ValidateFlows checks flows against the topology before anything runs.
func ValidateFlows(topo api.Topology, flows []api.FlowSpec) error {
	if len(flows) == 0 {
		return fmt.Errorf("no flows")
	}

	labels := make(map[string]bool)
	byReceiver := make(map[receiverKey][]api.FlowSpec)
	for _, f := range flows {
		if labels[f.Label] {
			return fmt.Errorf("duplicate flow label %q", f.Label)
		}
		labels[f.Label] = true

		if f.DurationSec <= 0 || math.IsNaN(f.DurationSec) || math.IsInf(f.DurationSec, 0) {
			return fmt.Errorf("flow %s: duration %.2fs must be positive", f.Label, f.DurationSec)
		}
		if f.StartOffsetSec < 0 || math.IsNaN(f.StartOffsetSec) || math.IsInf(f.StartOffsetSec, 0) {
			return fmt.Errorf("flow %s: start offset %.2fs must not be negative", f.Label, f.StartOffsetSec)
		}
		if f.Port == 0 {
			return fmt.Errorf("flow %s: port must be set", f.Label)
		}
		if f.SourceHost == f.DestHost {
			return fmt.Errorf("flow %s: source and destination are both %s", f.Label, f.SourceHost)
		}
		for _, name := range []string{f.SourceHost, f.DestHost} {
			n, ok := topo.Node(name)
			if !ok {
				return fmt.Errorf("flow %s: host %s not in topology", f.Label, name)
			}
			if n.Kind.IsSwitch() {
				return fmt.Errorf("flow %s: %s is a switch, not a host", f.Label, name)
			}
		}
		dst, _ := topo.Node(f.DestHost)
		if !util.CheckValidIpv4(dst.Interface.Ipv4) {
			return fmt.Errorf("flow %s: host %s has no usable address", f.Label, f.DestHost)
		}

		key := receiverKey{f.DestHost, f.Port}
		byReceiver[key] = append(byReceiver[key], f)
	}

	// a receiver serves one transfer at a time
	for key, shared := range byReceiver {
		for i := range shared {
			for j := i + 1; j < len(shared); j++ {
				a, b := shared[i], shared[j]
				if a.StartOffsetSec < b.EndSec() && b.StartOffsetSec < a.EndSec() {
					return fmt.Errorf("flows %s and %s overlap on receiver %s", a.Label, b.Label, key)
				}
			}
		}
	}
	return nil
}

// receivers lists the distinct (host, port) pairs in first-use order.
func receivers(flows []api.FlowSpec) []receiverKey {
	seen := make(map[receiverKey]bool)
	var keys []receiverKey
	for _, f := range flows {
		key := receiverKey{f.DestHost, f.Port}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// ReceiverCommand is the listening side of a transfer.
func ReceiverCommand(port uint16) []string {
	return []string{"iperf3", "-s", "-p", strconv.Itoa(int(port)), "-i", "1"}
}

// SenderCommand reports every second in Mbits/sec for the flow duration.
func SenderCommand(f api.FlowSpec, destIP string) []string {
	secs := int(math.Max(1, math.Round(f.DurationSec)))
	return []string{
		"iperf3", "-4",
		"-i", "1",
		"-f", "m",
		"-t", strconv.Itoa(secs),
		"-c", destIP,
		"-p", strconv.Itoa(int(f.Port)),
	}
}
