package api

import (
	"fmt"
	"strings"
)

// DelayClass selects the one-way propagation delay of the backbone link.
type DelayClass int

const (
	DelayShort DelayClass = iota
	DelayMedium
	DelayLarge
)

var delayClassNames = map[DelayClass]string{
	DelayShort:  "short",
	DelayMedium: "medium",
	DelayLarge:  "large",
}

var delayClassMs = map[DelayClass]float64{
	DelayShort:  21,
	DelayMedium: 81,
	DelayLarge:  162,
}

// Millis returns the propagation delay of the class in milliseconds.
func (d DelayClass) Millis() float64 {
	return delayClassMs[d]
}

func (d DelayClass) String() string {
	if name, ok := delayClassNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DelayClass(%d)", int(d))
}

func (d DelayClass) MarshalText() ([]byte, error) {
	if _, ok := delayClassNames[d]; !ok {
		return nil, fmt.Errorf("unknown delay class %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *DelayClass) UnmarshalText(text []byte) error {
	parsed, err := ParseDelayClass(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDelayClass accepts short, medium or large (case insensitive).
func ParseDelayClass(s string) (DelayClass, error) {
	for class, name := range delayClassNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return class, nil
		}
	}
	return DelayShort, fmt.Errorf("invalid delay class %q, want short|medium|large", s)
}

// LinkSpec is the physical description of a link.
type LinkSpec struct {
	RatePacketsPerMs float64    `yaml:"ratePacketsPerMs"` // must be > 0
	Delay            DelayClass `yaml:"delay"`
}

// ComputedLink holds the emulation parameters derived from a LinkSpec.
type ComputedLink struct {
	BandwidthMbps      float64 `yaml:"bandwidthMbps"`
	PropagationDelayMs float64 `yaml:"propagationDelayMs"`
	MaxQueuePackets    float64 `yaml:"maxQueuePackets"` // 0 means unshaped queue
}

// Link is an edge of the topology.
type Link struct {
	SrcNode    string       `yaml:"srcNode"` // SrcNodeName
	DstNode    string       `yaml:"dstNode"` // DstNodeName
	Properties ComputedLink `yaml:"properties"`

	SrcIntf NodeInterface `yaml:"-"`
	DstIntf NodeInterface `yaml:"-"`
}
