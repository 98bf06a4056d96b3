package link

import (
	"Dumbbell/api"
	"fmt"
	"math"

	"github.com/vishvananda/netlink"
)

// Every shaped interface gets the same tree:
// tc qdisc add dev eth0 root handle 1: htb default 1
// tc class add dev eth0 parent 1: classid 1:1 htb rate 252mbit
// tc qdisc add dev eth0 parent 1:1 handle 10: netem delay 21ms limit 1058
// The netem child is only added when the link has a delay or a queue bound.

// DefaultNetemLimit is the kernel default netem queue length, in packets.
const DefaultNetemLimit = 1000

const bitsPerMbit = 1_000_000

// Shaping holds the qdisc parameters of one interface.
type Shaping struct {
	RateBits  uint64 // bit/s
	LatencyUs uint32
	Limit     uint32 // packets
	Netem     bool
}

// ShapingFor translates link parameters into qdisc parameters.
func ShapingFor(p api.ComputedLink) Shaping {
	s := Shaping{
		RateBits:  uint64(math.Round(p.BandwidthMbps * bitsPerMbit)),
		LatencyUs: uint32(math.Round(p.PropagationDelayMs * 1000)),
		Limit:     DefaultNetemLimit,
	}
	if p.MaxQueuePackets > 0 {
		s.Limit = uint32(math.Max(1, math.Round(p.MaxQueuePackets)))
	}
	s.Netem = s.LatencyUs > 0 || p.MaxQueuePackets > 0
	return s
}

// ApplyShaping installs the qdisc tree on the named link of the current
// network namespace.
func ApplyShaping(name string, s Shaping) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to get link by name %s: %w", name, err)
	}
	index := link.Attrs().Index

	qdisc := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: index,
		Handle:    netlink.MakeHandle(1, 0),
		Parent:    netlink.HANDLE_ROOT,
	})
	qdisc.Defcls = 1
	if err := netlink.QdiscAdd(qdisc); err != nil {
		return fmt.Errorf("failed to add HTB root qdisc to %s: %w", name, err)
	}

	class := netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(1, 1),
			Parent:    netlink.MakeHandle(1, 0),
		},
		netlink.HtbClassAttrs{
			Rate: s.RateBits,
			Ceil: s.RateBits,
			Prio: 1,
		},
	)
	if err := netlink.ClassAdd(class); err != nil {
		return fmt.Errorf("failed to add HTB class to %s: %w", name, err)
	}

	if !s.Netem {
		return nil
	}
	netem := netlink.NewNetem(netlink.QdiscAttrs{
		LinkIndex: index,
		Parent:    netlink.MakeHandle(1, 1),
		Handle:    netlink.MakeHandle(10, 0),
	}, netlink.NetemQdiscAttrs{
		Latency: s.LatencyUs,
		Limit:   s.Limit,
	})
	if err := netlink.QdiscAdd(netem); err != nil {
		return fmt.Errorf("failed to add netem qdisc to %s: %w", name, err)
	}
	return nil
}
