package pkg

import (
	"Dumbbell/api"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

func ShowNodes(w io.Writer, topo api.Topology) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Kind", "IPv4"})
	for _, n := range topo.Nodes {
		table.Append([]string{n.Name, string(n.Kind), n.Interface.Ipv4})
	}
	table.Render()
}

func ShowLinks(w io.Writer, topo api.Topology) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Src", "Dst", "Src Intf", "Dst Intf", "Bw (Mbps)", "Delay (ms)", "Queue (pkts)"})
	for _, l := range topo.Links {
		table.Append([]string{
			l.SrcNode,
			l.DstNode,
			intfLabel(l.SrcIntf),
			intfLabel(l.DstIntf),
			fmt.Sprintf("%.0f", l.Properties.BandwidthMbps),
			fmt.Sprintf("%.0f", l.Properties.PropagationDelayMs),
			fmt.Sprintf("%.1f", l.Properties.MaxQueuePackets),
		})
	}
	table.Render()
}

// intfLabel is "-" until the link has been created.
func intfLabel(i api.NodeInterface) string {
	if i.Name == "" {
		return "-"
	}
	if i.Mac == "" {
		return i.Name
	}
	return i.Name + " " + i.Mac
}
