package pkg

import (
	"Dumbbell/api"
	"Dumbbell/pkg/util"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

// link speeds (in packets/ms)
const (
	BackboneSpeedPms = 82 // 984Mbps
	AccessSpeedPms   = 21 // 252Mbps
	HostSpeedPms     = 80 // 960Mbps
)

// BuildDumbbell creates the dumbbell: 2 backbone routers, 2 access routers,
// 2 hosts each side.
//
//	S1 \                      / R1
//	    AR1 -- BB1 -- BB2 -- AR2
//	S2 /                      \ R2
//
// The backbone link carries the propagation delay, the access links carry
// the bottleneck queue, host links only have the NIC speed.
func BuildDumbbell(delay api.DelayClass) api.Topology {
	bbLink := Compute(api.LinkSpec{RatePacketsPerMs: BackboneSpeedPms, Delay: delay}, false)

	arLink := Compute(api.LinkSpec{RatePacketsPerMs: AccessSpeedPms, Delay: delay}, true)
	arLink.PropagationDelayMs = 0

	hostLink := Compute(api.LinkSpec{RatePacketsPerMs: HostSpeedPms, Delay: delay}, false)
	hostLink.PropagationDelayMs = 0

	t := api.Topology{
		Delay: delay,
		Nodes: []api.Node{
			{Name: "BB1", Kind: api.NodeBackbone},
			{Name: "BB2", Kind: api.NodeBackbone},
			{Name: "AR1", Kind: api.NodeAccess},
			{Name: "AR2", Kind: api.NodeAccess},
		},
		Links: []api.Link{
			{SrcNode: "BB1", DstNode: "BB2", Properties: bbLink},
			{SrcNode: "AR1", DstNode: "BB1", Properties: arLink},
			{SrcNode: "AR2", DstNode: "BB2", Properties: arLink},
			{SrcNode: "S1", DstNode: "AR1", Properties: hostLink},
			{SrcNode: "S2", DstNode: "AR1", Properties: hostLink},
			{SrcNode: "R1", DstNode: "AR2", Properties: hostLink},
			{SrcNode: "R2", DstNode: "AR2", Properties: hostLink},
		},
	}
	for i, name := range []string{"S1", "S2", "R1", "R2"} {
		t.Nodes = append(t.Nodes, api.Node{
			Name:      name,
			Kind:      api.NodeHost,
			Interface: api.NodeInterface{Ipv4: util.HostAddress(i + 1)},
		})
	}
	return t
}

// LoadTopology reads a YAML topology file and checks that every link
// references known nodes.
func LoadTopology(filepath string) (api.Topology, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return api.Topology{}, fmt.Errorf("error reading YAML file: %w", err)
	}

	var topo api.Topology
	if err = yaml.Unmarshal(data, &topo); err != nil {
		return api.Topology{}, fmt.Errorf("error unmarshaling YAML file: %w", err)
	}

	for _, l := range topo.Links {
		if _, ok := topo.Node(l.SrcNode); !ok {
			return api.Topology{}, fmt.Errorf("src node %s not found", l.SrcNode)
		}
		if _, ok := topo.Node(l.DstNode); !ok {
			return api.Topology{}, fmt.Errorf("dst node %s not found", l.DstNode)
		}
	}
	for i, n := range topo.Hosts() {
		if !util.CheckValidIpv4(n.Interface.Ipv4) {
			return api.Topology{}, fmt.Errorf("host %s (#%d) has invalid ipv4 address %q", n.Name, i, n.Interface.Ipv4)
		}
	}
	return topo, nil
}

// SaveTopology writes the topology as YAML.
func SaveTopology(filepath string, topo api.Topology) error {
	data, err := yaml.Marshal(&topo)
	if err != nil {
		return fmt.Errorf("error marshaling topology: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}
