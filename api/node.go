package api

type NodeKind string

const (
	NodeBackbone NodeKind = "backbone"
	NodeAccess   NodeKind = "access"
	NodeHost     NodeKind = "host"
)

// IsSwitch reports whether the node forwards frames instead of running processes.
func (k NodeKind) IsSwitch() bool {
	return k == NodeBackbone || k == NodeAccess
}

type Node struct {
	Name      string        `yaml:"name"`
	Kind      NodeKind      `yaml:"kind"`
	Interface NodeInterface `yaml:"interface,omitempty"`
	Image     string        `yaml:"image,omitempty"`

	NetNs string `yaml:"-"`
}

type NodeInterface struct {
	Name     string `yaml:"name,omitempty"`
	Mac      string `yaml:"mac,omitempty"`
	Ipv4     string `yaml:"ipv4,omitempty"`
	NetNs    string `yaml:"-"`
	NodeName string `yaml:"-"`
	BrName   string `yaml:"-"`
}

// Topology is the graph handed to the emulation runtime.
type Topology struct {
	Delay DelayClass `yaml:"delay"`
	Nodes []Node     `yaml:"nodes"`
	Links []Link     `yaml:"links"`
}

// Clone returns a copy that shares no slices with t.
func (t Topology) Clone() Topology {
	t.Nodes = append([]Node(nil), t.Nodes...)
	t.Links = append([]Link(nil), t.Links...)
	return t
}

// Node returns the node with the given name.
func (t *Topology) Node(name string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Hosts returns the nodes that run processes.
func (t *Topology) Hosts() []Node {
	var hosts []Node
	for _, n := range t.Nodes {
		if !n.Kind.IsSwitch() {
			hosts = append(hosts, n)
		}
	}
	return hosts
}
