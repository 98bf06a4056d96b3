package pkg

import (
	"Dumbbell/api"
	"Dumbbell/pkg/link"
	"Dumbbell/pkg/node"
	"Dumbbell/pkg/ovs"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const congestionControlSysctl = "net.ipv4.tcp_congestion_control"

// Manager is the kernel emulation runtime: hosts are docker containers,
// switches are OVS bridges and links are shaped veth pairs.
type Manager struct {
	Topology api.Topology

	om      *ovs.OvsManager
	lm      *link.LinkManager
	cm      *node.ContainerManager
	bridges map[string]string // node name -> bridge

	procSysDir string
}

// NewManager creates a Manager. img is the host container image, empty
// selects node.DefaultImage.
func NewManager(img string) (*Manager, error) {
	cm, err := node.NewContainerManager(img)
	if err != nil {
		return nil, err
	}
	om := ovs.NewOvsManager()
	return &Manager{
		om:         om,
		lm:         link.NewLinkManager(om),
		cm:         cm,
		bridges:    make(map[string]string),
		procSysDir: "/proc/sys",
	}, nil
}

// SetCongestionControl selects the TCP congestion control algorithm of the
// root namespace and of every host created afterwards. The name is passed
// through unchecked, the kernel rejects unknown algorithms.
func (m *Manager) SetCongestionControl(algorithm string) error {
	path := m.procSysDir + "/" + strings.ReplaceAll(congestionControlSysctl, ".", "/")
	if err := os.WriteFile(path, []byte(algorithm), 0644); err != nil {
		return fmt.Errorf("failed to set %s=%s: %w", congestionControlSysctl, algorithm, err)
	}
	m.cm.SetSysctl(congestionControlSysctl, algorithm)
	log.Infof("manager: %s=%s", congestionControlSysctl, algorithm)
	return nil
}

// CreateTopology brings up switches, then hosts, then links. On error the
// resources created so far stay registered for Teardown.
func (m *Manager) CreateTopology(ctx context.Context, topo api.Topology) error {
	// bridge names, namespaces and interfaces are filled in on the copy
	topo = topo.Clone()

	if err := m.cm.EnsureImage(ctx); err != nil {
		return err
	}

	for i := range topo.Nodes {
		n := &topo.Nodes[i]
		if !n.Kind.IsSwitch() {
			continue
		}
		bridge, err := m.om.CreateBridge(n.Name)
		if err != nil {
			return err
		}
		m.bridges[n.Name] = bridge
		n.Interface.BrName = bridge
	}

	for i := range topo.Nodes {
		n := &topo.Nodes[i]
		if n.Kind.IsSwitch() {
			continue
		}
		if err := m.cm.AddNode(ctx, n); err != nil {
			return err
		}
	}

	for i := range topo.Links {
		l := &topo.Links[i]
		src, err := m.endpoint(topo, l.SrcNode)
		if err != nil {
			return err
		}
		dst, err := m.endpoint(topo, l.DstNode)
		if err != nil {
			return err
		}
		if err := m.lm.AddLink(l, src, dst); err != nil {
			return err
		}
	}

	m.Topology = topo
	log.Infof("manager: topology up, %d nodes, %d links", len(topo.Nodes), len(topo.Links))
	return nil
}

func (m *Manager) endpoint(topo api.Topology, name string) (link.Endpoint, error) {
	n, ok := topo.Node(name)
	if !ok {
		return link.Endpoint{}, fmt.Errorf("node %s not found", name)
	}
	return link.Endpoint{Node: n, Bridge: m.bridges[name]}, nil
}

// StartProcess runs cmd on a host, copying its output to out.
func (m *Manager) StartProcess(ctx context.Context, host string, cmd []string, out io.Writer) (api.ProcessHandle, error) {
	p, err := m.cm.Exec(ctx, host, cmd, out)
	if err != nil {
		return api.ProcessHandle{}, err
	}
	return api.ProcessHandle{ID: p.ExecID, Host: host}, nil
}

func (m *Manager) Wait(ctx context.Context, h api.ProcessHandle) error {
	p, err := m.cm.Lookup(h.ID)
	if err != nil {
		return err
	}
	return m.cm.Wait(ctx, p)
}

func (m *Manager) Terminate(h api.ProcessHandle) error {
	p, err := m.cm.Lookup(h.ID)
	if err != nil {
		return err
	}
	return m.cm.Kill(p)
}

// Teardown releases hosts, links and bridges. Every step runs even when a
// previous one failed.
func (m *Manager) Teardown(ctx context.Context) error {
	errs := []error{
		m.cm.DeleteNodes(ctx),
		m.lm.DeleteLinks(),
		m.om.DeleteBridges(),
	}
	m.bridges = make(map[string]string)
	m.Topology = api.Topology{}
	log.Infof("manager: topology down")
	return errors.Join(errs...)
}
