package link

import (
	"Dumbbell/api"
	"Dumbbell/pkg/ovs"
	"errors"
	"fmt"
	"net"
	"strings"

	ns "github.com/containernetworking/plugins/pkg/ns"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

const MTU = 1500

// Endpoint is one side of a link: a host (NetNs set) or a switch (Bridge set).
type Endpoint struct {
	Node   api.Node
	Bridge string
}

func (e Endpoint) isHost() bool {
	return !e.Node.Kind.IsSwitch()
}

// LinkManager turns topology edges into shaped veth pairs.
type LinkManager struct {
	om *ovs.OvsManager

	// root namespace veths, deleted on teardown
	veths []string
}

func NewLinkManager(o *ovs.OvsManager) *LinkManager {
	return &LinkManager{
		om: o,
	}
}

// VethName names the src side of the src<->dst veth pair.
func VethName(src, dst string) string {
	return strings.ToLower(src) + "-" + strings.ToLower(dst)
}

// AddLink creates the veth pair for l, plugs each end into its bridge or
// host namespace and applies the link shaping on both ends.
func (lm *LinkManager) AddLink(l *api.Link, src, dst Endpoint) error {
	srcName := VethName(l.SrcNode, l.DstNode)
	dstName := VethName(l.DstNode, l.SrcNode)

	linkAttr := netlink.NewLinkAttrs()
	linkAttr.Name = srcName
	linkAttr.MTU = MTU
	veth := &netlink.Veth{
		LinkAttrs: linkAttr,
		PeerName:  dstName,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("failed to create veth pair %s/%s: %w", srcName, dstName, err)
	}
	lm.veths = append(lm.veths, srcName)

	shaping := ShapingFor(l.Properties)

	intf, err := lm.attach(srcName, src, shaping)
	if err != nil {
		return err
	}
	l.SrcIntf = intf

	intf, err = lm.attach(dstName, dst, shaping)
	if err != nil {
		return err
	}
	l.DstIntf = intf

	log.Infof("link: %s <-> %s up (%.0fMbps, %.0fms, queue %.0f)",
		l.SrcNode, l.DstNode, l.Properties.BandwidthMbps, l.Properties.PropagationDelayMs, l.Properties.MaxQueuePackets)
	return nil
}

func (lm *LinkManager) attach(name string, ep Endpoint, shaping Shaping) (api.NodeInterface, error) {
	intf := api.NodeInterface{Name: name, NodeName: ep.Node.Name}
	// the address survives the move into the host namespace
	if l, err := netlink.LinkByName(name); err == nil {
		intf.Mac = l.Attrs().HardwareAddr.String()
	}
	if ep.isHost() {
		intf.Ipv4 = ep.Node.Interface.Ipv4
		intf.NetNs = ep.Node.NetNs
		return intf, lm.attachHost(name, ep.Node, shaping)
	}

	intf.BrName = ep.Bridge
	if err := lm.om.AddVeth(ep.Bridge, name); err != nil {
		return intf, err
	}
	return intf, ApplyShaping(name, shaping)
}

// attachHost moves one end into the host namespace, assigns the host
// address and shapes it from inside the namespace.
func (lm *LinkManager) attachHost(name string, n api.Node, shaping Shaping) error {
	hostLink, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to get link by name %s: %w", name, err)
	}

	// find the container network namespace
	containerNs, err := ns.GetNS(n.NetNs)
	if err != nil {
		return fmt.Errorf("failed to get namespace for %s: %w", n.Name, err)
	}
	defer containerNs.Close()

	if err = netlink.LinkSetNsFd(hostLink, int(containerNs.Fd())); err != nil {
		return fmt.Errorf("failed to set namespace for veth %s: %w", name, err)
	}

	return containerNs.Do(func(_ ns.NetNS) error {
		// get the link in the container namespace
		containerVeth, err := netlink.LinkByName(name)
		if err != nil {
			return fmt.Errorf("failed to get link in container namespace: %w", err)
		}

		ip, ipNet, err := net.ParseCIDR(n.Interface.Ipv4)
		if err != nil {
			return fmt.Errorf("failed to parse CIDR %q: %w", n.Interface.Ipv4, err)
		}
		if err = netlink.AddrAdd(containerVeth, &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: ipNet.Mask}}); err != nil {
			return fmt.Errorf("failed to add address to link: %w", err)
		}

		if err = netlink.LinkSetUp(containerVeth); err != nil {
			return fmt.Errorf("failed to set link up: %w", err)
		}
		return ApplyShaping(name, shaping)
	})
}

// DeleteLinks removes the root namespace veths. Deleting one end removes
// its peer as well, host ends vanish with their container.
func (lm *LinkManager) DeleteLinks() error {
	var errs []error
	for _, name := range lm.veths {
		link, err := netlink.LinkByName(name)
		if err != nil {
			// already gone with its peer
			continue
		}
		if err := netlink.LinkDel(link); err != nil {
			log.Warnf("link: failed to delete %s: %v", name, err)
			errs = append(errs, err)
		}
	}
	lm.veths = nil
	return errors.Join(errs...)
}
