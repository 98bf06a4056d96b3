package ovs

import (
	"fmt"
	"strings"

	"github.com/digitalocean/go-openvswitch/ovs"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

const BridgePrefix = "dbl-"

// OvsManager runs one OVS bridge per switching node of the topology.
type OvsManager struct {
	oClient *ovs.Client
	bridges []string
}

func NewOvsManager() *OvsManager {
	return &OvsManager{oClient: ovs.New()}
}

// BridgeName maps a switch node name to its bridge name (e.g. BB1 -> dbl-bb1).
func BridgeName(node string) string {
	return BridgePrefix + strings.ToLower(node)
}

// CreateBridge creates the bridge of a switch node and makes it behave as
// a learning switch.
func (om *OvsManager) CreateBridge(node string) (string, error) {
	bridge := BridgeName(node)
	if err := om.oClient.VSwitch.AddBridge(bridge); err != nil {
		return "", fmt.Errorf("failed to add bridge %s: %w", bridge, err)
	}
	om.bridges = append(om.bridges, bridge)

	if err := om.oClient.OpenFlow.AddFlow(bridge, &ovs.Flow{
		Priority: 0,
		Actions:  []ovs.Action{ovs.Normal()},
	}); err != nil {
		return "", fmt.Errorf("failed to add normal flow on %s: %w", bridge, err)
	}

	link, err := netlink.LinkByName(bridge)
	if err != nil {
		return "", fmt.Errorf("failed to find bridge interface %s: %w", bridge, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return "", fmt.Errorf("failed to bring up bridge %s: %w", bridge, err)
	}
	log.Debugf("ovs: bridge %s up for %s", bridge, node)
	return bridge, nil
}

// AddVeth adds the switch side of a veth pair to a bridge
func (om *OvsManager) AddVeth(bridge, veth string) error {
	// Ensure the veth exists
	link, err := netlink.LinkByName(veth)
	if err != nil {
		return fmt.Errorf("failed to find veth interface %s: %w", veth, err)
	}

	// Set up the veth interface if it's not already up
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up veth interface %s: %w", veth, err)
	}

	if err := om.oClient.VSwitch.AddPort(bridge, veth); err != nil {
		return fmt.Errorf("failed to add veth %s to OVS bridge %s: %w", veth, bridge, err)
	}
	return nil
}

// DeleteBridges removes every bridge created so far. Failures are logged
// and do not stop the removal of the remaining bridges.
func (om *OvsManager) DeleteBridges() error {
	var failed []string
	for _, bridge := range om.bridges {
		if err := om.oClient.VSwitch.DeleteBridge(bridge); err != nil {
			log.Warnf("ovs: failed to delete bridge %s: %v", bridge, err)
			failed = append(failed, bridge)
		}
	}
	om.bridges = nil
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete bridges %s", strings.Join(failed, ","))
	}
	return nil
}
