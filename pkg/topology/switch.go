package topology

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/netlab-sim/netlab/pkg/util"
)

// Switch is a host bridge that enslaves the host-side endpoints of
// interfaces owned by routers. It references interfaces, it does not own
// them: their lifetime is governed by their router.
type Switch struct {
	name       string
	bridgeName string
	members    []*Interface
	created    bool
	log        *logrus.Entry
}

// NewSwitch returns a switch with a freshly generated bridge device name.
func NewSwitch(name string) *Switch {
	s := &Switch{
		name:       name,
		bridgeName: bridgeName(),
	}
	s.log = util.WithNode(name).WithField("bridge", s.bridgeName)
	return s
}

// Name returns the node name.
func (s *Switch) Name() string { return s.name }

// Kind returns KindSwitch.
func (s *Switch) Kind() NodeKind { return KindSwitch }

// BridgeName returns the generated bridge device name.
func (s *Switch) BridgeName() string { return s.bridgeName }

// AddInterface appends an interface whose host-side endpoint will be
// enslaved to the bridge, in insertion order.
func (s *Switch) AddInterface(iface *Interface) {
	s.members = append(s.members, iface)
}

// Create adds the bridge with zero forwarding delay, brings it up, and
// enslaves every member's host-side endpoint in insertion order. Members
// must already exist, which the topology guarantees by creating routers
// first.
func (s *Switch) Create() error {
	s.log.Infof("Creating switch %q", s.name)

	attrs := netlink.NewLinkAttrs()
	attrs.Name = s.bridgeName
	bridge := &netlink.Bridge{LinkAttrs: attrs}
	if err := netlink.LinkAdd(bridge); err != nil {
		return fmt.Errorf("topology: create bridge %q: %w", s.bridgeName, err)
	}
	s.created = true

	// netlink has no knob for this attribute; the bridge starts
	// forwarding immediately instead of sitting in listening/learning.
	delayPath := "/sys/class/net/" + s.bridgeName + "/bridge/forward_delay"
	if err := os.WriteFile(delayPath, []byte("0"), 0o644); err != nil {
		return fmt.Errorf("topology: set forward delay on bridge %q: %w", s.bridgeName, err)
	}

	if err := netlink.LinkSetUp(bridge); err != nil {
		return fmt.Errorf("topology: set bridge %q up: %w", s.bridgeName, err)
	}

	for _, member := range s.members {
		s.log.Infof("Enslaving %q from %q to switch %q", member.Name(), member.Owner().Name(), s.name)
		hostLink, err := netlink.LinkByName(member.HostName())
		if err != nil {
			return fmt.Errorf("topology: lookup host veth %q for bridge %q: %w",
				member.HostName(), s.bridgeName, err)
		}
		if err := netlink.LinkSetMaster(hostLink, bridge); err != nil {
			return fmt.Errorf("topology: set master of %q to bridge %q: %w",
				member.HostName(), s.bridgeName, err)
		}
	}
	return nil
}

// Remove deletes the bridge device if it was created. Members detach
// implicitly; deleting them is their owning router's job.
func (s *Switch) Remove() error {
	if !s.created {
		return nil
	}
	s.log.Infof("Removing switch %q", s.name)

	link, err := netlink.LinkByName(s.bridgeName)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			s.created = false
			return nil
		}
		return fmt.Errorf("topology: lookup bridge %q: %w", s.bridgeName, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("topology: remove bridge %q: %w", s.bridgeName, err)
	}
	s.created = false
	return nil
}
