package topology

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/containernetworking/plugins/pkg/utils/sysctl"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"github.com/netlab-sim/netlab/pkg/nsenter"
	"github.com/netlab-sim/netlab/pkg/util"
)

// Retry and poll bounds. Empirically tuned; override per interface via
// InterfaceConfig when a host or kernel needs different budgets.
const (
	defaultCreateRetries  = 5
	defaultRetryBackoff   = time.Second
	defaultSettleAttempts = 60
	defaultSettleInterval = 100 * time.Millisecond
)

// InterfaceConfig configures an interface added to a router. The zero
// value is valid: random MAC, no addresses, IPv6 DAD and RA disabled,
// default retry/poll budgets.
type InterfaceConfig struct {
	// MAC is the namespace-side hardware address. Empty means a random
	// locally-administered address.
	MAC string
	// Addrs are CIDR addresses assigned to the namespace side, in order.
	Addrs []string
	// IPv6DAD enables duplicate-address detection on the namespace side.
	IPv6DAD bool
	// IPv6RA enables router-advertisement acceptance on the namespace side.
	IPv6RA bool

	// CreateRetries bounds veth creation attempts (default 5).
	CreateRetries int
	// RetryBackoff is the fixed sleep between creation attempts (default 1s).
	RetryBackoff time.Duration
	// SettleAttempts bounds the IPv6 readiness poll (default 60).
	SettleAttempts int
	// SettleInterval is the fixed sleep between poll attempts (default 100ms).
	SettleInterval time.Duration
}

// Interface is a veth pair with one endpoint on the host and one inside
// its owning router's namespace. The host-side name is random and
// process-unique; the namespace-side name is the interface name itself.
type Interface struct {
	name     string
	hostName string
	owner    *Router

	mac     net.HardwareAddr
	addrs   []*netlink.Addr
	ipv6DAD bool
	ipv6RA  bool

	createRetries  int
	retryBackoff   time.Duration
	settleAttempts int
	settleInterval time.Duration

	created bool
	log     *logrus.Entry
}

func newInterface(owner *Router, name string, cfg InterfaceConfig) (*Interface, error) {
	i := &Interface{
		name:           name,
		hostName:       hostIfaceName(),
		owner:          owner,
		ipv6DAD:        cfg.IPv6DAD,
		ipv6RA:         cfg.IPv6RA,
		createRetries:  cfg.CreateRetries,
		retryBackoff:   cfg.RetryBackoff,
		settleAttempts: cfg.SettleAttempts,
		settleInterval: cfg.SettleInterval,
		log:            util.WithNode(owner.Name()).WithField("interface", name),
	}
	if i.createRetries <= 0 {
		i.createRetries = defaultCreateRetries
	}
	if i.retryBackoff <= 0 {
		i.retryBackoff = defaultRetryBackoff
	}
	if i.settleAttempts <= 0 {
		i.settleAttempts = defaultSettleAttempts
	}
	if i.settleInterval <= 0 {
		i.settleInterval = defaultSettleInterval
	}

	if cfg.MAC != "" {
		mac, err := net.ParseMAC(cfg.MAC)
		if err != nil {
			return nil, fmt.Errorf("topology: interface %q: parse MAC %q: %w", name, cfg.MAC, err)
		}
		i.mac = mac
	} else {
		i.mac = randomMAC()
	}

	for _, raw := range cfg.Addrs {
		addr, err := netlink.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("topology: interface %q: parse address %q: %w", name, raw, err)
		}
		// Attach the broadcast address explicitly below /31.
		if ip4 := addr.IP.To4(); ip4 != nil {
			if ones, _ := addr.Mask.Size(); ones < 31 {
				addr.Broadcast = util.BroadcastAddr(ip4, addr.Mask)
			}
		}
		i.addrs = append(i.addrs, addr)
	}

	return i, nil
}

// Name returns the namespace-side interface name.
func (i *Interface) Name() string { return i.name }

// HostName returns the host-side veth endpoint name.
func (i *Interface) HostName() string { return i.hostName }

// Owner returns the router the namespace-side endpoint lives in.
func (i *Interface) Owner() *Router { return i.owner }

// MAC returns the namespace-side hardware address.
func (i *Interface) MAC() net.HardwareAddr { return i.mac }

// Addrs returns the configured addresses in assignment order.
func (i *Interface) Addrs() []*netlink.Addr { return i.addrs }

// Create materializes the veth pair and configures the namespace side:
// MAC, DAD/RA flags, addresses (with explicit IPv4 broadcast), both
// endpoints up, and, when any IPv6 address is configured, a bounded poll
// until the namespace side has non-tentative link-local and site-or-global
// addresses.
func (i *Interface) Create() error {
	i.log.Infof("Creating interface %q (host side %q)", i.name, i.hostName)

	if err := i.createVeth(); err != nil {
		return err
	}
	// From here on the device exists; mark it created immediately so a
	// failure in any later step still tears it down.
	i.created = true

	if err := i.setMAC(); err != nil {
		return err
	}
	if err := i.configureNDFlags(); err != nil {
		return err
	}
	hasIPv6, err := i.addAddrs()
	if err != nil {
		return err
	}
	if err := i.bringUp(); err != nil {
		return err
	}
	if hasIPv6 {
		if err := i.waitIPv6Settled(); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the host-side endpoint, which takes the namespace-side
// peer with it. Removing a never-created or already-removed interface is
// a no-op.
func (i *Interface) Remove() error {
	if !i.created {
		return nil
	}
	i.log.Infof("Removing interface %q (host side %q)", i.name, i.hostName)

	link, err := netlink.LinkByName(i.hostName)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			i.created = false
			return nil
		}
		return fmt.Errorf("topology: lookup host veth %q: %w", i.hostName, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("topology: remove host veth %q: %w", i.hostName, err)
	}
	i.created = false
	return nil
}

// createVeth creates the pair with the peer bound directly into the
// owner's namespace. The kernel can transiently reject interface creation
// right after namespace creation, so this retries on a fixed backoff.
func (i *Interface) createVeth() error {
	namespace := i.owner.Namespace()
	nsHandle, err := netns.GetFromName(namespace)
	if err != nil {
		return fmt.Errorf("topology: interface %q: resolve namespace %q: %w", i.name, namespace, err)
	}
	defer nsHandle.Close()

	attrs := netlink.NewLinkAttrs()
	attrs.Name = i.hostName
	veth := &netlink.Veth{
		LinkAttrs:     attrs,
		PeerName:      i.name,
		PeerNamespace: netlink.NsFd(int(nsHandle)),
	}

	var lastErr error
	for attempt := 1; attempt <= i.createRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(i.retryBackoff)
		}
		if lastErr = netlink.LinkAdd(veth); lastErr == nil {
			return nil
		}
		i.log.Debugf("veth create attempt %d/%d failed: %v", attempt, i.createRetries, lastErr)
	}
	return fmt.Errorf("topology: create veth %s => %s [%s]: %w",
		i.hostName, i.name, namespace, lastErr)
}

func (i *Interface) setMAC() error {
	handle, done, err := i.owner.handle()
	if err != nil {
		return err
	}
	defer done()

	link, err := handle.LinkByName(i.name)
	if err != nil {
		return fmt.Errorf("topology: lookup %q in namespace %q: %w", i.name, i.owner.Namespace(), err)
	}
	if err := handle.LinkSetHardwareAddr(link, i.mac); err != nil {
		return fmt.Errorf("topology: set MAC %s on %q: %w", i.mac, i.name, err)
	}
	return nil
}

// configureNDFlags disables DAD and RA on the host side unconditionally
// (link-local races there would interfere with host networking) and sets
// the namespace side to the configured values.
func (i *Interface) configureNDFlags() error {
	for key, value := range map[string]string{
		"accept_dad": "0",
		"accept_ra":  "0",
	} {
		if _, err := sysctl.Sysctl("net/ipv6/conf/"+i.hostName+"/"+key, value); err != nil {
			return fmt.Errorf("topology: set host %s on %q: %w", key, i.hostName, err)
		}
	}

	return nsenter.Do(i.owner.Namespace(), func() error {
		for key, value := range map[string]string{
			"accept_dad": sysctlBool(i.ipv6DAD),
			"accept_ra":  sysctlBool(i.ipv6RA),
		} {
			if _, err := sysctl.Sysctl("net/ipv6/conf/"+i.name+"/"+key, value); err != nil {
				return fmt.Errorf("topology: set namespace %s on %q: %w", key, i.name, err)
			}
		}
		return nil
	})
}

// addAddrs assigns the configured addresses in insertion order and reports
// whether any of them was IPv6.
func (i *Interface) addAddrs() (bool, error) {
	handle, done, err := i.owner.handle()
	if err != nil {
		return false, err
	}
	defer done()

	link, err := handle.LinkByName(i.name)
	if err != nil {
		return false, fmt.Errorf("topology: lookup %q in namespace %q: %w", i.name, i.owner.Namespace(), err)
	}

	hasIPv6 := false
	for _, addr := range i.addrs {
		if addr.IP.To4() == nil {
			hasIPv6 = true
		}
		if err := handle.AddrAdd(link, addr); err != nil {
			return false, fmt.Errorf("topology: add address %s to %q: %w", addr, i.name, err)
		}
	}
	return hasIPv6, nil
}

func (i *Interface) bringUp() error {
	hostLink, err := netlink.LinkByName(i.hostName)
	if err != nil {
		return fmt.Errorf("topology: lookup host veth %q: %w", i.hostName, err)
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		return fmt.Errorf("topology: set host veth %q up: %w", i.hostName, err)
	}

	handle, done, err := i.owner.handle()
	if err != nil {
		return err
	}
	defer done()

	link, err := handle.LinkByName(i.name)
	if err != nil {
		return fmt.Errorf("topology: lookup %q in namespace %q: %w", i.name, i.owner.Namespace(), err)
	}
	if err := handle.LinkSetUp(link); err != nil {
		return fmt.Errorf("topology: set %q up in namespace %q: %w", i.name, i.owner.Namespace(), err)
	}
	return nil
}

// waitIPv6Settled polls until the namespace side has a non-tentative
// link-local address and a non-tentative site-or-global address. "Link is
// up" does not imply DAD has finished; callers querying routing state
// right after bring-up would otherwise race the kernel.
func (i *Interface) waitIPv6Settled() error {
	handle, done, err := i.owner.handle()
	if err != nil {
		return err
	}
	defer done()

	link, err := handle.LinkByName(i.name)
	if err != nil {
		return fmt.Errorf("topology: lookup %q in namespace %q: %w", i.name, i.owner.Namespace(), err)
	}

	for attempt := 0; attempt < i.settleAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(i.settleInterval)
		}
		addrs, err := handle.AddrList(link, netlink.FAMILY_V6)
		if err != nil {
			return fmt.Errorf("topology: list IPv6 addresses on %q: %w", i.name, err)
		}

		var linkLocal, scoped bool
		for _, addr := range addrs {
			if addr.Flags&(unix.IFA_F_TENTATIVE|unix.IFA_F_DADFAILED) != 0 {
				continue
			}
			switch addr.Scope {
			case unix.RT_SCOPE_LINK:
				linkLocal = true
			case unix.RT_SCOPE_SITE, unix.RT_SCOPE_UNIVERSE:
				scoped = true
			}
		}
		if linkLocal && scoped {
			return nil
		}
	}

	// Report the current address state for diagnostics.
	addrs, _ := handle.AddrList(link, netlink.FAMILY_V6)
	return fmt.Errorf("topology: interface %q in namespace %q: IPv6 addresses not settled after %d attempts: %v",
		i.name, i.owner.Namespace(), i.settleAttempts, addrs)
}

func sysctlBool(enabled bool) string {
	if enabled {
		return "1"
	}
	return "0"
}
