package topology

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/containernetworking/plugins/pkg/utils/sysctl"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/netlab-sim/netlab/pkg/nsenter"
	"github.com/netlab-sim/netlab/pkg/util"
)

// runRoot is the well-known runtime root holding one scratch directory per
// namespace (PID files, sockets, logs).
const runRoot = "/run/netlab"

// Router is the isolation unit of a topology: a network namespace with a
// run directory, a set of named interfaces created in insertion order, and
// a list of static routes.
type Router struct {
	name      string
	namespace string
	runDir    string

	ifaces       []*Interface
	ifacesByName map[string]*Interface
	routes       [][]string

	created bool
	log     *logrus.Entry
}

// NewRouter returns a router with a freshly generated namespace name.
// Nothing is materialized until Create runs.
func NewRouter(name string) *Router {
	namespace := namespaceName()
	return &Router{
		name:         name,
		namespace:    namespace,
		runDir:       runRoot + "/" + namespace,
		ifacesByName: make(map[string]*Interface),
		log:          util.WithNode(name).WithField("namespace", namespace),
	}
}

// Name returns the node name.
func (r *Router) Name() string { return r.name }

// Kind returns KindRouter.
func (r *Router) Kind() NodeKind { return KindRouter }

// Namespace returns the generated namespace name.
func (r *Router) Namespace() string { return r.namespace }

// RunDir returns the per-router scratch directory.
func (r *Router) RunDir() string { return r.runDir }

// AddInterface registers an interface to be created with the router. It
// fails before touching any resource when the name is already taken or the
// configuration does not parse.
func (r *Router) AddInterface(name string, cfg InterfaceConfig) (*Interface, error) {
	if _, exists := r.ifacesByName[name]; exists {
		return nil, fmt.Errorf("%w: %q on router %q", ErrDuplicateInterface, name, r.name)
	}
	iface, err := newInterface(r, name, cfg)
	if err != nil {
		return nil, err
	}
	r.ifacesByName[name] = iface
	r.ifaces = append(r.ifaces, iface)
	return iface, nil
}

// Interface returns the named interface, if present.
func (r *Router) Interface(name string) (*Interface, bool) {
	iface, ok := r.ifacesByName[name]
	return iface, ok
}

// AddRoute appends a static route given as verbatim `ip route add`
// arguments, e.g. ("192.168.90.0/24", "via", "192.168.0.2"). The
// arguments are not validated; they are handed to the routing tool
// unchanged at creation time.
func (r *Router) AddRoute(args ...string) {
	r.routes = append(r.routes, args)
}

// Create materializes the router: namespace, loopback up, interfaces in
// insertion order, IPv4+IPv6 forwarding, then static routes in insertion
// order. A failing step aborts the remaining ones and surfaces the error;
// rollback is the topology's responsibility.
func (r *Router) Create() error {
	r.log.Infof("Creating router %q", r.name)

	if err := os.MkdirAll(r.runDir, 0o755); err != nil {
		return fmt.Errorf("topology: router %q: create run directory %q: %w", r.name, r.runDir, err)
	}
	if err := nsenter.AddNamed(r.namespace); err != nil {
		return fmt.Errorf("topology: router %q: %w", r.name, err)
	}
	r.created = true

	if err := r.loopbackUp(); err != nil {
		return err
	}
	for _, iface := range r.ifaces {
		if err := iface.Create(); err != nil {
			return err
		}
	}
	if err := r.enableForwarding(); err != nil {
		return err
	}
	for _, route := range r.routes {
		args := append([]string{"ip", "route", "add"}, route...)
		if _, err := r.RunInNS(args...); err != nil {
			return fmt.Errorf("topology: router %q: add route %v: %w", r.name, route, err)
		}
	}
	return nil
}

// Remove tears the router down: every interface first, then the namespace
// and run directory. Removal is a no-op for a never-created router, and
// one failing interface does not stop the rest of the teardown.
func (r *Router) Remove() error {
	r.log.Infof("Removing router %q", r.name)

	var errs []error
	for _, iface := range r.ifaces {
		if err := iface.Remove(); err != nil {
			r.log.Warnf("Interface removal failed: %v", err)
			errs = append(errs, err)
		}
	}

	if r.created {
		if err := nsenter.DeleteNamed(r.namespace); err != nil {
			errs = append(errs, fmt.Errorf("topology: router %q: %w", r.name, err))
		} else {
			r.created = false
		}
		if err := os.RemoveAll(r.runDir); err != nil {
			errs = append(errs, fmt.Errorf("topology: router %q: remove run directory: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

// RunInNS runs a command inside the router's namespace and returns its
// combined output. Used for verbatim route arguments and by the daemon
// wrappers.
func (r *Router) RunInNS(argv ...string) (string, error) {
	return nsenter.Output(r.namespace, argv...)
}

// StartInNS launches a long-running command inside the router's namespace
// without waiting for it.
func (r *Router) StartInNS(cmd *exec.Cmd) error {
	return nsenter.Start(r.namespace, cmd)
}

// Routes returns the namespace's route table for the given netlink
// address family (netlink.FAMILY_V4 or netlink.FAMILY_V6).
func (r *Router) Routes(family int) ([]netlink.Route, error) {
	handle, done, err := r.handle()
	if err != nil {
		return nil, err
	}
	defer done()

	routes, err := handle.RouteList(nil, family)
	if err != nil {
		return nil, fmt.Errorf("topology: router %q: list routes: %w", r.name, err)
	}
	return routes, nil
}

// InterfaceAddrs returns the addresses currently assigned to a
// namespace-side interface for the given address family.
func (r *Router) InterfaceAddrs(name string, family int) ([]netlink.Addr, error) {
	handle, done, err := r.handle()
	if err != nil {
		return nil, err
	}
	defer done()

	link, err := handle.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("topology: router %q: lookup %q: %w", r.name, name, err)
	}
	addrs, err := handle.AddrList(link, family)
	if err != nil {
		return nil, fmt.Errorf("topology: router %q: list addresses on %q: %w", r.name, name, err)
	}
	return addrs, nil
}

// handle returns a netlink handle bound to the router's namespace. The
// returned func releases both the handle and the namespace fd.
func (r *Router) handle() (*netlink.Handle, func(), error) {
	nsHandle, err := netns.GetFromName(r.namespace)
	if err != nil {
		return nil, nil, fmt.Errorf("topology: router %q: resolve namespace %q: %w", r.name, r.namespace, err)
	}
	handle, err := netlink.NewHandleAt(nsHandle)
	if err != nil {
		nsHandle.Close()
		return nil, nil, fmt.Errorf("topology: router %q: open netlink handle: %w", r.name, err)
	}
	return handle, func() {
		handle.Close()
		nsHandle.Close()
	}, nil
}

func (r *Router) loopbackUp() error {
	handle, done, err := r.handle()
	if err != nil {
		return err
	}
	defer done()

	lo, err := handle.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("topology: router %q: lookup loopback: %w", r.name, err)
	}
	if err := handle.LinkSetUp(lo); err != nil {
		return fmt.Errorf("topology: router %q: set loopback up: %w", r.name, err)
	}
	return nil
}

func (r *Router) enableForwarding() error {
	return nsenter.Do(r.namespace, func() error {
		for _, key := range []string{
			"net/ipv4/conf/all/forwarding",
			"net/ipv6/conf/all/forwarding",
		} {
			if _, err := sysctl.Sysctl(key, "1"); err != nil {
				return fmt.Errorf("topology: router %q: enable %s: %w", r.name, key, err)
			}
		}
		return nil
	})
}
