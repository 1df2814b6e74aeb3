package topology

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
}

// buildTwoRouterLAN wires r1 and r2 back to back through one switch:
//
//	r1 eth0 192.168.0.1/24 fc00::1/64 --- s1 --- r2 eth0 192.168.0.2/24 fc00::2/64
//
// and registers cleanup so a failing test still tears everything down.
func buildTwoRouterLAN(t *testing.T) (*Topology, *Router, *Router) {
	t.Helper()

	r1 := NewRouter("r1")
	if _, err := r1.AddInterface("eth0", InterfaceConfig{
		Addrs: []string{"192.168.0.1/24", "fc00::1/64"},
	}); err != nil {
		t.Fatalf("r1 AddInterface: %v", err)
	}
	r2 := NewRouter("r2")
	if _, err := r2.AddInterface("eth0", InterfaceConfig{
		Addrs: []string{"192.168.0.2/24", "fc00::2/64"},
	}); err != nil {
		t.Fatalf("r2 AddInterface: %v", err)
	}

	sw := NewSwitch("s1")
	i1, _ := r1.Interface("eth0")
	i2, _ := r2.Interface("eth0")
	sw.AddInterface(i1)
	sw.AddInterface(i2)

	topo := New()
	for _, node := range []Node{r1, r2, sw} {
		if err := topo.AddNode(node); err != nil {
			t.Fatalf("AddNode(%s): %v", node.Name(), err)
		}
	}
	t.Cleanup(func() {
		if err := topo.Destroy(); err != nil {
			t.Logf("cleanup: %v", err)
		}
	})
	return topo, r1, r2
}

func TestE2EConnectedRoutes(t *testing.T) {
	requireRoot(t)

	topo, r1, _ := buildTwoRouterLAN(t)
	if err := topo.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	routes, err := r1.Routes(netlink.FAMILY_V4)
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	found := false
	for _, route := range routes {
		if route.Dst == nil || route.Dst.String() != "192.168.0.0/24" {
			continue
		}
		found = true
		if route.Src == nil || route.Src.String() != "192.168.0.1" {
			t.Errorf("connected route src = %v, want 192.168.0.1", route.Src)
		}
	}
	if !found {
		t.Errorf("no connected route for 192.168.0.0/24 in %v", routes)
	}
}

func TestE2EStaticRouteViaGateway(t *testing.T) {
	requireRoot(t)

	topo, r1, _ := buildTwoRouterLAN(t)
	r1.AddRoute("192.168.90.0/24", "via", "192.168.0.2")
	if err := topo.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	routes, err := r1.Routes(netlink.FAMILY_V4)
	if err != nil {
		t.Fatalf("Routes: %v", err)
	}
	for _, route := range routes {
		if route.Dst != nil && route.Dst.String() == "192.168.90.0/24" {
			if route.Gw == nil || route.Gw.String() != "192.168.0.2" {
				t.Errorf("static route gateway = %v, want 192.168.0.2", route.Gw)
			}
			return
		}
	}
	t.Errorf("static route 192.168.90.0/24 missing from %v", routes)
}

// Run returning means DAD has finished: querying IPv6 state immediately
// afterwards must find non-tentative addresses, with no extra waiting on
// the caller's side.
func TestE2EIPv6SettledAfterRun(t *testing.T) {
	requireRoot(t)

	topo, r1, _ := buildTwoRouterLAN(t)
	if err := topo.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	addrs, err := r1.InterfaceAddrs("eth0", netlink.FAMILY_V6)
	if err != nil {
		t.Fatalf("InterfaceAddrs: %v", err)
	}
	var linkLocal, global bool
	for _, addr := range addrs {
		if addr.Flags&(unix.IFA_F_TENTATIVE|unix.IFA_F_DADFAILED) != 0 {
			t.Errorf("address %s still tentative after Run", addr.IP)
			continue
		}
		switch addr.Scope {
		case unix.RT_SCOPE_LINK:
			linkLocal = true
		case unix.RT_SCOPE_SITE, unix.RT_SCOPE_UNIVERSE:
			global = true
		}
	}
	if !linkLocal || !global {
		t.Errorf("IPv6 state incomplete (link-local=%v global=%v): %v", linkLocal, global, addrs)
	}
}

func TestE2EEmptyRouterCreateRemove(t *testing.T) {
	requireRoot(t)

	router := NewRouter("r1")
	if err := router.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := router.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if handle, err := netns.GetFromName(router.Namespace()); err == nil {
		handle.Close()
		t.Errorf("namespace %q survived Remove", router.Namespace())
	}
	// Removing again must stay silent.
	if err := router.Remove(); err != nil {
		t.Errorf("second Remove = %v, want nil", err)
	}
}

func TestE2EDestroyLeavesNothingBehind(t *testing.T) {
	requireRoot(t)

	topo, r1, r2 := buildTwoRouterLAN(t)
	if err := topo.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sw, _ := topo.Node("s1")
	bridge := sw.(*Switch).BridgeName()
	i1, _ := r1.Interface("eth0")

	if err := topo.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	for _, namespace := range []string{r1.Namespace(), r2.Namespace()} {
		if handle, err := netns.GetFromName(namespace); err == nil {
			handle.Close()
			t.Errorf("namespace %q survived Destroy", namespace)
		}
		if _, err := os.Stat(runRoot + "/" + namespace); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("run directory for %q survived Destroy", namespace)
		}
	}
	for _, device := range []string{bridge, i1.HostName()} {
		if _, err := netlink.LinkByName(device); err == nil {
			t.Errorf("host device %q survived Destroy", device)
		}
	}
}

// failingSwitch stands in for a switch whose creation blows up after the
// routers already exist, forcing the rollback path against real kernel
// resources.
type failingSwitch struct{}

func (failingSwitch) Name() string   { return "s-broken" }
func (failingSwitch) Kind() NodeKind { return KindSwitch }
func (failingSwitch) Create() error  { return fmt.Errorf("induced failure") }
func (failingSwitch) Remove() error  { return nil }

func TestE2ERollbackCleansUpRouters(t *testing.T) {
	requireRoot(t)

	r1 := NewRouter("r1")
	if _, err := r1.AddInterface("eth0", InterfaceConfig{
		Addrs: []string{"192.168.0.1/24"},
	}); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}

	topo := New()
	if err := topo.AddNode(r1); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := topo.AddNode(failingSwitch{}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if err := topo.Run(); err == nil {
		t.Fatal("Run = nil error, want induced failure")
	}

	if handle, err := netns.GetFromName(r1.Namespace()); err == nil {
		handle.Close()
		t.Errorf("namespace %q survived rollback", r1.Namespace())
	}
	iface, _ := r1.Interface("eth0")
	if _, err := netlink.LinkByName(iface.HostName()); err == nil {
		t.Errorf("host veth %q survived rollback", iface.HostName())
	}
}
