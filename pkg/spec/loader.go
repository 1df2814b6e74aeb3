package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netlab-sim/netlab/pkg/topology"
)

// Load reads and validates a topology file. Every structural problem
// (unknown fields, empty or duplicate names, dangling switch members) is
// reported here, before any resource is created.
func Load(path string) (*TopologyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spec: read %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file TopologyFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("spec: parse %q: %w", path, err)
	}

	if err := file.validate(); err != nil {
		return nil, fmt.Errorf("spec: %q: %w", path, err)
	}
	return &file, nil
}

func (f *TopologyFile) validate() error {
	if len(f.Routers) == 0 {
		return fmt.Errorf("no routers defined")
	}

	ifaces := make(map[string]struct{})
	nodes := make(map[string]struct{})
	for _, router := range f.Routers {
		if router.Name == "" {
			return fmt.Errorf("router with empty name")
		}
		if _, dup := nodes[router.Name]; dup {
			return fmt.Errorf("duplicate node name %q", router.Name)
		}
		nodes[router.Name] = struct{}{}

		for _, iface := range router.Interfaces {
			if iface.Name == "" {
				return fmt.Errorf("router %q: interface with empty name", router.Name)
			}
			ref := router.Name + ":" + iface.Name
			if _, dup := ifaces[ref]; dup {
				return fmt.Errorf("router %q: duplicate interface %q", router.Name, iface.Name)
			}
			ifaces[ref] = struct{}{}
		}
	}

	for _, sw := range f.Switches {
		if sw.Name == "" {
			return fmt.Errorf("switch with empty name")
		}
		if _, dup := nodes[sw.Name]; dup {
			return fmt.Errorf("duplicate node name %q", sw.Name)
		}
		nodes[sw.Name] = struct{}{}

		if len(sw.Members) == 0 {
			return fmt.Errorf("switch %q has no members", sw.Name)
		}
		for _, member := range sw.Members {
			if !strings.Contains(member, ":") {
				return fmt.Errorf("switch %q: member %q is not router:interface", sw.Name, member)
			}
			if _, ok := ifaces[member]; !ok {
				return fmt.Errorf("switch %q: member %q does not match any interface", sw.Name, member)
			}
		}
	}
	return nil
}

// Build materializes the file into a topology ready to Run. Interface
// configuration that does not parse (MAC, addresses) fails here.
func (f *TopologyFile) Build() (*topology.Topology, error) {
	topo := topology.New()
	routers := make(map[string]*topology.Router)

	for _, routerSpec := range f.Routers {
		router := topology.NewRouter(routerSpec.Name)
		for _, ifaceSpec := range routerSpec.Interfaces {
			if _, err := router.AddInterface(ifaceSpec.Name, topology.InterfaceConfig{
				MAC:     ifaceSpec.MAC,
				Addrs:   ifaceSpec.IPs,
				IPv6DAD: ifaceSpec.IPv6DAD,
				IPv6RA:  ifaceSpec.IPv6RA,
			}); err != nil {
				return nil, fmt.Errorf("spec: router %q: %w", routerSpec.Name, err)
			}
		}
		for _, route := range routerSpec.Routes {
			router.AddRoute(route...)
		}
		if err := topo.AddNode(router); err != nil {
			return nil, fmt.Errorf("spec: %w", err)
		}
		routers[routerSpec.Name] = router
	}

	for _, switchSpec := range f.Switches {
		sw := topology.NewSwitch(switchSpec.Name)
		for _, member := range switchSpec.Members {
			routerName, ifaceName, _ := strings.Cut(member, ":")
			router, ok := routers[routerName]
			if !ok {
				return nil, fmt.Errorf("spec: switch %q: member %q names unknown router %q",
					switchSpec.Name, member, routerName)
			}
			iface, ok := router.Interface(ifaceName)
			if !ok {
				return nil, fmt.Errorf("spec: switch %q: member %q not found", switchSpec.Name, member)
			}
			sw.AddInterface(iface)
		}
		if err := topo.AddNode(sw); err != nil {
			return nil, fmt.Errorf("spec: %w", err)
		}
	}
	return topo, nil
}
