// Package spec loads declarative topology files and materializes them
// into runnable topologies.
package spec

// TopologyFile is the root of a topology YAML document.
type TopologyFile struct {
	Routers  []RouterSpec `yaml:"routers"`
	Switches []SwitchSpec `yaml:"switches"`
}

// RouterSpec declares one router: its interfaces in creation order and
// its static routes as verbatim `ip route add` argument lists.
type RouterSpec struct {
	Name       string          `yaml:"name"`
	Interfaces []InterfaceSpec `yaml:"interfaces"`
	Routes     [][]string      `yaml:"routes"`
}

// InterfaceSpec declares one interface on a router. MAC is optional; an
// empty value means a random locally-administered address.
type InterfaceSpec struct {
	Name    string   `yaml:"name"`
	MAC     string   `yaml:"mac"`
	IPs     []string `yaml:"ips"`
	IPv6DAD bool     `yaml:"ipv6_dad"`
	IPv6RA  bool     `yaml:"ipv6_ra"`
}

// SwitchSpec declares one switch and the interfaces it bridges, each
// given as "router:interface".
type SwitchSpec struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}
