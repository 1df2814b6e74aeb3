package topology

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"

	petname "github.com/dustinkirkland/golang-petname"
)

// Host-global resources (namespace names, host-side veth names, bridge
// names) must not collide across concurrent runs on the same host.
// Uniqueness comes from random tokens, not coordination: concurrent
// topologies rely on probabilistic non-collision.

func randomToken(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand on Linux cannot fail short of a broken kernel.
		panic("topology: random source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// namespaceName generates a namespace name with a readable prefix and a
// random token, e.g. "wired-mole-9f2ac01b".
func namespaceName() string {
	return petname.Generate(2, "-") + "-" + randomToken(4)
}

// bridgeName generates a host bridge device name.
func bridgeName() string {
	return "br-" + randomToken(5)
}

// hostIfaceNames tracks every host-side veth name handed out by this
// process. Names stay reserved for the process lifetime; a removed
// interface is never resurrected under its old host name.
var (
	hostIfaceMu    sync.Mutex
	hostIfaceNames = make(map[string]struct{})
)

// hostIfaceName generates a process-unique host-side veth name.
func hostIfaceName() string {
	hostIfaceMu.Lock()
	defer hostIfaceMu.Unlock()
	for {
		name := "veth-" + randomToken(4)
		if _, taken := hostIfaceNames[name]; taken {
			continue
		}
		hostIfaceNames[name] = struct{}{}
		return name
	}
}

// randomMAC generates a locally-administered unicast MAC address.
func randomMAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	if _, err := rand.Read(mac[1:]); err != nil {
		panic("topology: random source unavailable: " + err.Error())
	}
	mac[0] = 0x02
	return mac
}
