package util

import "net"

// BroadcastAddr computes the directed broadcast address for an IPv4
// network. The kernel does not reliably infer it for addresses added
// inside a freshly created namespace, so it is set explicitly.
func BroadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	ip = ip.To4()
	if ip == nil || len(mask) != net.IPv4len {
		return nil
	}
	broadcast := make(net.IP, net.IPv4len)
	for idx := range ip {
		broadcast[idx] = ip[idx] | ^mask[idx]
	}
	return broadcast
}
