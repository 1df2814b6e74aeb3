package util

import (
	"net"
	"testing"
)

func TestBroadcastAddr(t *testing.T) {
	tests := []struct {
		cidr string
		want string
	}{
		{"192.168.0.1/24", "192.168.0.255"},
		{"10.0.0.1/8", "10.255.255.255"},
		{"172.16.5.9/20", "172.16.15.255"},
		{"100.64.0.1/30", "100.64.0.3"},
	}
	for _, tt := range tests {
		ip, network, err := net.ParseCIDR(tt.cidr)
		if err != nil {
			t.Fatalf("ParseCIDR(%q): %v", tt.cidr, err)
		}
		got := BroadcastAddr(ip, network.Mask)
		if got.String() != tt.want {
			t.Errorf("BroadcastAddr(%s) = %s, want %s", tt.cidr, got, tt.want)
		}
	}
}

func TestBroadcastAddrRejectsIPv6(t *testing.T) {
	ip, network, err := net.ParseCIDR("fc00::1/64")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	if got := BroadcastAddr(ip, network.Mask); got != nil {
		t.Errorf("BroadcastAddr on IPv6 = %v, want nil", got)
	}
}
