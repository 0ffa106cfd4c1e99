package server

import (
	"net"
	"strings"
)

// mustParseCIDR accepts a CIDR or a bare address. Invalid entries match
// nothing.
func mustParseCIDR(s string) *net.IPNet {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		if ip := net.ParseIP(s); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
	}

	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return &net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(32, 32)}
	}
	return network
}
