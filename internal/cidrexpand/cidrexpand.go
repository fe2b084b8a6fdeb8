// Package cidrexpand turns a CIDR block into the flat list of addresses
// it covers, for the CLI's convenience in accepting "10.0.0.0/30"
// alongside individual hosts (grounded on the original tool's use of
// Python's ipaddress.ip_network(..., strict=False) to enumerate a
// block's addresses before pinging each one).
package cidrexpand

import (
	"fmt"
	"net"
)

// Expand returns every address covered by cidr, in ascending order,
// including the network and broadcast addresses (spec §8 S5:
// "192.0.2.0/30 expands to [192.0.2.0, 192.0.2.1, 192.0.2.2,
// 192.0.2.3]" — a ping sweep targets the whole block, not just its
// usable-host subset).
func Expand(cidr string) ([]string, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("cidrexpand: %w", err)
	}

	var out []string
	for a := cloneIP(ipnet.IP); ipnet.Contains(a); inc(a) {
		out = append(out, a.String())
	}
	return out, nil
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func inc(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}
