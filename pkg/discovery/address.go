package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference sorts addresses for a LAN client, most reachable
// first:
//  1. IPv4 addresses
//  2. IPv6 global and unique local addresses
//  3. IPv6 link-local addresses (they need a zone)
//  4. Loopback and anything else
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	switch {
	case ip.To16() == nil:
		return 99
	case ip.IsLoopback():
		return 80
	case ip.To4() != nil:
		return 0
	case ip.IsGlobalUnicast():
		return 10
	case ip.IsLinkLocalUnicast():
		return 20
	default:
		return 50
	}
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
