// Package privacy masks personal data before it reaches logs.
package privacy

import (
	"net/netip"
)

// AnonymizeIP masks an address to its /24 (IPv4) or /48 (IPv6) network so
// logs can group abusive sources without recording individual hosts.
// Returns "unknown" for empty input and "invalid" for unparseable input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
