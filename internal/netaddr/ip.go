// Package netaddr packs textual IP addresses into the fixed 16-byte form the
// confirmation store records as request provenance.
package netaddr

import (
	"fmt"
	"net/netip"
	"strings"
)

// PackIP16 converts an IPv4 or IPv6 address string to 16 bytes. IPv4
// addresses come back in IPv4-mapped form (::ffff:a.b.c.d) so a single
// column width covers both families. Zoned addresses (fe80::1%eth0) are
// rejected: the zone is meaningless off-host.
func PackIP16(s string) ([]byte, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("netaddr: invalid ip %q: %w", s, err)
	}
	if addr.Zone() != "" {
		return nil, fmt.Errorf("netaddr: zoned ip %q not supported", s)
	}
	b := addr.As16()
	return b[:], nil
}
