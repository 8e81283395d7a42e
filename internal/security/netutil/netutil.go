package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrPrivateAddress is returned when a destination resolves to a private or
// reserved network range.
var ErrPrivateAddress = errors.New("destination resolves to private/reserved address")

var privateNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("netutil: bad CIDR %q: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP returns true if the IP is in a private, loopback, link-local or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// LookupFunc resolves a host name to its addresses.
type LookupFunc func(host string) ([]net.IP, error)

// CheckHost rejects hosts that are, or resolve to, private addresses.
// Loopback stays reachable so local development and tests can serve feeds.
// Resolution failures are not treated as violations; the dial will fail on
// its own.
func CheckHost(host string, lookup LookupFunc) error {
	if host == "" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}
	if lookup == nil {
		lookup = net.LookupIP
	}
	addrs, err := lookup(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if err := checkIP(a); err != nil {
			return err
		}
	}
	return nil
}

// CheckURL applies CheckHost to the host of rawURL.
func CheckURL(rawURL string, lookup LookupFunc) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return CheckHost(u.Hostname(), lookup)
}

func checkIP(ip net.IP) error {
	if IsPrivateIP(ip) && !ip.IsLoopback() {
		return ErrPrivateAddress
	}
	return nil
}
