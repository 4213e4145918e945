// Package ssrfguard implements the network-level safety check the
// Fetcher runs before every request and after every redirect: reject
// requests aimed at loopback, private, link-local and cloud-metadata
// addresses, and defend against DNS rebinding by resolving the
// hostname and checking every returned address.
//
// Grounded on the fetch-time validation other_examples crawlers layer
// in front of net/http (e.g. amosWeiskopf-crawlsmith__crawler.go's
// combination of cookiejar/rate/robots checks before dispatch) and the
// teacher's own habit of validating input before it reaches the wire
// (internal/utils/validator.go). No crawler in the retrieval pack ships
// a dedicated SSRF guard, so this is built directly to the spec's
// published algorithm on stdlib net/net.
package ssrfguard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Verdict is the outcome of Validate.
type Verdict struct {
	Safe   bool
	IP     net.IP
	Reason string
}

var blockedHostnames = map[string]bool{
	"localhost":          true,
	"localhost.localdomain": true,
	"metadata.google.internal": true,
	"metadata":           true,
	"instance-data":      true,
	"169.254.169.254":    true,
}

var blockedCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"255.255.255.255/32",
	"169.254.169.254/32",
	"fd00:ec2::254/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("ssrfguard: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

func isBlockedIP(ip net.IP) bool {
	for _, n := range blockedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ipLookuper is the subset of *net.Resolver Validate depends on, so tests
// can substitute a stub instead of hitting live DNS.
type ipLookuper interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ipAddrLookuper adapts any ipLookuper implementation for assignment to
// resolver; it exists so test code can name the conversion explicitly.
func ipAddrLookuper(l ipLookuper) ipLookuper { return l }

// resolver is overridable in tests to avoid depending on live DNS.
var resolver ipLookuper = net.DefaultResolver

// Validate runs the SSRF checks against rawURL: scheme allow-list,
// hostname block-list, literal-IP range check, and — for resolvable
// hostnames — a DNS lookup with every returned address checked against
// the same block-list (the DNS-rebinding defense).
func Validate(rawURL string, allowedProtocols []string) Verdict {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Verdict{Safe: false, Reason: "unparsable url"}
	}

	if !protocolAllowed(u.Scheme, allowedProtocols) {
		return Verdict{Safe: false, Reason: fmt.Sprintf("protocol %q not allowed", u.Scheme)}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Verdict{Safe: false, Reason: "missing host"}
	}
	if blockedHostnames[host] {
		return Verdict{Safe: false, Reason: fmt.Sprintf("hostname %q is blocked", host)}
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return Verdict{Safe: false, Reason: fmt.Sprintf("address %s is in a blocked range", ip)}
		}
		return Verdict{Safe: true, IP: ip}
	}

	addrs, err := resolver.LookupIPAddr(context.Background(), host)
	if err != nil || len(addrs) == 0 {
		return Verdict{Safe: false, Reason: fmt.Sprintf("dns lookup failed for %q", host)}
	}
	for _, a := range addrs {
		if isBlockedIP(a.IP) {
			return Verdict{Safe: false, Reason: fmt.Sprintf("resolved address %s is in a blocked range", a.IP)}
		}
	}

	return Verdict{Safe: true, IP: addrs[0].IP}
}

func protocolAllowed(scheme string, allowed []string) bool {
	scheme = strings.ToLower(scheme)
	for _, a := range allowed {
		if strings.ToLower(a) == scheme {
			return true
		}
	}
	return false
}
