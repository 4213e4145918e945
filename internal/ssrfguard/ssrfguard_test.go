package ssrfguard

import (
	"context"
	"net"
	"testing"
)

var httpOnly = []string{"http", "https"}

func TestValidateProtocol(t *testing.T) {
	v := Validate("ftp://example.com/a", httpOnly)
	if v.Safe {
		t.Errorf("expected ftp scheme to be rejected")
	}
}

func TestValidateBlockedHostname(t *testing.T) {
	v := Validate("http://localhost/a", httpOnly)
	if v.Safe {
		t.Errorf("expected localhost to be rejected")
	}
}

func TestValidateLiteralIPRanges(t *testing.T) {
	tests := []struct {
		name string
		url  string
		safe bool
	}{
		{"loopback", "http://127.0.0.1/", false},
		{"private-10", "http://10.1.2.3/", false},
		{"private-172", "http://172.16.0.5/", false},
		{"private-192", "http://192.168.1.1/", false},
		{"link-local", "http://169.254.1.1/", false},
		{"metadata", "http://169.254.169.254/", false},
		{"broadcast", "http://255.255.255.255/", false},
		{"public", "http://93.184.216.34/", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.url, httpOnly)
			if v.Safe != tt.safe {
				t.Errorf("Validate(%q).Safe = %v, want %v (reason=%q)", tt.url, v.Safe, tt.safe, v.Reason)
			}
		})
	}
}

// stubResolver lets tests exercise the DNS-rebinding defense without
// depending on live network resolution.
type stubResolver struct {
	addrs []net.IPAddr
	err   error
}

func (s *stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return s.addrs, s.err
}

func TestValidateDNSRebinding(t *testing.T) {
	original := resolver
	defer func() { resolver = original }()

	resolver = ipAddrLookuper(&stubResolver{
		addrs: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("127.0.0.1")}},
	})

	v := Validate("http://example.test/a", httpOnly)
	if v.Safe {
		t.Errorf("expected rejection when any resolved address is blocked")
	}
}

func TestValidateDNSAllSafe(t *testing.T) {
	original := resolver
	defer func() { resolver = original }()

	resolver = ipAddrLookuper(&stubResolver{
		addrs: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}},
	})

	v := Validate("http://example.test/a", httpOnly)
	if !v.Safe {
		t.Errorf("expected acceptance when every resolved address is public, got reason=%q", v.Reason)
	}
}
