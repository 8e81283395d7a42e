package netutil

import (
	"errors"
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIP(net.ParseIP(tt.ip)); got != tt.private {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestCheckHost(t *testing.T) {
	lookup := func(addrs ...string) LookupFunc {
		return func(string) ([]net.IP, error) {
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, net.ParseIP(a))
			}
			return ips, nil
		}
	}
	failing := func(string) ([]net.IP, error) { return nil, errors.New("no such host") }

	tests := []struct {
		name    string
		host    string
		lookup  LookupFunc
		blocked bool
	}{
		{"public literal", "93.184.216.34", nil, false},
		{"private literal", "10.0.0.5", nil, true},
		{"metadata endpoint", "169.254.169.254", nil, true},
		{"loopback literal", "127.0.0.1", nil, false},
		{"public name", "example.com", lookup("93.184.216.34"), false},
		{"name resolving to private", "intranet.example", lookup("192.168.0.10"), true},
		{"one private address among many", "mixed.example", lookup("93.184.216.34", "10.0.0.1"), true},
		{"name resolving to loopback", "localhost", lookup("127.0.0.1"), false},
		{"lookup failure", "unknown.example", failing, false},
		{"empty host", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHost(tt.host, tt.lookup)
			if tt.blocked && !errors.Is(err, ErrPrivateAddress) {
				t.Errorf("Expected ErrPrivateAddress, got %v", err)
			}
			if !tt.blocked && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestCheckURL(t *testing.T) {
	if err := CheckURL("http://10.0.0.1:8080/feed.xml", nil); !errors.Is(err, ErrPrivateAddress) {
		t.Errorf("Expected ErrPrivateAddress, got %v", err)
	}
	if err := CheckURL("https://93.184.216.34/rss", nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := CheckURL("://bad", nil); err == nil {
		t.Error("Expected parse error")
	}
}
