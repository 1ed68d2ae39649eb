package netutil

import (
	"net"
	"testing"
)

func TestIsRelayURLFormatValid(t *testing.T) {
	cases := map[string]bool{
		"wss://relay.damus.io":  true,
		"ws://localhost:7000":  true,
		"https://relay.damus.io": false,
		"wss://":                false,
		"not a url at all %%":   false,
	}
	for url, want := range cases {
		if got := IsRelayURLFormatValid(url); got != want {
			t.Errorf("IsRelayURLFormatValid(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestNormalizeRelayURL(t *testing.T) {
	got, err := NormalizeRelayURL("WSS://Relay.Damus.IO/")
	if err != nil {
		t.Fatalf("NormalizeRelayURL: %v", err)
	}
	if want := "wss://relay.damus.io"; got != want {
		t.Errorf("NormalizeRelayURL = %q, want %q", got, want)
	}
}

func TestIsRelayURLSafeAllowsLocalhost(t *testing.T) {
	if !IsRelayURLSafe("ws://localhost:7000") {
		t.Error("expected localhost relay to be allowed")
	}
	if !IsRelayURLSafe("ws://127.0.0.1:7000") {
		t.Error("expected loopback IP relay to be allowed")
	}
}

func TestIsRelayURLSafeRejectsBadFormat(t *testing.T) {
	if IsRelayURLSafe("https://relay.damus.io") {
		t.Error("expected non-ws scheme to be rejected")
	}
}

func TestIsInternalHostname(t *testing.T) {
	cases := map[string]bool{
		"relay.damus.io":  false,
		"myrelay.local":   true,
		"myrelay.internal": true,
		"trailing.dot.":   true,
	}
	for host, want := range cases {
		if got := IsInternalHostname(host); got != want {
			t.Errorf("IsInternalHostname(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestIsPublicIP(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", true},
		{"127.0.0.1", true},
		{"10.0.0.5", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"169.254.1.1", false},
		{"0.0.0.0", false},
		{"224.0.0.1", false},
	}
	for _, c := range cases {
		ip := net.ParseIP(c.ip)
		if got := IsPublicIP(ip); got != c.want {
			t.Errorf("IsPublicIP(%s) = %v, want %v", c.ip, got, c.want)
		}
	}
}
