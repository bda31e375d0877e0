package lnurl

import (
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := "https://auth.example/v1/lnurl/callback?tag=login&k1=" + strings.Repeat("ab", 32)
	encoded, err := Encode(raw)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(encoded, "LNURL1") {
		t.Fatalf("expected LNURL1 prefix, got %q", encoded)
	}
	if encoded != strings.ToUpper(encoded) {
		t.Fatal("encoded form must be uppercase")
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != raw {
		t.Fatalf("round trip mismatch: %q != %q", decoded, raw)
	}
}

// Reference vector from the LNURL specification (LUD-01).
func TestDecodeReferenceVector(t *testing.T) {
	const vector = "LNURL1DP68GURN8GHJ7UM9WFMXJCM99E3K7MF0V9CXJ0M385EKVCENXC6R2C35XVUKXEFCV5MKVV34X5EKZD3EV56NYD3HXQURZEPEXEJXXEPNXSCRVWFNV9NXZCN9XQ6XYEFHVGCXXCMYXYMNSERXFQ5FNS"
	const want = "https://service.com/api?q=3fc3645b439ce8e7f2553a69e5267081d96dcd340693afabe04be7b0ccd178df"

	decoded, err := Decode(vector)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != want {
		t.Fatalf("decoded %q, want %q", decoded, want)
	}

	reencoded, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if reencoded != vector {
		t.Fatalf("re-encoded %q, want %q", reencoded, vector)
	}
}

func TestDecodeRejectsForeignPrefix(t *testing.T) {
	if _, err := Decode("BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4"); err == nil {
		t.Fatal("expected error for non-lnurl prefix")
	}
}
