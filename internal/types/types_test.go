package types

import (
	"crypto/ed25519"
	"testing"
)

func TestAddressDerivation(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk PublicKey
	copy(pk[:], pub)

	addr := AddressFromPublicKey('W', pk)
	if !addr.Valid() {
		t.Fatal("derived address fails validation")
	}
	if addr[1] != 'W' {
		t.Errorf("scheme byte = %c, want W", addr[1])
	}

	// A different scheme yields a different address for the same key.
	other := AddressFromPublicKey('T', pk)
	if other == addr {
		t.Error("addresses collide across schemes")
	}
	if !other.Valid() {
		t.Error("other-scheme address fails validation")
	}
}

func TestAddressBase58RoundTrip(t *testing.T) {
	var pk PublicKey
	pk[0] = 42
	addr := AddressFromPublicKey('W', pk)

	parsed, err := AddressFromBase58(addr.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Errorf("round trip mismatch: %s vs %s", parsed.String(), addr.String())
	}
}

func TestAddressChecksumRejection(t *testing.T) {
	var pk PublicKey
	pk[0] = 7
	addr := AddressFromPublicKey('W', pk)
	addr[10] ^= 0xFF

	if addr.Valid() {
		t.Error("corrupted address passes validation")
	}
	if _, err := AddressFromBase58(addr.String()); err == nil {
		t.Error("corrupted address parses")
	}
}

func TestDigestRoundTrip(t *testing.T) {
	d := Blake2b([]byte("content"))
	if d.IsZero() {
		t.Fatal("digest of content is zero")
	}

	parsed, err := DigestFromBase58(d.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != d {
		t.Error("round trip mismatch")
	}

	if _, err := DigestFromBase58("short"); err == nil {
		t.Error("short digest parses")
	}
}

func TestSignatureVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk PublicKey
	copy(pk[:], pub)

	msg := []byte("authorize this")
	sig, err := SignatureFromBytes(ed25519.Sign(priv, msg))
	if err != nil {
		t.Fatalf("signature from bytes: %v", err)
	}
	if !pk.Verify(msg, sig) {
		t.Error("valid signature rejected")
	}

	sig[0] ^= 0xFF
	if pk.Verify(msg, sig) {
		t.Error("tampered signature accepted")
	}
}
