// Package types defines core cryptographic and ledger types for the node.
//
// All identifier types are fixed-size byte arrays with base58 text encoding.
// Transaction and asset ids are 32-byte BLAKE2b-256 digests of content;
// addresses are derived from Ed25519 public keys.
package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Size constants for core types.
const (
	DigestSize    = 32
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize

	// AddressSize is version (1) + scheme (1) + public key hash (20) + checksum (4).
	AddressSize = 26

	addressVersion = byte(1)
)

var (
	// ErrInvalidDigest is returned when a digest has invalid length.
	ErrInvalidDigest = errors.New("invalid digest: must be 32 bytes")

	// ErrInvalidPublicKey is returned when a public key has invalid length.
	ErrInvalidPublicKey = errors.New("invalid public key: must be 32 bytes")

	// ErrInvalidAddress is returned when an address is malformed.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidSignature is returned when a signature has invalid length.
	ErrInvalidSignature = errors.New("invalid signature: must be 64 bytes")
)

// Digest is a 32-byte BLAKE2b-256 digest. Transaction ids and asset ids are digests.
type Digest [DigestSize]byte

// AssetID identifies an issued asset. The zero value denotes the native asset.
type AssetID = Digest

// Blake2b computes the BLAKE2b-256 digest of data.
func Blake2b(data []byte) Digest {
	return blake2b.Sum256(data)
}

// DigestFromBase58 parses a base58-encoded digest.
func DigestFromBase58(s string) (Digest, error) {
	var d Digest
	data, err := base58.Decode(s)
	if err != nil {
		return d, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != DigestSize {
		return d, ErrInvalidDigest
	}
	copy(d[:], data)
	return d, nil
}

// DigestFromBytes creates a Digest from a byte slice.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, ErrInvalidDigest
	}
	copy(d[:], b)
	return d, nil
}

// String returns the base58-encoded representation.
func (d Digest) String() string {
	return base58.Encode(d[:])
}

// IsZero returns true if the digest is all zeros.
// For an AssetID this means the native asset.
func (d Digest) IsZero() bool {
	for _, b := range d {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := DigestFromBase58(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey [PublicKeySize]byte

// PublicKeyFromBase58 parses a base58-encoded public key.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	data, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != PublicKeySize {
		return pk, ErrInvalidPublicKey
	}
	copy(pk[:], data)
	return pk, nil
}

// String returns the base58-encoded representation.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns the public key as a byte slice.
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// Verify verifies an Ed25519 signature over message.
func (pk PublicKey) Verify(message []byte, sig Signature) bool {
	return ed25519.Verify(pk[:], message, sig[:])
}

// Signature is a 64-byte Ed25519 signature.
type Signature [SignatureSize]byte

// SignatureFromBytes creates a Signature from a byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, ErrInvalidSignature
	}
	copy(sig[:], b)
	return sig, nil
}

// String returns the base58-encoded representation.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// Address is a 26-byte account address:
// version (1) + chain scheme (1) + BLAKE2b-256(public key)[:20] + checksum (4).
type Address [AddressSize]byte

// AddressFromPublicKey derives the address of a public key on a chain scheme.
func AddressFromPublicKey(scheme byte, pk PublicKey) Address {
	var a Address
	a[0] = addressVersion
	a[1] = scheme
	h := blake2b.Sum256(pk[:])
	copy(a[2:22], h[:20])
	cs := blake2b.Sum256(a[:22])
	copy(a[22:], cs[:4])
	return a
}

// AddressFromBase58 parses and validates a base58-encoded address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	data, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("base58 decode: %w", err)
	}
	if len(data) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], data)
	if !a.Valid() {
		return a, ErrInvalidAddress
	}
	return a, nil
}

// Valid checks the version byte and checksum.
func (a Address) Valid() bool {
	if a[0] != addressVersion {
		return false
	}
	cs := blake2b.Sum256(a[:22])
	for i := 0; i < 4; i++ {
		if a[22+i] != cs[i] {
			return false
		}
	}
	return true
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the base58-encoded representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte {
	return a[:]
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromBase58(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
