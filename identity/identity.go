// Package identity manages Ed25519 signing identities: key generation,
// deterministic device subkeys, and a small filesystem keystore.
//
// An identity is nothing more than an Ed25519 keypair; the public key is the
// identity. There is no registry and no certificate chain.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Keypair wraps an Ed25519 private key.
type Keypair struct {
	Private ed25519.PrivateKey
}

// Generate creates a new random identity from rand.
func Generate(rand io.Reader) (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Keypair{Private: priv}, nil
}

// FromSeed builds the identity for a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{Private: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns the 32-byte public key.
func (k *Keypair) Public() []byte {
	return []byte(k.Private.Public().(ed25519.PublicKey))
}

// Seed returns the 32-byte seed the private key expands from.
func (k *Keypair) Seed() []byte {
	return k.Private.Seed()
}

// Sign signs message directly with Ed25519. Object signing passes canonical
// signable bytes here; there is no prehashing.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

// KeyString renders a public key in the lowercase hex form used in logs,
// CLI output, and policy files.
func KeyString(pub []byte) string {
	return hex.EncodeToString(pub)
}

// ParseKeyString decodes a hex public key and checks its length.
func ParseKeyString(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("identity: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return b, nil
}

// PublicString returns the hex public key for a seed.
func PublicString(seed []byte) (string, error) {
	kp, err := FromSeed(seed)
	if err != nil {
		return "", err
	}
	return KeyString(kp.Public()), nil
}
