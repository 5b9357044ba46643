package identity

import (
	"crypto/ed25519"
	"fmt"

	"lukechampine.com/blake3"
)

// deviceKeyContext is the derive-key context string for device subkeys.
// Changing it would change every derived key; it is fixed for all time.
const deviceKeyContext = "humanity.network/core identity device key v1"

// DeriveDeviceSeed deterministically derives a device-specific Ed25519 seed
// from a root seed using blake3's derive-key mode. The same root seed and
// device name always yield the same device key, so a user can re-derive a
// device identity from their root seed alone.
func DeriveDeviceSeed(rootSeed []byte, device string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckDeviceName(device); err != nil {
		return nil, err
	}
	out := make([]byte, ed25519.SeedSize)
	blake3.DeriveKey(out, deviceKeyContext+":"+device, rootSeed)
	return out, nil
}
