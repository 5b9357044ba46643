package seal

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/hpke"
)

// wrapInfo is the HPKE info string binding wrapped keys to this protocol.
// Fixed for all time; changing it would invalidate every distributed key.
const wrapInfo = "humanity.network/core space key wrap v1"

func wrapSuite() hpke.Suite {
	return hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
}

// GenerateRecipientKey derives a fresh X25519 recipient keypair for key
// wrapping from rand. Devices publish the public half; space owners wrap the
// space key to it when admitting a member.
func GenerateRecipientKey(rand io.Reader) (publicKey, privateKey []byte, err error) {
	scheme := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	seed := make([]byte, scheme.SeedSize())
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, nil, fmt.Errorf("seal: %w", err)
	}
	pub, priv := scheme.DeriveKeyPair(seed)
	publicKey, err = pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("seal: %w", err)
	}
	privateKey, err = priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("seal: %w", err)
	}
	return publicKey, privateKey, nil
}

// WrapKey encrypts a space key to a recipient public key. The result is
// framed as kemEncapsulation || ciphertext.
func WrapKey(rand io.Reader, recipientPublic, spaceKey []byte) ([]byte, error) {
	if len(spaceKey) != KeySize {
		return nil, fmt.Errorf("seal: space key must be %d bytes", KeySize)
	}
	scheme := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	pub, err := scheme.UnmarshalBinaryPublicKey(recipientPublic)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	sender, err := wrapSuite().NewSender(pub, []byte(wrapInfo))
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	enc, sealer, err := sender.Setup(rand)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	ct, err := sealer.Seal(spaceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return append(enc, ct...), nil
}

// UnwrapKey recovers a space key wrapped to this recipient.
func UnwrapKey(recipientPrivate, wrapped []byte) ([]byte, error) {
	scheme := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	encSize := scheme.CiphertextSize()
	if len(wrapped) <= encSize {
		return nil, fmt.Errorf("seal: wrapped key too short")
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(recipientPrivate)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	receiver, err := wrapSuite().NewReceiver(priv, []byte(wrapInfo))
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	opener, err := receiver.Setup(wrapped[:encSize])
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	key, err := opener.Open(wrapped[encSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return key, nil
}
