package object

import (
	"crypto/ed25519"
	"fmt"
)

// Stable rule ids for the distinct signature verification failures.
const (
	// RuleUnsupportedAlgorithm: the protocol version names no known
	// signature algorithm.
	RuleUnsupportedAlgorithm = "HUM-SIG-001"
	// RuleMalformedKey: the author public key is not a usable Ed25519 key.
	RuleMalformedKey = "HUM-SIG-002"
	// RuleSignatureMismatch: the signature does not verify over the
	// object's signable bytes.
	RuleSignatureMismatch = "HUM-SIG-003"
)

// VerifySignature checks the Ed25519 signature over the object's signable
// bytes (the canonical encoding with the signature field zeroed).
//
// Keys of the right length that decode to no curve point fail as signature
// mismatches rather than malformed keys; crypto/ed25519 does not expose the
// distinction and the outcome for callers is the same.
func (o *Object) VerifySignature() error {
	if o.ProtocolVersion != ProtocolVersion {
		return NewError(KindVerification, RuleUnsupportedAlgorithm,
			fmt.Sprintf("no signature algorithm for protocol version %d", o.ProtocolVersion))
	}
	if len(o.AuthorPublicKey) != AuthorKeySize {
		return NewError(KindVerification, RuleMalformedKey,
			fmt.Sprintf("author_public_key must be %d bytes", AuthorKeySize))
	}
	if len(o.Signature) != SignatureSize {
		return NewError(KindVerification, RuleSignatureMismatch,
			fmt.Sprintf("signature must be %d bytes", SignatureSize))
	}
	signable, err := o.SignableBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(o.AuthorPublicKey), signable, o.Signature) {
		return NewError(KindVerification, RuleSignatureMismatch,
			"signature does not verify over canonical bytes")
	}
	return nil
}

// VerifyDetached checks an Ed25519 signature over an arbitrary message.
// Governance co-signatures are verified this way; the message they cover is
// defined by the governance layer, not by this package.
func VerifyDetached(publicKey, sig, message []byte) error {
	if len(publicKey) != AuthorKeySize {
		return NewError(KindVerification, RuleMalformedKey,
			fmt.Sprintf("public key must be %d bytes", AuthorKeySize))
	}
	if len(sig) != SignatureSize {
		return NewError(KindVerification, RuleSignatureMismatch,
			fmt.Sprintf("signature must be %d bytes", SignatureSize))
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, sig) {
		return NewError(KindVerification, RuleSignatureMismatch,
			"signature does not verify over the message")
	}
	return nil
}
