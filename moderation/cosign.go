package moderation

import (
	"bytes"
	"crypto/ed25519"

	"humanity.network/core/canon"
	"humanity.network/core/object"
)

// CoSignBytes returns the bytes a governance co-signer commits to: the
// carrying object's signable bytes with the cosignatures list stripped from
// the payload. Stripping breaks the cycle of signatures covering
// themselves; the author's own signature still covers the final list, so
// the co-signer set cannot be altered after signing.
func CoSignBytes(o *object.Object) ([]byte, error) {
	m, err := canon.DecodeMap(o.Payload)
	if err != nil {
		return nil, object.WrapError(object.KindValidation, "HUM-MOD-001", "decode action payload", err)
	}
	delete(m, "cosignatures")
	payload, err := canon.Marshal(m)
	if err != nil {
		return nil, err
	}
	stripped := *o
	stripped.Payload = payload
	return stripped.SignableBytes()
}

// CoSign produces one co-signature over o by priv. The object may already
// carry other co-signatures; they do not affect the signed bytes.
func CoSign(o *object.Object, priv ed25519.PrivateKey) (CoSignature, error) {
	msg, err := CoSignBytes(o)
	if err != nil {
		return CoSignature{}, err
	}
	return CoSignature{
		PublicKey: append([]byte(nil), priv.Public().(ed25519.PublicKey)...),
		Signature: ed25519.Sign(priv, msg),
	}, nil
}

// WithCoSignatures returns a copy of a signed action object whose payload
// carries sigs, re-signed by the author's private key. The author signs
// last so the envelope signature covers the complete co-signer set.
func WithCoSignatures(o *object.Object, priv ed25519.PrivateKey, sigs []CoSignature) (*object.Object, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok || !bytes.Equal(pub, o.AuthorPublicKey) {
		return nil, actionError("re-signing key does not match the object author")
	}
	m, err := canon.DecodeMap(o.Payload)
	if err != nil {
		return nil, object.WrapError(object.KindValidation, "HUM-MOD-001", "decode action payload", err)
	}
	entries := make([]any, len(sigs))
	for i, cs := range sigs {
		entries[i] = map[string]any{
			"public_key": cs.PublicKey,
			"signature":  cs.Signature,
		}
	}
	m["cosignatures"] = entries
	payload, err := canon.Marshal(m)
	if err != nil {
		return nil, err
	}

	out := *o
	out.Payload = payload
	signable, err := out.SignableBytes()
	if err != nil {
		return nil, err
	}
	out.Signature = ed25519.Sign(priv, signable)
	return &out, nil
}
