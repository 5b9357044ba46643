package object

import (
	"crypto/ed25519"
	"fmt"

	"humanity.network/core/canon"
)

// Builder assembles and signs objects. The zero value is not usable; start
// with NewBuilder. Defaults: protocol version 1, payload schema version 1,
// empty plaintext payload, no references.
type Builder struct {
	obj Object
	err error
}

func NewBuilder(objectType string) *Builder {
	b := &Builder{}
	b.obj.ProtocolVersion = ProtocolVersion
	b.obj.ObjectType = objectType
	b.obj.References = []string{}
	b.obj.PayloadSchemaVersion = 1
	b.obj.PayloadEncoding = EncodingPlaintext
	b.obj.Payload = []byte{}
	return b
}

func (b *Builder) Space(id string) *Builder {
	b.obj.SpaceID = id
	return b
}

func (b *Builder) Channel(id string) *Builder {
	b.obj.ChannelID = id
	return b
}

// CreatedAt records an informational creation time (unix seconds). It is
// signed but carries no ordering or authority meaning.
func (b *Builder) CreatedAt(unix uint64) *Builder {
	ts := unix
	b.obj.CreatedAt = &ts
	return b
}

func (b *Builder) References(ids ...string) *Builder {
	b.obj.References = append([]string{}, ids...)
	return b
}

func (b *Builder) PayloadSchemaVersion(v uint64) *Builder {
	b.obj.PayloadSchemaVersion = v
	return b
}

// Payload sets a plaintext payload from a map, encoded canonically.
func (b *Builder) Payload(m map[string]any) *Builder {
	p, err := canon.Marshal(m)
	if err != nil {
		b.err = WrapError(KindEncoding, "HUM-ENC-013", "encode payload", err)
		return b
	}
	b.obj.Payload = p
	b.obj.PayloadEncoding = EncodingPlaintext
	return b
}

// RawPayload sets pre-encoded plaintext payload bytes. The bytes must be
// canonical CBOR; Decode and the validator will reject anything else.
func (b *Builder) RawPayload(p []byte) *Builder {
	b.obj.Payload = p
	b.obj.PayloadEncoding = EncodingPlaintext
	return b
}

// EncryptedPayload sets a sealed payload (nonce || ciphertext) and marks the
// encrypted encoding.
func (b *Builder) EncryptedPayload(sealed []byte) *Builder {
	b.obj.Payload = sealed
	b.obj.PayloadEncoding = EncodingEncrypted
	return b
}

// Sign fills the author from priv, signs the signable bytes, and returns the
// completed object. The builder remains usable for further objects.
func (b *Builder) Sign(priv ed25519.PrivateKey) (*Object, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, NewError(KindVerification, RuleMalformedKey,
			fmt.Sprintf("private key must be %d bytes", ed25519.PrivateKeySize))
	}
	o := b.obj
	o.References = append([]string{}, b.obj.References...)
	o.AuthorPublicKey = append([]byte(nil), priv.Public().(ed25519.PublicKey)...)
	signable, err := o.SignableBytes()
	if err != nil {
		return nil, err
	}
	o.Signature = ed25519.Sign(priv, signable)
	return &o, nil
}
