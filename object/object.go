// Package object implements the signed envelope every unit of state in the
// network travels in: canonical encoding, content-derived identifiers, and
// Ed25519 signing and verification.
package object

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"humanity.network/core/canon"
	"humanity.network/core/cidutil"
)

// ProtocolVersion is the only protocol version this implementation speaks.
// The signature algorithm (Ed25519) and hash (blake3-256) are frozen per
// protocol version; changing either requires a new version.
const ProtocolVersion = 1

// Sizes of the fixed-length cryptographic fields.
const (
	AuthorKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
)

// Payload encodings an object may declare.
const (
	// EncodingPlaintext marks a payload that is itself canonical CBOR.
	EncodingPlaintext = "cbor_canonical_v1"
	// EncodingEncrypted marks a payload sealed with XChaCha20-Poly1305,
	// framed as nonce || ciphertext.
	EncodingEncrypted = "xchacha20poly1305_v1"
)

const (
	fieldProtocolVersion      = "protocol_version"
	fieldObjectType           = "object_type"
	fieldSpaceID              = "space_id"
	fieldChannelID            = "channel_id"
	fieldAuthorPublicKey      = "author_public_key"
	fieldCreatedAt            = "created_at"
	fieldReferences           = "references"
	fieldPayloadSchemaVersion = "payload_schema_version"
	fieldPayloadEncoding      = "payload_encoding"
	fieldPayload              = "payload"
	fieldSignature            = "signature"
)

var knownFields = map[string]bool{
	fieldProtocolVersion:      true,
	fieldObjectType:           true,
	fieldSpaceID:              true,
	fieldChannelID:            true,
	fieldAuthorPublicKey:      true,
	fieldCreatedAt:            true,
	fieldReferences:           true,
	fieldPayloadSchemaVersion: true,
	fieldPayloadEncoding:      true,
	fieldPayload:              true,
	fieldSignature:            true,
}

var zeroSignature = make([]byte, SignatureSize)

// Object is a decoded signed object.
//
// SpaceID and ChannelID are optional; the empty string means absent, and
// the canonical encoding omits absent fields entirely. CreatedAt is optional
// and informational only: it is signed but never trusted for ordering or
// authority decisions. References lists object identifiers this object
// depends on; it is always present on the wire, possibly empty.
type Object struct {
	ProtocolVersion      uint64
	ObjectType           string
	SpaceID              string
	ChannelID            string
	AuthorPublicKey      []byte
	CreatedAt            *uint64
	References           []string
	PayloadSchemaVersion uint64
	PayloadEncoding      string
	Payload              []byte
	Signature            []byte
}

// SignableBytes returns the canonical encoding with the signature field
// present but zeroed. Signatures are computed over exactly these bytes, so
// the signed form and the stored form differ only in the signature value.
func (o *Object) SignableBytes() ([]byte, error) {
	return o.encode(zeroSignature)
}

// CanonicalBytes returns the complete canonical encoding including the
// signature. These are the bytes stored, transported, and hashed.
func (o *Object) CanonicalBytes() ([]byte, error) {
	if len(o.Signature) != SignatureSize {
		return nil, NewError(KindEncoding, "HUM-ENC-014", "object is not signed")
	}
	return o.encode(o.Signature)
}

// ID returns the object identifier: a CIDv1 (raw + blake3-256) over the
// complete canonical bytes. Two objects differing in any signed field,
// including the signature itself, have different identifiers.
func (o *Object) ID() (string, error) {
	b, err := o.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return cidutil.CIDv1RawBlake3(b), nil
}

func (o *Object) encode(signature []byte) ([]byte, error) {
	if len(o.AuthorPublicKey) != AuthorKeySize {
		return nil, NewError(KindEncoding, "HUM-ENC-010", fmt.Sprintf("author_public_key must be %d bytes", AuthorKeySize))
	}
	if len(signature) != SignatureSize {
		return nil, NewError(KindEncoding, "HUM-ENC-011", fmt.Sprintf("signature must be %d bytes", SignatureSize))
	}
	if o.ObjectType == "" {
		return nil, NewError(KindEncoding, "HUM-ENC-012", "object_type must not be empty")
	}
	if o.PayloadEncoding == "" {
		return nil, NewError(KindEncoding, "HUM-ENC-012", "payload_encoding must not be empty")
	}

	refs := make([]any, len(o.References))
	for i, r := range o.References {
		refs[i] = r
	}
	payload := o.Payload
	if payload == nil {
		payload = []byte{}
	}

	m := map[string]any{
		fieldProtocolVersion:      o.ProtocolVersion,
		fieldObjectType:           o.ObjectType,
		fieldAuthorPublicKey:      o.AuthorPublicKey,
		fieldReferences:           refs,
		fieldPayloadSchemaVersion: o.PayloadSchemaVersion,
		fieldPayloadEncoding:      o.PayloadEncoding,
		fieldPayload:              payload,
		fieldSignature:            signature,
	}
	if o.SpaceID != "" {
		m[fieldSpaceID] = o.SpaceID
	}
	if o.ChannelID != "" {
		m[fieldChannelID] = o.ChannelID
	}
	if o.CreatedAt != nil {
		m[fieldCreatedAt] = *o.CreatedAt
	}

	b, err := canon.Marshal(m)
	if err != nil {
		return nil, WrapError(KindInternal, "HUM-ENC-013", "encode object", err)
	}
	return b, nil
}

// Decode parses data as a signed object. It rejects malformed CBOR, unknown
// fields, wrong field types, and any input that is not byte-for-byte the
// canonical encoding of the object it describes. Non-canonical input is
// never re-encoded on the sender's behalf. The signature is not checked
// here; use VerifySignature.
func Decode(data []byte) (*Object, error) {
	m, err := canon.DecodeMap(data)
	if err != nil {
		return nil, WrapError(KindEncoding, "HUM-ENC-001", "object bytes are not well-formed canonical cbor", err)
	}
	for key := range m {
		if !knownFields[key] {
			return nil, NewError(KindEncoding, "HUM-ENC-002", fmt.Sprintf("unknown field %q", key))
		}
	}

	o := &Object{}
	if o.ProtocolVersion, err = requiredUint(m, fieldProtocolVersion); err != nil {
		return nil, err
	}
	if o.ObjectType, err = requiredText(m, fieldObjectType); err != nil {
		return nil, err
	}
	if o.SpaceID, err = optionalText(m, fieldSpaceID); err != nil {
		return nil, err
	}
	if o.ChannelID, err = optionalText(m, fieldChannelID); err != nil {
		return nil, err
	}
	if o.AuthorPublicKey, err = requiredBytes(m, fieldAuthorPublicKey); err != nil {
		return nil, err
	}
	if len(o.AuthorPublicKey) != AuthorKeySize {
		return nil, NewError(KindEncoding, "HUM-ENC-005", fmt.Sprintf("author_public_key must be %d bytes", AuthorKeySize))
	}
	if v, ok := m[fieldCreatedAt]; ok {
		ts, ok := v.(uint64)
		if !ok {
			return nil, typeError(fieldCreatedAt, "unsigned integer")
		}
		o.CreatedAt = &ts
	}
	if o.References, err = requiredTextArray(m, fieldReferences); err != nil {
		return nil, err
	}
	if o.PayloadSchemaVersion, err = requiredUint(m, fieldPayloadSchemaVersion); err != nil {
		return nil, err
	}
	if o.PayloadEncoding, err = requiredText(m, fieldPayloadEncoding); err != nil {
		return nil, err
	}
	if o.Payload, err = requiredBytes(m, fieldPayload); err != nil {
		return nil, err
	}
	if o.Signature, err = requiredBytes(m, fieldSignature); err != nil {
		return nil, err
	}
	if len(o.Signature) != SignatureSize {
		return nil, NewError(KindEncoding, "HUM-ENC-006", fmt.Sprintf("signature must be %d bytes", SignatureSize))
	}

	enc, err := o.encode(o.Signature)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(enc, data) {
		return nil, NewError(KindEncoding, "HUM-ENC-008", "object bytes are not the canonical encoding")
	}
	return o, nil
}

func requiredUint(m map[string]any, key string) (uint64, error) {
	v, ok := m[key]
	if !ok {
		return 0, missingError(key)
	}
	u, ok := v.(uint64)
	if !ok {
		return 0, typeError(key, "unsigned integer")
	}
	return u, nil
}

func requiredText(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", missingError(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, "text string")
	}
	return s, nil
}

func optionalText(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, "text string")
	}
	if s == "" {
		return "", NewError(KindEncoding, "HUM-ENC-007", fmt.Sprintf("field %q must be omitted when absent", key))
	}
	return s, nil
}

func requiredBytes(m map[string]any, key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, missingError(key)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, typeError(key, "byte string")
	}
	return b, nil
}

func requiredTextArray(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, missingError(key)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, typeError(key, "array of text strings")
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, typeError(key, "array of text strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func missingError(key string) error {
	return NewError(KindEncoding, "HUM-ENC-003", fmt.Sprintf("missing required field %q", key))
}

func typeError(key, want string) error {
	return NewError(KindEncoding, "HUM-ENC-004", fmt.Sprintf("field %q must be a %s", key, want))
}
