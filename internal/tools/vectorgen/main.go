// vectorgen regenerates the accept vectors under testdata/conformance and
// prints a fully signed sample envelope for cross-implementation checks.
// The reject vectors are hand-edited mutations of the printed bytes and are
// not regenerated here.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"humanity.network/core/canon"
	"humanity.network/core/object"
)

func mustKeypair(seedByte byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv
}

func emit(name string, v any) {
	b, err := canon.Marshal(v)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s=%s\n", name, hex.EncodeToString(b))
}

func main() {
	emit("canonical_empty_map", map[string]any{})
	emit("canonical_scalar_fields", map[string]any{
		"a": []any{uint64(1), uint64(2)},
		"b": true,
		"i": uint64(42),
		"m": map[string]any{"x": uint64(1)},
		"n": int64(-7),
		"s": "hi",
		"y": []byte{0xDE, 0xAD},
		"z": nil,
	})
	emit("canonical_int_boundaries", []any{
		uint64(0), uint64(23), uint64(24), uint64(255), uint64(256),
		uint64(65535), uint64(65536), uint64(4294967295), uint64(4294967296),
		uint64(18446744073709551615),
		int64(-1), int64(-24), int64(-25), int64(-256), int64(-257),
		int64(-4294967296), int64(-4294967297),
	})
	emit("canonical_nested_containers", map[string]any{
		"deep": []any{[]any{[]any{[]any{"ok"}}}},
	})

	payload, err := canon.Marshal(map[string]any{"body": "hello"})
	if err != nil {
		panic(err)
	}
	createdAt := uint64(1700000000)
	base := &object.Object{
		ProtocolVersion:      object.ProtocolVersion,
		ObjectType:           object.TypePost,
		SpaceID:              "space-vec",
		AuthorPublicKey:      bytes.Repeat([]byte{0xA1}, object.AuthorKeySize),
		CreatedAt:            &createdAt,
		References:           []string{},
		PayloadSchemaVersion: 1,
		PayloadEncoding:      object.EncodingPlaintext,
		Payload:              payload,
	}
	signable, err := base.SignableBytes()
	if err != nil {
		panic(err)
	}
	fmt.Printf("post_1.signable=%s\n", hex.EncodeToString(signable))

	pub, priv := mustKeypair(0xA1)
	signed, err := object.NewBuilder(object.TypePost).
		Space("space-vec").
		CreatedAt(1700000000).
		Payload(map[string]any{"body": "hello"}).
		Sign(priv)
	if err != nil {
		panic(err)
	}
	id, err := signed.ID()
	if err != nil {
		panic(err)
	}
	raw, err := signed.CanonicalBytes()
	if err != nil {
		panic(err)
	}
	fmt.Printf("signed_post.author=%s\n", hex.EncodeToString(pub))
	fmt.Printf("signed_post.id=%s\n", id)
	fmt.Printf("signed_post=%s\n", hex.EncodeToString(raw))
}
