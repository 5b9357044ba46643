package object

import (
	"bytes"
	"testing"

	"humanity.network/core/canon"
)

// rebuild re-encodes a mutated field map. The result is canonical CBOR for
// the mutated map, which lets each test target exactly one schema rule.
func rebuild(t *testing.T, raw []byte, mutate func(m map[string]any)) []byte {
	t.Helper()
	m, err := canon.DecodeMap(raw)
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	mutate(m)
	out, err := canon.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return out
}

func wantRule(t *testing.T, data []byte, rule string) {
	t.Helper()
	_, err := Decode(data)
	if err == nil {
		t.Fatalf("Decode accepted invalid input (want %s)", rule)
	}
	if !IsKind(err, KindEncoding) {
		t.Fatalf("Decode error kind = %v, want Encoding (%s)", err, rule)
	}
	if got := RuleID(err); got != rule {
		t.Fatalf("Decode rule = %s, want %s (err: %v)", got, rule, err)
	}
}

func TestDecode_RejectsUnknownField(t *testing.T) {
	_, priv := mustKeypair(t, 0x21)
	raw := mustCanonical(t, mustObject(t, priv))
	wantRule(t, rebuild(t, raw, func(m map[string]any) {
		m["extra"] = uint64(1)
	}), "HUM-ENC-002")
}

func TestDecode_RejectsMissingRequiredFields(t *testing.T) {
	_, priv := mustKeypair(t, 0x22)
	raw := mustCanonical(t, mustObject(t, priv))
	for _, field := range []string{
		"protocol_version", "object_type", "author_public_key",
		"references", "payload_schema_version", "payload_encoding",
		"payload", "signature",
	} {
		wantRule(t, rebuild(t, raw, func(m map[string]any) {
			delete(m, field)
		}), "HUM-ENC-003")
	}
}

func TestDecode_RejectsWrongFieldTypes(t *testing.T) {
	_, priv := mustKeypair(t, 0x23)
	raw := mustCanonical(t, mustObject(t, priv))

	cases := []func(m map[string]any){
		func(m map[string]any) { m["protocol_version"] = "1" },
		func(m map[string]any) { m["object_type"] = uint64(1) },
		func(m map[string]any) { m["space_id"] = []byte("s") },
		func(m map[string]any) { m["created_at"] = "soon" },
		func(m map[string]any) { m["created_at"] = int64(-1) },
		func(m map[string]any) { m["references"] = "bafyone" },
		func(m map[string]any) { m["references"] = []any{uint64(1)} },
		func(m map[string]any) { m["payload"] = "text" },
		func(m map[string]any) { m["signature"] = "text" },
	}
	for i, mutate := range cases {
		got := rebuild(t, raw, mutate)
		if _, err := Decode(got); err == nil || !IsKind(err, KindEncoding) {
			t.Errorf("case %d: Decode = %v, want Encoding error", i, err)
		}
	}
}

func TestDecode_RejectsEmptyOptionalField(t *testing.T) {
	_, priv := mustKeypair(t, 0x24)
	raw := mustCanonical(t, mustObject(t, priv))
	wantRule(t, rebuild(t, raw, func(m map[string]any) {
		m["space_id"] = ""
	}), "HUM-ENC-007")
	wantRule(t, rebuild(t, raw, func(m map[string]any) {
		m["channel_id"] = ""
	}), "HUM-ENC-007")
}

func TestDecode_RejectsWrongCryptoFieldLengths(t *testing.T) {
	_, priv := mustKeypair(t, 0x25)
	raw := mustCanonical(t, mustObject(t, priv))
	wantRule(t, rebuild(t, raw, func(m map[string]any) {
		m["author_public_key"] = bytes.Repeat([]byte{1}, AuthorKeySize-1)
	}), "HUM-ENC-005")
	wantRule(t, rebuild(t, raw, func(m map[string]any) {
		m["signature"] = bytes.Repeat([]byte{1}, SignatureSize+1)
	}), "HUM-ENC-006")
}

func TestDecode_RejectsOversizedIntegerHead(t *testing.T) {
	_, priv := mustKeypair(t, 0x26)
	o, err := NewBuilder("post").Space("s").Payload(map[string]any{"b": "x"}).Sign(priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw := mustCanonical(t, o)

	// protocol_version 1 must encode as a single byte. Re-encode it with a
	// one-byte argument head (0x18 0x01): same value, longer form.
	key := append([]byte{0x70}, []byte("protocol_version")...)
	canonical := append(append([]byte{}, key...), 0x01)
	oversized := append(append([]byte{}, key...), 0x18, 0x01)
	if !bytes.Contains(raw, canonical) {
		t.Fatalf("canonical bytes do not contain expected protocol_version encoding")
	}
	mutated := bytes.Replace(raw, canonical, oversized, 1)
	wantRule(t, mutated, "HUM-ENC-008")
}

func TestDecode_RejectsStructuralDamage(t *testing.T) {
	_, priv := mustKeypair(t, 0x27)
	raw := mustCanonical(t, mustObject(t, priv))

	if _, err := Decode(raw[:len(raw)-3]); err == nil {
		t.Fatalf("Decode accepted truncated bytes")
	}
	if _, err := Decode(append(append([]byte{}, raw...), 0x00)); err == nil {
		t.Fatalf("Decode accepted trailing bytes")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatalf("Decode accepted empty input")
	}
}

func TestDecode_TamperedPayloadFailsVerification(t *testing.T) {
	_, priv := mustKeypair(t, 0x28)
	raw := mustCanonical(t, mustObject(t, priv))

	// Flip one byte inside the payload byte string: the bytes stay
	// well-formed canonical CBOR, so decoding succeeds, but the signature
	// no longer covers what is claimed.
	m, err := canon.DecodeMap(raw)
	if err != nil {
		t.Fatalf("DecodeMap: %v", err)
	}
	payload := m["payload"].([]byte)
	payload[len(payload)-1] ^= 0xFF
	m["payload"] = payload
	mutated, err := canon.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	o, err := Decode(mutated)
	if err != nil {
		t.Fatalf("Decode(tampered): %v", err)
	}
	err = o.VerifySignature()
	if err == nil {
		t.Fatalf("tampered object must fail verification")
	}
	if !IsKind(err, KindVerification) || RuleID(err) != RuleSignatureMismatch {
		t.Fatalf("tampered object error = %v, want %s", err, RuleSignatureMismatch)
	}
}
