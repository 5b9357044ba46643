// Package canon encodes and decodes the canonical CBOR form used by every
// signed object and payload on the wire.
//
// Canonical form follows RFC 7049 canonical encoding: definite lengths only,
// shortest-form integer heads, and map keys sorted by encoded length first,
// then bytewise. Tags, floating point values, and duplicate map keys are
// rejected. Two encodings of the same logical value are byte-identical, so
// content hashes and signatures are stable across implementations.
package canon

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MaxNesting bounds container depth accepted from the wire.
const MaxNesting = 32

// ErrNotCanonical reports input that decodes cleanly but is not the canonical
// encoding of its own value (wrong key order, oversized integer heads, and so
// on). Such input is rejected, never re-encoded on the caller's behalf.
var ErrNotCanonical = errors.New("canon: encoding is not canonical")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		TagsMd:          cbor.TagsForbidden,
		MaxNestedLevels: MaxNesting,
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Marshal encodes v in canonical form.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}
	return b, nil
}

// Unmarshal decodes data into v under the strict decode rules: definite
// lengths, no tags, no duplicate map keys, exactly one top-level item.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("canon: %w", err)
	}
	return nil
}

// DecodeMap decodes data as a single top-level map with text keys and checks
// every contained value against the protocol value domain (unsigned and
// negative integers, booleans, text, bytes, arrays, nested text-keyed maps).
func DecodeMap(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("canon: %w", err)
	}
	for key, v := range m {
		if err := checkValue(v); err != nil {
			return nil, fmt.Errorf("canon: key %q: %w", key, err)
		}
	}
	return m, nil
}

// Verify reports whether data is exactly the canonical encoding of the value
// it decodes to. It decodes strictly, checks the value domain, re-encodes,
// and compares bytes; any mismatch is ErrNotCanonical.
func Verify(data []byte) error {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("canon: %w", err)
	}
	if err := checkValue(v); err != nil {
		return fmt.Errorf("canon: %w", err)
	}
	enc, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("canon: %w", err)
	}
	if !bytes.Equal(enc, data) {
		return ErrNotCanonical
	}
	return nil
}

func checkValue(v any) error {
	switch t := v.(type) {
	case nil, bool, uint64, int64, string, []byte:
		return nil
	case []any:
		for i, e := range t {
			if err := checkValue(e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		for key, e := range t {
			if err := checkValue(e); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
		return nil
	case float64, float32:
		return errors.New("floating point values are not permitted")
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
