// Package cidutil derives and checks the content identifiers used for
// objects and blocks: CIDv1 with the "raw" multicodec and a blake3-256
// multihash, rendered in the default base32 text form.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// HashLength is the digest length in bytes for object and block identifiers.
const HashLength = 32

// CIDv1RawBlake3 returns the CIDv1 string (raw + blake3-256) for data.
// Object identifiers are exactly this function applied to complete canonical
// object bytes; block identifiers apply it to raw block bytes.
func CIDv1RawBlake3(data []byte) string {
	sum, err := multihash.Sum(data, multihash.BLAKE3, HashLength)
	if err != nil {
		// multihash.Sum only errors for unknown codes or bad lengths; with
		// BLAKE3 and a 32-byte digest this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawBlake3CID returns the CIDv1 (raw + blake3-256) derived from data.
func CIDv1RawBlake3CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.BLAKE3, HashLength)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse decodes s and checks that it names content the way this protocol
// does: CIDv1, raw multicodec, blake3-256 multihash. Any other identifier
// shape is rejected so references can be checked syntactically before any
// lookup.
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: %w", err)
	}
	p := c.Prefix()
	if p.Version != 1 {
		return cid.Undef, fmt.Errorf("cidutil: unsupported cid version %d", p.Version)
	}
	if p.Codec != cid.Raw {
		return cid.Undef, fmt.Errorf("cidutil: unsupported multicodec %#x", p.Codec)
	}
	if p.MhType != multihash.BLAKE3 || p.MhLength != HashLength {
		return cid.Undef, fmt.Errorf("cidutil: unsupported multihash %#x/%d", p.MhType, p.MhLength)
	}
	return c, nil
}
