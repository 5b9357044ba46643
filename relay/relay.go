// Package relay is the reference feed transport: a sequencer that admits,
// orders, and persists objects per space, plus a gRPC client/server pair
// carrying canonical CBOR envelopes. Clients treat any relay as untrusted
// and re-verify everything they pull; the admission checks here only keep
// the shared log clean, they prove nothing to honest peers.
package relay

import "errors"

// Rejection reason codes returned with push verdicts. The set is part of
// the transport contract and is shared by every relay implementation.
const (
	ReasonInvalidSignature   = "invalid_signature"
	ReasonNotAMember         = "not_a_member"
	ReasonBanned             = "banned"
	ReasonContentQuarantined = "content_quarantined"
	ReasonRateLimited        = "rate_limited"
	ReasonInvalidSchema      = "invalid_schema"
)

// ErrBadCursor reports a pull cursor this relay never issued.
var ErrBadCursor = errors.New("relay: malformed cursor")
