package syncer

import "context"

// Envelope is one feed entry: the complete canonical bytes of an object and
// the cursor position the remote assigned to it. Cursor values are opaque to
// the engine; they only ever travel back to the same feed.
type Envelope struct {
	Bytes  []byte
	Cursor string
}

// PushResult is the remote's verdict on one pushed object.
//
// Reason is one of the relay rejection codes (invalid_signature,
// not_a_member, banned, content_quarantined, rate_limited, invalid_schema)
// when Accepted is false.
type PushResult struct {
	ObjectID string
	Accepted bool
	Reason   string
}

// Feed is the remote surface the engine reconciles against.
//
//   - Pull returns objects after cursor, oldest first, at most limit.
//     An empty cursor means "from the beginning".
//   - Push submits canonical object bytes and returns one result per input,
//     in input order.
//
// Relay-side acceptance is advisory only: the engine re-verifies everything
// it pulls, regardless of what the relay claims to have checked.
type Feed interface {
	Pull(ctx context.Context, spaceID, cursor string, limit int) ([]Envelope, error)
	Push(ctx context.Context, spaceID string, objects [][]byte) ([]PushResult, error)
}
