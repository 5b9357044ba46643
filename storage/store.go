// Package storage defines the persistence contracts of the protocol core:
// an object store with per-space ordering and sync cursors, an outbound
// queue, and a content-addressed block store. The core does not assume any
// particular engine; adapters live in the subpackages and all satisfy the
// shared conformance suite in testkit.
package storage

import (
	"context"

	"humanity.network/core/cidutil"
)

// ObjectRecord is one stored object: its content id, the space it belongs
// to, the local per-space sequence assigned at first put, the complete
// canonical bytes, and the moderation display gate.
type ObjectRecord struct {
	ObjectID   string
	SpaceID    string
	Sequence   uint64
	Bytes      []byte
	Suppressed bool
}

// Store is the object persistence contract.
//
// Contract:
// - PutObject MUST be idempotent: re-putting an id returns the original
//   record (sequence and suppression included) without rewriting anything.
// - Stored bytes MUST be immutable; a put that names an existing id with
//   different bytes fails with ErrImmutable.
// - Object ids MUST be the content address of the bytes written; PutObject
//   rejects records that are not (ErrInvalidID, ErrIDMismatch).
// - PutObject assigns the next sequence in the record's space; a space's
//   sequence increases by exactly one per newly stored object.
// - ListBySpaceSince returns records with sequence strictly greater than
//   since, in sequence order. A limit <= 0 means no limit.
// - GetObject MUST return ErrNotFound for an absent id.
// - Cursors are opaque strings scoped per space; GetCursor returns "" for a
//   space that has never stored one.
type Store interface {
	PutObject(ctx context.Context, rec ObjectRecord) (ObjectRecord, error)
	GetObject(ctx context.Context, objectID string) (ObjectRecord, error)
	HasObject(ctx context.Context, objectID string) (bool, error)
	ListBySpaceSince(ctx context.Context, spaceID string, since uint64, limit int) ([]ObjectRecord, error)
	SetSuppressed(ctx context.Context, objectID string, suppressed bool) error
	PutCursor(ctx context.Context, spaceID, cursor string) error
	GetCursor(ctx context.Context, spaceID string) (string, error)
}

// QueueState is the lifecycle state of an outbound queue item.
type QueueState string

const (
	// QueuePending: not yet accepted by the remote; eligible for push.
	QueuePending QueueState = "pending"
	// QueueAcked: accepted remotely; kept for bookkeeping.
	QueueAcked QueueState = "acked"
	// QueueRejected: terminally rejected with a reason; never silently
	// dropped, never retried.
	QueueRejected QueueState = "rejected"
)

// QueueItem is one outbound object awaiting or past remote acknowledgement.
type QueueItem struct {
	Position  uint64
	ObjectID  string
	SpaceID   string
	Bucket    string
	State     QueueState
	Attempts  uint64
	LastError string
	Reason    string
}

// QueueStore persists the outbound queue so interrupted sync cycles resume.
//
// Contract:
// - Enqueue MUST be idempotent by object id and assigns a queue position on
//   first enqueue.
// - PendingQueue returns pending items in position order; limit <= 0 means
//   no limit.
// - UpdateQueue replaces the mutable fields (state, attempts, last error,
//   reason) of an existing item and fails with ErrNotFound otherwise.
// - QueueSnapshot returns every item for a space in position order,
//   rejected items included.
type QueueStore interface {
	Enqueue(ctx context.Context, item QueueItem) (QueueItem, error)
	PendingQueue(ctx context.Context, spaceID string, limit int) ([]QueueItem, error)
	UpdateQueue(ctx context.Context, item QueueItem) error
	QueueSnapshot(ctx context.Context, spaceID string) ([]QueueItem, error)
}

// SyncStore is the full persistence surface the sync engine drives.
type SyncStore interface {
	Store
	QueueStore
}

// BlockStore is a minimal content-addressed store for attachment blocks.
//
// Contract:
// - PutBlock MUST be idempotent.
// - Stored blocks MUST be immutable.
// - Block ids MUST be derived from the bytes written.
// - GetBlock MUST return ErrNotFound when the id is absent.
type BlockStore interface {
	PutBlock(data []byte) (string, error)
	GetBlock(blockID string) ([]byte, error)
	HasBlock(blockID string) bool
}

// CheckRecord verifies that an object record names the content address of
// its bytes. An empty space id is permitted; spaceless objects live in a
// scope of their own.
func CheckRecord(rec ObjectRecord) error {
	if _, err := cidutil.Parse(rec.ObjectID); err != nil {
		return ErrInvalidID
	}
	if cidutil.CIDv1RawBlake3(rec.Bytes) != rec.ObjectID {
		return ErrIDMismatch
	}
	return nil
}
