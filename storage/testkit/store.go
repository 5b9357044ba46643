// Package testkit runs shared conformance suites against storage adapters.
// Every Store, QueueStore, and BlockStore implementation is expected to pass
// these suites unmodified.
package testkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"humanity.network/core/cidutil"
	"humanity.network/core/storage"
)

// NewSyncStore constructs a fresh, empty SyncStore instance for a test.
// The returned store MUST be isolated from other tests.
type NewSyncStore func(t *testing.T) storage.SyncStore

func record(spaceID, body string) storage.ObjectRecord {
	b := []byte(body)
	return storage.ObjectRecord{
		ObjectID: cidutil.CIDv1RawBlake3(b),
		SpaceID:  spaceID,
		Bytes:    b,
	}
}

func RunStoreConformance(t *testing.T, newStore NewSyncStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		st := newStore(t)
		rec := record("space-a", "hello, humanity storage")

		stored, err := st.PutObject(ctx, rec)
		if err != nil {
			t.Fatalf("PutObject failed: %v", err)
		}
		if stored.Sequence != 1 {
			t.Fatalf("first put sequence: got %d want 1", stored.Sequence)
		}

		got, err := st.GetObject(ctx, rec.ObjectID)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		if !bytes.Equal(got.Bytes, rec.Bytes) {
			t.Fatalf("GetObject bytes mismatch")
		}
		if got.SpaceID != rec.SpaceID || got.Sequence != stored.Sequence {
			t.Fatalf("GetObject record mismatch: %+v", got)
		}
		if got.Suppressed {
			t.Fatalf("fresh record should not be suppressed")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		st := newStore(t)
		rec := record("space-a", "same object twice")

		first, err := st.PutObject(ctx, rec)
		if err != nil {
			t.Fatalf("PutObject(1) failed: %v", err)
		}
		second, err := st.PutObject(ctx, rec)
		if err != nil {
			t.Fatalf("PutObject(2) failed: %v", err)
		}
		if first.Sequence != second.Sequence {
			t.Fatalf("duplicate put changed sequence: %d vs %d", first.Sequence, second.Sequence)
		}

		list, err := st.ListBySpaceSince(ctx, "space-a", 0, 0)
		if err != nil {
			t.Fatalf("ListBySpaceSince failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("duplicate put duplicated the record: %d entries", len(list))
		}
	})

	t.Run("PutRejectsBadIDs", func(t *testing.T) {
		st := newStore(t)

		rec := record("space-a", "honest bytes")
		rec.ObjectID = cidutil.CIDv1RawBlake3([]byte("other bytes"))
		if _, err := st.PutObject(ctx, rec); !errors.Is(err, storage.ErrIDMismatch) {
			t.Fatalf("mismatched id: got err=%v want ErrIDMismatch", err)
		}

		rec = record("space-a", "honest bytes")
		rec.ObjectID = "not-a-cid"
		if _, err := st.PutObject(ctx, rec); !errors.Is(err, storage.ErrInvalidID) {
			t.Fatalf("invalid id: got err=%v want ErrInvalidID", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		st := newStore(t)
		id := cidutil.CIDv1RawBlake3([]byte("never stored"))

		if _, err := st.GetObject(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("GetObject missing: got err=%v want ErrNotFound", err)
		}
		ok, err := st.HasObject(ctx, id)
		if err != nil {
			t.Fatalf("HasObject failed: %v", err)
		}
		if ok {
			t.Fatalf("HasObject returned true for missing id")
		}
	})

	t.Run("SequencesPerSpace", func(t *testing.T) {
		st := newStore(t)
		for i := 0; i < 3; i++ {
			rec := record("space-a", fmt.Sprintf("a-%d", i))
			stored, err := st.PutObject(ctx, rec)
			if err != nil {
				t.Fatalf("PutObject a-%d failed: %v", i, err)
			}
			if stored.Sequence != uint64(i+1) {
				t.Fatalf("space-a sequence: got %d want %d", stored.Sequence, i+1)
			}
		}
		stored, err := st.PutObject(ctx, record("space-b", "b-0"))
		if err != nil {
			t.Fatalf("PutObject b-0 failed: %v", err)
		}
		if stored.Sequence != 1 {
			t.Fatalf("space-b sequence starts at %d, want 1", stored.Sequence)
		}
	})

	t.Run("ListSinceAndLimit", func(t *testing.T) {
		st := newStore(t)
		var ids []string
		for i := 0; i < 4; i++ {
			rec := record("space-a", fmt.Sprintf("entry-%d", i))
			if _, err := st.PutObject(ctx, rec); err != nil {
				t.Fatalf("PutObject entry-%d failed: %v", i, err)
			}
			ids = append(ids, rec.ObjectID)
		}

		list, err := st.ListBySpaceSince(ctx, "space-a", 1, 0)
		if err != nil {
			t.Fatalf("ListBySpaceSince(since=1) failed: %v", err)
		}
		if len(list) != 3 || list[0].ObjectID != ids[1] {
			t.Fatalf("since=1: got %d entries starting %q", len(list), first(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].Sequence <= list[i-1].Sequence {
				t.Fatalf("listing out of sequence order at %d", i)
			}
		}

		list, err = st.ListBySpaceSince(ctx, "space-a", 0, 2)
		if err != nil {
			t.Fatalf("ListBySpaceSince(limit=2) failed: %v", err)
		}
		if len(list) != 2 || list[0].ObjectID != ids[0] || list[1].ObjectID != ids[1] {
			t.Fatalf("limit=2 returned wrong window")
		}

		list, err = st.ListBySpaceSince(ctx, "space-unknown", 0, 0)
		if err != nil {
			t.Fatalf("ListBySpaceSince(unknown) failed: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("unknown space listed %d entries", len(list))
		}
	})

	t.Run("SuppressedFlag", func(t *testing.T) {
		st := newStore(t)
		rec := record("space-a", "gated body")
		if _, err := st.PutObject(ctx, rec); err != nil {
			t.Fatalf("PutObject failed: %v", err)
		}

		if err := st.SetSuppressed(ctx, rec.ObjectID, true); err != nil {
			t.Fatalf("SetSuppressed(true) failed: %v", err)
		}
		got, err := st.GetObject(ctx, rec.ObjectID)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		if !got.Suppressed {
			t.Fatalf("record not marked suppressed")
		}

		list, err := st.ListBySpaceSince(ctx, "space-a", 0, 0)
		if err != nil {
			t.Fatalf("ListBySpaceSince failed: %v", err)
		}
		if len(list) != 1 || !list[0].Suppressed {
			t.Fatalf("suppressed record must stay listed with the flag set")
		}

		if err := st.SetSuppressed(ctx, rec.ObjectID, false); err != nil {
			t.Fatalf("SetSuppressed(false) failed: %v", err)
		}
		got, err = st.GetObject(ctx, rec.ObjectID)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		if got.Suppressed {
			t.Fatalf("suppression did not clear")
		}

		missing := cidutil.CIDv1RawBlake3([]byte("no such record"))
		if err := st.SetSuppressed(ctx, missing, true); !storage.IsNotFound(err) {
			t.Fatalf("SetSuppressed missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("Cursors", func(t *testing.T) {
		st := newStore(t)

		cur, err := st.GetCursor(ctx, "space-a")
		if err != nil {
			t.Fatalf("GetCursor(empty) failed: %v", err)
		}
		if cur != "" {
			t.Fatalf("unset cursor: got %q want empty", cur)
		}

		if err := st.PutCursor(ctx, "space-a", "cursor-1"); err != nil {
			t.Fatalf("PutCursor failed: %v", err)
		}
		if err := st.PutCursor(ctx, "space-a", "cursor-2"); err != nil {
			t.Fatalf("PutCursor overwrite failed: %v", err)
		}
		cur, err = st.GetCursor(ctx, "space-a")
		if err != nil {
			t.Fatalf("GetCursor failed: %v", err)
		}
		if cur != "cursor-2" {
			t.Fatalf("cursor: got %q want cursor-2", cur)
		}

		cur, err = st.GetCursor(ctx, "space-b")
		if err != nil {
			t.Fatalf("GetCursor(other space) failed: %v", err)
		}
		if cur != "" {
			t.Fatalf("cursor leaked across spaces: %q", cur)
		}
	})

	t.Run("EmptySpaceScope", func(t *testing.T) {
		st := newStore(t)
		rec := record("", "identity profile body")

		stored, err := st.PutObject(ctx, rec)
		if err != nil {
			t.Fatalf("PutObject with empty space failed: %v", err)
		}
		if stored.Sequence != 1 {
			t.Fatalf("empty-space sequence: got %d want 1", stored.Sequence)
		}
		list, err := st.ListBySpaceSince(ctx, "", 0, 0)
		if err != nil {
			t.Fatalf("ListBySpaceSince(empty) failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("empty-space listing: got %d entries want 1", len(list))
		}
	})
}

func first(list []storage.ObjectRecord) string {
	if len(list) == 0 {
		return ""
	}
	return list[0].ObjectID
}

func RunQueueConformance(t *testing.T, newStore NewSyncStore) {
	t.Helper()
	ctx := context.Background()

	item := func(spaceID, body, bucket string) storage.QueueItem {
		return storage.QueueItem{
			ObjectID: cidutil.CIDv1RawBlake3([]byte(body)),
			SpaceID:  spaceID,
			Bucket:   bucket,
		}
	}

	t.Run("EnqueueAssignsPositions", func(t *testing.T) {
		st := newStore(t)
		for i := 0; i < 3; i++ {
			got, err := st.Enqueue(ctx, item("space-a", fmt.Sprintf("q-%d", i), "mergeable"))
			if err != nil {
				t.Fatalf("Enqueue q-%d failed: %v", i, err)
			}
			if got.Position != uint64(i+1) {
				t.Fatalf("position: got %d want %d", got.Position, i+1)
			}
			if got.State != storage.QueuePending {
				t.Fatalf("state: got %q want pending", got.State)
			}
		}
	})

	t.Run("EnqueueIdempotent", func(t *testing.T) {
		st := newStore(t)
		it := item("space-a", "enqueue once", "mergeable")

		first, err := st.Enqueue(ctx, it)
		if err != nil {
			t.Fatalf("Enqueue(1) failed: %v", err)
		}
		second, err := st.Enqueue(ctx, it)
		if err != nil {
			t.Fatalf("Enqueue(2) failed: %v", err)
		}
		if first.Position != second.Position {
			t.Fatalf("duplicate enqueue moved the item: %d vs %d", first.Position, second.Position)
		}
		snap, err := st.QueueSnapshot(ctx, "space-a")
		if err != nil {
			t.Fatalf("QueueSnapshot failed: %v", err)
		}
		if len(snap) != 1 {
			t.Fatalf("duplicate enqueue duplicated the item: %d entries", len(snap))
		}
	})

	t.Run("EnqueueRejectsEmptyID", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Enqueue(ctx, storage.QueueItem{SpaceID: "space-a"})
		if !errors.Is(err, storage.ErrInvalidID) {
			t.Fatalf("empty id: got err=%v want ErrInvalidID", err)
		}
	})

	t.Run("PendingFiltersAndOrders", func(t *testing.T) {
		st := newStore(t)
		var items []storage.QueueItem
		for i := 0; i < 3; i++ {
			got, err := st.Enqueue(ctx, item("space-a", fmt.Sprintf("pend-%d", i), "local_only"))
			if err != nil {
				t.Fatalf("Enqueue pend-%d failed: %v", i, err)
			}
			items = append(items, got)
		}

		acked := items[1]
		acked.State = storage.QueueAcked
		if err := st.UpdateQueue(ctx, acked); err != nil {
			t.Fatalf("UpdateQueue failed: %v", err)
		}

		pending, err := st.PendingQueue(ctx, "space-a", 0)
		if err != nil {
			t.Fatalf("PendingQueue failed: %v", err)
		}
		if len(pending) != 2 || pending[0].ObjectID != items[0].ObjectID || pending[1].ObjectID != items[2].ObjectID {
			t.Fatalf("PendingQueue window wrong: %+v", pending)
		}

		pending, err = st.PendingQueue(ctx, "space-a", 1)
		if err != nil {
			t.Fatalf("PendingQueue(limit=1) failed: %v", err)
		}
		if len(pending) != 1 || pending[0].ObjectID != items[0].ObjectID {
			t.Fatalf("PendingQueue limit ignored")
		}
	})

	t.Run("UpdateMutatesDispositionOnly", func(t *testing.T) {
		st := newStore(t)
		queued, err := st.Enqueue(ctx, item("space-a", "to update", "mergeable"))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}

		queued.State = storage.QueueRejected
		queued.Attempts = 3
		queued.LastError = "relay unavailable"
		queued.Reason = "banned"
		queued.Bucket = "tampered"
		queued.Position = 99
		if err := st.UpdateQueue(ctx, queued); err != nil {
			t.Fatalf("UpdateQueue failed: %v", err)
		}

		snap, err := st.QueueSnapshot(ctx, "space-a")
		if err != nil {
			t.Fatalf("QueueSnapshot failed: %v", err)
		}
		if len(snap) != 1 {
			t.Fatalf("snapshot length: got %d want 1", len(snap))
		}
		got := snap[0]
		if got.State != storage.QueueRejected || got.Attempts != 3 || got.LastError != "relay unavailable" || got.Reason != "banned" {
			t.Fatalf("disposition fields not updated: %+v", got)
		}
		if got.Bucket != "mergeable" || got.Position != 1 {
			t.Fatalf("immutable fields changed: %+v", got)
		}

		missing := item("space-a", "never queued", "mergeable")
		missing.State = storage.QueueAcked
		if err := st.UpdateQueue(ctx, missing); !storage.IsNotFound(err) {
			t.Fatalf("UpdateQueue missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("SnapshotKeepsTerminalStates", func(t *testing.T) {
		st := newStore(t)
		states := []storage.QueueState{storage.QueueAcked, storage.QueueRejected, storage.QueuePending}
		for i, state := range states {
			queued, err := st.Enqueue(ctx, item("space-a", fmt.Sprintf("snap-%d", i), "mergeable"))
			if err != nil {
				t.Fatalf("Enqueue snap-%d failed: %v", i, err)
			}
			if state == storage.QueuePending {
				continue
			}
			queued.State = state
			if err := st.UpdateQueue(ctx, queued); err != nil {
				t.Fatalf("UpdateQueue snap-%d failed: %v", i, err)
			}
		}

		snap, err := st.QueueSnapshot(ctx, "space-a")
		if err != nil {
			t.Fatalf("QueueSnapshot failed: %v", err)
		}
		if len(snap) != 3 {
			t.Fatalf("snapshot dropped terminal items: %d entries", len(snap))
		}
		for i := 1; i < len(snap); i++ {
			if snap[i].Position <= snap[i-1].Position {
				t.Fatalf("snapshot out of position order at %d", i)
			}
		}
	})

	t.Run("SpacesIsolated", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.Enqueue(ctx, item("space-a", "a-side", "mergeable")); err != nil {
			t.Fatalf("Enqueue a failed: %v", err)
		}
		got, err := st.Enqueue(ctx, item("space-b", "b-side", "mergeable"))
		if err != nil {
			t.Fatalf("Enqueue b failed: %v", err)
		}
		if got.Position != 1 {
			t.Fatalf("space-b positions start at %d, want 1", got.Position)
		}
		snap, err := st.QueueSnapshot(ctx, "space-a")
		if err != nil {
			t.Fatalf("QueueSnapshot failed: %v", err)
		}
		if len(snap) != 1 {
			t.Fatalf("space-a snapshot sees %d entries, want 1", len(snap))
		}
	})
}
