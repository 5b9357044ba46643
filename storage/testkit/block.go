package testkit

import (
	"bytes"
	"testing"

	"humanity.network/core/cidutil"
	"humanity.network/core/storage"
)

// NewBlockStore constructs a fresh, empty BlockStore instance for a test.
// The returned store MUST be isolated from other tests.
type NewBlockStore func(t *testing.T) storage.BlockStore

func RunBlockStoreConformance(t *testing.T, newStore NewBlockStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		bs := newStore(t)
		want := []byte("hello, humanity blocks")

		id, err := bs.PutBlock(want)
		if err != nil {
			t.Fatalf("PutBlock failed: %v", err)
		}
		if wantID := cidutil.CIDv1RawBlake3(want); id != wantID {
			t.Fatalf("PutBlock id mismatch: got %s want %s", id, wantID)
		}

		got, err := bs.GetBlock(id)
		if err != nil {
			t.Fatalf("GetBlock failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("GetBlock bytes mismatch")
		}
		if gotID := cidutil.CIDv1RawBlake3(got); gotID != id {
			t.Fatalf("GetBlock returned bytes not matching requested id")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		bs := newStore(t)
		b := []byte("same block twice")

		id1, err := bs.PutBlock(b)
		if err != nil {
			t.Fatalf("PutBlock(1) failed: %v", err)
		}
		id2, err := bs.PutBlock(b)
		if err != nil {
			t.Fatalf("PutBlock(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("PutBlock not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		bs := newStore(t)
		b := []byte("missing block")
		id := cidutil.CIDv1RawBlake3(b)

		if bs.HasBlock(id) {
			t.Fatalf("HasBlock returned true for missing id")
		}
		if _, err := bs.GetBlock(id); !storage.IsNotFound(err) {
			t.Fatalf("GetBlock missing: got err=%v want ErrNotFound", err)
		}

		if _, err := bs.PutBlock(b); err != nil {
			t.Fatalf("PutBlock failed: %v", err)
		}
		if !bs.HasBlock(id) {
			t.Fatalf("HasBlock returned false after PutBlock")
		}
	})

	t.Run("RejectInvalidID", func(t *testing.T) {
		bs := newStore(t)
		if bs.HasBlock("not-a-cid") {
			t.Fatalf("HasBlock should be false for malformed id")
		}
		if _, err := bs.GetBlock("not-a-cid"); err == nil {
			t.Fatalf("GetBlock should fail for malformed id")
		}
	})
}
