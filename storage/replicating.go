package storage

import (
	"fmt"

	"humanity.network/core/cidutil"
)

// NamedBlockStore associates a block store with a stable backend name.
//
// Used for multi-backend orchestration where callers need per-backend
// results, for reporting or auditing.
type NamedBlockStore struct {
	Name   string
	Blocks BlockStore
}

// ReplicatingBlockStore writes every block to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require every
// returned id to match the content address of the bytes; any disagreement
// is ErrIDMismatch.
//
// Use PutBlockAll when you need the per-backend id mapping.
type ReplicatingBlockStore struct {
	Backends []NamedBlockStore
}

var _ BlockStore = ReplicatingBlockStore{}

// PutBlockAll writes the same bytes to all backends. It returns the
// canonical id computed from the bytes and a map of backend name to the
// id each backend reported.
func (r ReplicatingBlockStore) PutBlockAll(data []byte) (string, map[string]string, error) {
	if len(r.Backends) == 0 {
		return "", nil, fmt.Errorf("storage: ReplicatingBlockStore has no backends")
	}
	want := cidutil.CIDv1RawBlake3(data)

	out := make(map[string]string, len(r.Backends))
	for _, b := range r.Backends {
		if b.Blocks == nil {
			return "", nil, fmt.Errorf("storage: nil block store for backend %q", b.Name)
		}
		got, err := b.Blocks.PutBlock(data)
		if err != nil {
			return "", nil, err
		}
		out[b.Name] = got
		if got != want {
			return "", out, ErrIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingBlockStore) PutBlock(data []byte) (string, error) {
	id, _, err := r.PutBlockAll(data)
	return id, err
}

func (r ReplicatingBlockStore) GetBlock(blockID string) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Blocks == nil {
			continue
		}
		out, err := b.Blocks.GetBlock(blockID)
		if err == nil {
			return out, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (r ReplicatingBlockStore) HasBlock(blockID string) bool {
	for _, b := range r.Backends {
		if b.Blocks != nil && b.Blocks.HasBlock(blockID) {
			return true
		}
	}
	return false
}
