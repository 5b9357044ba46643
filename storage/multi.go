package storage

import "errors"

// MultiBlockStore provides deterministic, ordered fallback across multiple
// block stores.
//
// Read order is the slice order in Stores; callers MUST supply a fixed
// order. This avoids map-iteration nondeterminism and makes the retrieval
// strategy explicit.
//
// Put writes only to the first store. Use ReplicatingBlockStore when every
// backend must hold the block.
type MultiBlockStore struct {
	Stores []BlockStore
}

var _ BlockStore = MultiBlockStore{}

func (m MultiBlockStore) PutBlock(data []byte) (string, error) {
	if len(m.Stores) == 0 {
		return "", errors.New("storage: MultiBlockStore has no stores")
	}
	return m.Stores[0].PutBlock(data)
}

func (m MultiBlockStore) GetBlock(blockID string) ([]byte, error) {
	for _, bs := range m.Stores {
		b, err := bs.GetBlock(blockID)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (m MultiBlockStore) HasBlock(blockID string) bool {
	for _, bs := range m.Stores {
		if bs.HasBlock(blockID) {
			return true
		}
	}
	return false
}
