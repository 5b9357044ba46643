// Package fsblockstore is a local filesystem-backed block store.
//
// Blocks are stored immutably and keyed strictly by content id. The
// implementation is offline and deterministic: it never touches the network
// and never depends on wall-clock time.
package fsblockstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"humanity.network/core/cidutil"
	"humanity.network/core/storage"
)

type Store struct {
	root string
}

var _ storage.BlockStore = (*Store)(nil)

// New constructs a block store rooted at root. The directory is created if
// needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("fsblockstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) PutBlock(data []byte) (string, error) {
	id := cidutil.CIDv1RawBlake3(data)
	if id == "" {
		return "", storage.ErrInvalidID
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := s.GetBlock(id)
			if rerr != nil {
				// An unreadable or corrupted existing block is an
				// immutability violation, not something to repair.
				return "", storage.ErrImmutable
			}
			if !bytes.Equal(existing, data) {
				return "", storage.ErrImmutable
			}
			return id, nil
		}
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	return id, nil
}

func (s *Store) GetBlock(blockID string) ([]byte, error) {
	if _, err := cidutil.Parse(blockID); err != nil {
		return nil, storage.ErrInvalidID
	}
	b, err := os.ReadFile(s.pathFor(blockID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if cidutil.CIDv1RawBlake3(b) != blockID {
		return nil, storage.ErrIDMismatch
	}
	return b, nil
}

func (s *Store) HasBlock(blockID string) bool {
	if _, err := cidutil.Parse(blockID); err != nil {
		return false
	}
	_, err := os.Stat(s.pathFor(blockID))
	return err == nil
}

// pathFor shards blocks into subdirectories. CID text carries a constant
// multibase prefix, so the shard key comes from the tail of the string.
func (s *Store) pathFor(id string) string {
	if len(id) < 2 {
		return filepath.Join(s.root, id)
	}
	return filepath.Join(s.root, id[len(id)-2:], id)
}
