// Package memstore provides in-memory implementations of the storage
// contracts for tests and ephemeral clients. All operations are safe for
// concurrent use; nothing survives the process.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"humanity.network/core/cidutil"
	"humanity.network/core/storage"
)

// Store implements storage.SyncStore and storage.BlockStore in memory.
type Store struct {
	mu sync.RWMutex

	objects map[string]*storage.ObjectRecord
	bySpace map[string][]*storage.ObjectRecord
	seq     map[string]uint64
	cursors map[string]string

	queue      map[string]*storage.QueueItem
	queueOrder map[string][]*storage.QueueItem
	queueSeq   map[string]uint64

	blocks map[string][]byte
}

var (
	_ storage.SyncStore  = (*Store)(nil)
	_ storage.BlockStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		objects:    make(map[string]*storage.ObjectRecord),
		bySpace:    make(map[string][]*storage.ObjectRecord),
		seq:        make(map[string]uint64),
		cursors:    make(map[string]string),
		queue:      make(map[string]*storage.QueueItem),
		queueOrder: make(map[string][]*storage.QueueItem),
		queueSeq:   make(map[string]uint64),
		blocks:     make(map[string][]byte),
	}
}

func copyRecord(rec *storage.ObjectRecord) storage.ObjectRecord {
	out := *rec
	out.Bytes = append([]byte(nil), rec.Bytes...)
	return out
}

func (s *Store) PutObject(ctx context.Context, rec storage.ObjectRecord) (storage.ObjectRecord, error) {
	if err := storage.CheckRecord(rec); err != nil {
		return storage.ObjectRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.objects[rec.ObjectID]; ok {
		if !bytes.Equal(existing.Bytes, rec.Bytes) {
			return storage.ObjectRecord{}, storage.ErrImmutable
		}
		return copyRecord(existing), nil
	}

	s.seq[rec.SpaceID]++
	stored := &storage.ObjectRecord{
		ObjectID:   rec.ObjectID,
		SpaceID:    rec.SpaceID,
		Sequence:   s.seq[rec.SpaceID],
		Bytes:      append([]byte(nil), rec.Bytes...),
		Suppressed: rec.Suppressed,
	}
	s.objects[rec.ObjectID] = stored
	s.bySpace[rec.SpaceID] = append(s.bySpace[rec.SpaceID], stored)
	return copyRecord(stored), nil
}

func (s *Store) GetObject(ctx context.Context, objectID string) (storage.ObjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[objectID]
	if !ok {
		return storage.ObjectRecord{}, storage.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *Store) HasObject(ctx context.Context, objectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectID]
	return ok, nil
}

func (s *Store) ListBySpaceSince(ctx context.Context, spaceID string, since uint64, limit int) ([]storage.ObjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.ObjectRecord
	for _, rec := range s.bySpace[spaceID] {
		if rec.Sequence <= since {
			continue
		}
		out = append(out, copyRecord(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SetSuppressed(ctx context.Context, objectID string, suppressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.objects[objectID]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Suppressed = suppressed
	return nil
}

func (s *Store) PutCursor(ctx context.Context, spaceID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[spaceID] = cursor
	return nil
}

func (s *Store) GetCursor(ctx context.Context, spaceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[spaceID], nil
}

func (s *Store) Enqueue(ctx context.Context, item storage.QueueItem) (storage.QueueItem, error) {
	if item.ObjectID == "" {
		return storage.QueueItem{}, storage.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.queue[item.ObjectID]; ok {
		return *existing, nil
	}
	s.queueSeq[item.SpaceID]++
	item.Position = s.queueSeq[item.SpaceID]
	if item.State == "" {
		item.State = storage.QueuePending
	}
	stored := item
	s.queue[item.ObjectID] = &stored
	s.queueOrder[item.SpaceID] = append(s.queueOrder[item.SpaceID], &stored)
	return stored, nil
}

func (s *Store) PendingQueue(ctx context.Context, spaceID string, limit int) ([]storage.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.QueueItem
	for _, item := range s.queueOrder[spaceID] {
		if item.State != storage.QueuePending {
			continue
		}
		out = append(out, *item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateQueue(ctx context.Context, item storage.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.queue[item.ObjectID]
	if !ok {
		return storage.ErrNotFound
	}
	existing.State = item.State
	existing.Attempts = item.Attempts
	existing.LastError = item.LastError
	existing.Reason = item.Reason
	return nil
}

func (s *Store) QueueSnapshot(ctx context.Context, spaceID string) ([]storage.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.QueueItem, 0, len(s.queueOrder[spaceID]))
	for _, item := range s.queueOrder[spaceID] {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Store) PutBlock(data []byte) (string, error) {
	id := cidutil.CIDv1RawBlake3(data)
	if id == "" {
		return "", storage.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		s.blocks[id] = append([]byte(nil), data...)
	}
	return id, nil
}

func (s *Store) GetBlock(blockID string) ([]byte, error) {
	if _, err := cidutil.Parse(blockID); err != nil {
		return nil, storage.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) HasBlock(blockID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[blockID]
	return ok
}
