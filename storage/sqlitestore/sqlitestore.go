// Package sqlitestore implements the storage contracts over a single SQLite
// file. One file backs objects, cursors, the outbound queue, and attachment
// blocks so clients and relays share the same transaction and visibility
// boundaries.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"humanity.network/core/cidutil"
	"humanity.network/core/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	object_id  TEXT PRIMARY KEY,
	space_id   TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	bytes      BLOB NOT NULL,
	suppressed INTEGER NOT NULL DEFAULT 0,
	UNIQUE (space_id, seq)
);
CREATE INDEX IF NOT EXISTS objects_space_seq ON objects (space_id, seq);

CREATE TABLE IF NOT EXISTS cursors (
	space_id TEXT PRIMARY KEY,
	cursor   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queue (
	object_id  TEXT PRIMARY KEY,
	space_id   TEXT NOT NULL,
	position   INTEGER NOT NULL,
	bucket     TEXT NOT NULL,
	state      TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	UNIQUE (space_id, position)
);

CREATE TABLE IF NOT EXISTS blocks (
	block_id TEXT PRIMARY KEY,
	bytes    BLOB NOT NULL
);
`

// Store implements storage.SyncStore over SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ storage.SyncStore  = (*Store)(nil)
	_ storage.BlockStore = (*Store)(nil)
)

// Open opens a SQLite store at path and applies the bundled schema. This
// keeps startup and schema evolution in one place instead of requiring
// callers to coordinate them.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutObject(ctx context.Context, rec storage.ObjectRecord) (storage.ObjectRecord, error) {
	if err := storage.CheckRecord(rec); err != nil {
		return storage.ObjectRecord{}, err
	}

	if existing, err := s.getObject(ctx, rec.ObjectID); err == nil {
		return s.checkExisting(existing, rec)
	} else if !storage.IsNotFound(err) {
		return storage.ObjectRecord{}, err
	}

	// The subselect assigns the next per-space sequence atomically.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objects (object_id, space_id, seq, bytes, suppressed)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM objects WHERE space_id = ?), ?, ?)`,
		rec.ObjectID, rec.SpaceID, rec.SpaceID, rec.Bytes, boolToInt(rec.Suppressed))
	if err != nil {
		// A concurrent writer may have landed the same object or claimed the
		// sequence slot first. Re-read before reporting failure.
		if existing, rerr := s.getObject(ctx, rec.ObjectID); rerr == nil {
			return s.checkExisting(existing, rec)
		}
		return storage.ObjectRecord{}, fmt.Errorf("insert object: %w", err)
	}
	return s.getObject(ctx, rec.ObjectID)
}

func (s *Store) checkExisting(existing, rec storage.ObjectRecord) (storage.ObjectRecord, error) {
	if !bytes.Equal(existing.Bytes, rec.Bytes) {
		return storage.ObjectRecord{}, storage.ErrImmutable
	}
	return existing, nil
}

func (s *Store) getObject(ctx context.Context, objectID string) (storage.ObjectRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT object_id, space_id, seq, bytes, suppressed FROM objects WHERE object_id = ?`,
		objectID)
	return scanObject(row)
}

func (s *Store) GetObject(ctx context.Context, objectID string) (storage.ObjectRecord, error) {
	return s.getObject(ctx, objectID)
}

func (s *Store) HasObject(ctx context.Context, objectID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE object_id = ?`, objectID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListBySpaceSince(ctx context.Context, spaceID string, since uint64, limit int) ([]storage.ObjectRecord, error) {
	if limit <= 0 {
		// SQLite treats a negative LIMIT as unlimited.
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, space_id, seq, bytes, suppressed FROM objects
		WHERE space_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		spaceID, int64(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ObjectRecord
	for rows.Next() {
		rec, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetSuppressed(ctx context.Context, objectID string, suppressed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE objects SET suppressed = ? WHERE object_id = ?`,
		boolToInt(suppressed), objectID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) PutCursor(ctx context.Context, spaceID, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (space_id, cursor) VALUES (?, ?)
		ON CONFLICT (space_id) DO UPDATE SET cursor = excluded.cursor`,
		spaceID, cursor)
	return err
}

func (s *Store) GetCursor(ctx context.Context, spaceID string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM cursors WHERE space_id = ?`, spaceID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cursor, nil
}

func (s *Store) Enqueue(ctx context.Context, item storage.QueueItem) (storage.QueueItem, error) {
	if item.ObjectID == "" {
		return storage.QueueItem{}, storage.ErrInvalidID
	}
	if item.State == "" {
		item.State = storage.QueuePending
	}

	if existing, err := s.getQueueItem(ctx, item.ObjectID); err == nil {
		return existing, nil
	} else if !storage.IsNotFound(err) {
		return storage.QueueItem{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue (object_id, space_id, position, bucket, state, attempts, last_error, reason)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM queue WHERE space_id = ?), ?, ?, ?, ?, ?)`,
		item.ObjectID, item.SpaceID, item.SpaceID, item.Bucket, string(item.State),
		int64(item.Attempts), item.LastError, item.Reason)
	if err != nil {
		if existing, rerr := s.getQueueItem(ctx, item.ObjectID); rerr == nil {
			return existing, nil
		}
		return storage.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	return s.getQueueItem(ctx, item.ObjectID)
}

func (s *Store) getQueueItem(ctx context.Context, objectID string) (storage.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT object_id, space_id, position, bucket, state, attempts, last_error, reason
		FROM queue WHERE object_id = ?`, objectID)
	return scanQueueItem(row)
}

func (s *Store) PendingQueue(ctx context.Context, spaceID string, limit int) ([]storage.QueueItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, space_id, position, bucket, state, attempts, last_error, reason
		FROM queue WHERE space_id = ? AND state = ? ORDER BY position ASC LIMIT ?`,
		spaceID, string(storage.QueuePending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

func (s *Store) UpdateQueue(ctx context.Context, item storage.QueueItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue SET state = ?, attempts = ?, last_error = ?, reason = ? WHERE object_id = ?`,
		string(item.State), int64(item.Attempts), item.LastError, item.Reason, item.ObjectID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) QueueSnapshot(ctx context.Context, spaceID string) ([]storage.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, space_id, position, bucket, state, attempts, last_error, reason
		FROM queue WHERE space_id = ? ORDER BY position ASC`, spaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

func (s *Store) PutBlock(data []byte) (string, error) {
	id := cidutil.CIDv1RawBlake3(data)
	if id == "" {
		return "", storage.ErrInvalidID
	}

	if existing, err := s.readBlock(id); err == nil {
		if !bytes.Equal(existing, data) {
			return "", storage.ErrImmutable
		}
		return id, nil
	} else if !storage.IsNotFound(err) {
		return "", err
	}

	if _, err := s.db.Exec(`INSERT INTO blocks (block_id, bytes) VALUES (?, ?)`, id, data); err != nil {
		// A concurrent writer may have landed the same block first.
		if existing, rerr := s.readBlock(id); rerr == nil && bytes.Equal(existing, data) {
			return id, nil
		}
		return "", fmt.Errorf("insert block: %w", err)
	}
	return id, nil
}

func (s *Store) GetBlock(blockID string) ([]byte, error) {
	if _, err := cidutil.Parse(blockID); err != nil {
		return nil, storage.ErrInvalidID
	}
	b, err := s.readBlock(blockID)
	if err != nil {
		return nil, err
	}
	if cidutil.CIDv1RawBlake3(b) != blockID {
		return nil, storage.ErrIDMismatch
	}
	return b, nil
}

func (s *Store) HasBlock(blockID string) bool {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE block_id = ?`, blockID).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

func (s *Store) readBlock(blockID string) ([]byte, error) {
	var b []byte
	err := s.db.QueryRow(`SELECT bytes FROM blocks WHERE block_id = ?`, blockID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (storage.ObjectRecord, error) {
	var rec storage.ObjectRecord
	var seq, suppressed int64
	err := row.Scan(&rec.ObjectID, &rec.SpaceID, &seq, &rec.Bytes, &suppressed)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ObjectRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ObjectRecord{}, err
	}
	rec.Sequence = uint64(seq)
	rec.Suppressed = suppressed != 0
	return rec, nil
}

func scanQueueItem(row rowScanner) (storage.QueueItem, error) {
	var item storage.QueueItem
	var position, attempts int64
	var state string
	err := row.Scan(&item.ObjectID, &item.SpaceID, &position, &item.Bucket, &state,
		&attempts, &item.LastError, &item.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.QueueItem{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.QueueItem{}, err
	}
	item.Position = uint64(position)
	item.Attempts = uint64(attempts)
	item.State = storage.QueueState(state)
	return item, nil
}

func collectQueueItems(rows *sql.Rows) ([]storage.QueueItem, error) {
	var out []storage.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
