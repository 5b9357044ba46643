// Package bundle reads and writes space archives: deterministic TAR
// bundles that carry a space's object log, and optionally its attachment
// blocks, between devices with no relay in the middle.
//
// The first entry is always archive.cbor, a canonical CBOR header naming
// the space and listing every carried id in order. Objects follow in log
// sequence order so governance replays correctly on import, then blocks
// sorted by id. TAR headers are normalized, so two exports of the same
// log are byte-identical. Every entry is validated against its content
// address on both export and import.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"humanity.network/core/canon"
	"humanity.network/core/cidutil"
	"humanity.network/core/object"
	"humanity.network/core/storage"
)

// FormatVersion is the current archive header schema version.
const FormatVersion = 1

const headerName = "archive.cbor"

var epoch0 = time.Unix(0, 0).UTC()

type archiveHeader struct {
	Version   uint64   `cbor:"version"`
	SpaceID   string   `cbor:"space_id"`
	ObjectIDs []string `cbor:"object_ids"`
	BlockIDs  []string `cbor:"block_ids,omitempty"`
}

// ExportOptions selects optional archive contents.
type ExportOptions struct {
	// Blocks lists attachment block ids to carry alongside the log.
	Blocks []string
	// BlockSource supplies the block bytes; required when Blocks is set.
	BlockSource storage.BlockStore
}

// Export writes the archive for spaceID to w.
func Export(ctx context.Context, w io.Writer, store storage.Store, spaceID string, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil store")
	}
	if spaceID == "" {
		return fmt.Errorf("bundle: space id is required")
	}
	if len(opts.Blocks) > 0 && opts.BlockSource == nil {
		return fmt.Errorf("bundle: blocks requested without a block source")
	}

	recs, err := store.ListBySpaceSince(ctx, spaceID, 0, 0)
	if err != nil {
		return err
	}

	blockIDs := make([]string, 0, len(opts.Blocks))
	seenBlocks := make(map[string]bool, len(opts.Blocks))
	for _, id := range opts.Blocks {
		if seenBlocks[id] {
			continue
		}
		seenBlocks[id] = true
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	hdr := archiveHeader{
		Version:  FormatVersion,
		SpaceID:  spaceID,
		BlockIDs: blockIDs,
	}
	hdr.ObjectIDs = make([]string, 0, len(recs))
	for _, rec := range recs {
		hdr.ObjectIDs = append(hdr.ObjectIDs, rec.ObjectID)
	}

	headerBytes, err := canon.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("bundle: encode header: %w", err)
	}

	tw := tar.NewWriter(w)
	if err := writeEntry(tw, headerName, headerBytes); err != nil {
		_ = tw.Close()
		return err
	}

	for _, rec := range recs {
		if err := storage.CheckRecord(rec); err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeEntry(tw, "objects/"+rec.ObjectID, rec.Bytes); err != nil {
			_ = tw.Close()
			return err
		}
	}

	for _, id := range blockIDs {
		b, err := opts.BlockSource.GetBlock(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if cidutil.CIDv1RawBlake3(b) != id {
			_ = tw.Close()
			return storage.ErrIDMismatch
		}
		if err := writeEntry(tw, "blocks/"+id, b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls archive import behavior.
type ImportOptions struct {
	// BlockSink receives carried blocks. When nil, block entries are
	// verified against the header but not stored.
	BlockSink storage.BlockStore
	// IgnoreUnknown skips TAR entries outside the archive layout instead
	// of failing. Default is fail-closed.
	IgnoreUnknown bool
}

// ImportResult reports what an import stored.
type ImportResult struct {
	SpaceID string
	Objects int
	Blocks  int
}

// Import reads an archive from r and replays its log into store.
func Import(ctx context.Context, r io.Reader, store storage.Store) (ImportResult, error) {
	return ImportWithOptions(ctx, r, store, ImportOptions{})
}

// ImportWithOptions reads an archive from r and replays its log into
// store. Objects are put in header order, so the destination log keeps
// the source's causal order. Puts are idempotent; importing the same
// archive twice is a no-op.
func ImportWithOptions(ctx context.Context, r io.Reader, store storage.Store, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if store == nil {
		return res, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)

	hdr, err := readHeader(tr)
	if err != nil {
		return res, err
	}
	res.SpaceID = hdr.SpaceID

	wantObjects := make(map[string]int, len(hdr.ObjectIDs))
	for i, id := range hdr.ObjectIDs {
		if _, ok := wantObjects[id]; ok {
			return res, fmt.Errorf("bundle: header lists object %s twice", id)
		}
		wantObjects[id] = i
	}
	wantBlocks := make(map[string]bool, len(hdr.BlockIDs))
	for _, id := range hdr.BlockIDs {
		if wantBlocks[id] {
			return res, fmt.Errorf("bundle: header lists block %s twice", id)
		}
		wantBlocks[id] = true
	}

	nextObject := 0
	seenBlocks := 0
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return res, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		switch {
		case strings.HasPrefix(name, "objects/"):
			id := strings.TrimPrefix(name, "objects/")
			pos, listed := wantObjects[id]
			if !listed {
				return res, fmt.Errorf("bundle: object %s is not in the header", id)
			}
			if pos != nextObject {
				return res, fmt.Errorf("bundle: object %s out of order", id)
			}
			payload, err := io.ReadAll(tr)
			if err != nil {
				return res, err
			}
			rec := storage.ObjectRecord{ObjectID: id, SpaceID: hdr.SpaceID, Bytes: payload}
			if err := storage.CheckRecord(rec); err != nil {
				return res, err
			}
			if _, err := store.PutObject(ctx, rec); err != nil {
				// The archive entry hashes to this id, so a refusal means
				// the local copy under the same id no longer does. Keep
				// the local store untouched and report the divergence.
				if errors.Is(err, storage.ErrImmutable) {
					return res, object.WrapError(object.KindSyncConflict, "",
						fmt.Sprintf("object %s differs from the stored copy", id), err)
				}
				return res, err
			}
			nextObject++
			res.Objects++

		case strings.HasPrefix(name, "blocks/"):
			id := strings.TrimPrefix(name, "blocks/")
			if !wantBlocks[id] {
				return res, fmt.Errorf("bundle: block %s is not in the header", id)
			}
			payload, err := io.ReadAll(tr)
			if err != nil {
				return res, err
			}
			if cidutil.CIDv1RawBlake3(payload) != id {
				return res, storage.ErrIDMismatch
			}
			seenBlocks++
			if opts.BlockSink != nil {
				if _, err := opts.BlockSink.PutBlock(payload); err != nil {
					return res, err
				}
				res.Blocks++
			}

		default:
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry: %s", name)
		}
	}

	if nextObject != len(hdr.ObjectIDs) {
		return res, fmt.Errorf("bundle: archive is missing %d objects", len(hdr.ObjectIDs)-nextObject)
	}
	if seenBlocks != len(hdr.BlockIDs) {
		return res, fmt.Errorf("bundle: archive is missing %d blocks", len(hdr.BlockIDs)-seenBlocks)
	}
	return res, nil
}

func readHeader(tr *tar.Reader) (archiveHeader, error) {
	var hdr archiveHeader
	h, err := tr.Next()
	if err != nil {
		return hdr, fmt.Errorf("bundle: read header: %w", err)
	}
	if cleanTarPath(h.Name) != headerName || h.Typeflag != tar.TypeReg {
		return hdr, fmt.Errorf("bundle: first entry must be %s", headerName)
	}
	b, err := io.ReadAll(tr)
	if err != nil {
		return hdr, err
	}
	if err := canon.Unmarshal(b, &hdr); err != nil {
		return hdr, fmt.Errorf("bundle: decode header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return hdr, fmt.Errorf("bundle: unsupported archive version %d", hdr.Version)
	}
	if hdr.SpaceID == "" {
		return hdr, fmt.Errorf("bundle: header has no space id")
	}
	return hdr, nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
