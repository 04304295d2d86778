// Package snapshot implements the checkpoint protocol: a serialized
// {store contents, lsn} pair installed atomically so recovery always sees
// either the previous snapshot or a fully-written new one, never a
// partial write.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsjohal14/fluxdb/internal/lsn"
	"github.com/dsjohal14/fluxdb/internal/store"
)

// Snapshot is the durable Store dump captured at a given LSN: the next
// write position at the moment of capture.
type Snapshot struct {
	Data map[string]store.Document `json:"data"`
	LSN  lsn.LSN                   `json:"lsn"`
}

type wireLSN struct {
	Segment uint64 `json:"segment"`
	Offset  uint64 `json:"offset"`
}

type wireSnapshot struct {
	Data map[string]store.Document `json:"data"`
	LSN  wireLSN                   `json:"lsn"`
}

// FileName returns the path of the latest snapshot file for a given WAL
// root directory, derived from the configured root rather than
// hard-coded.
func FileName(root string) string {
	return root + ".snapshot"
}

func tempFileName(root string) string {
	return root + ".snapshot.tmp"
}

// Encode serializes s per the on-disk JSON schema.
func Encode(s Snapshot) ([]byte, error) {
	w := wireSnapshot{Data: s.Data, LSN: wireLSN{Segment: s.LSN.Segment, Offset: s.LSN.Offset}}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return b, nil
}

// Decode parses the on-disk JSON schema into a Snapshot.
func Decode(b []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	return Snapshot{Data: w.Data, LSN: lsn.LSN{Segment: w.LSN.Segment, Offset: w.LSN.Offset}}, nil
}

// Install runs the atomic publish protocol: write the temp file, fsync
// it, rename it over the final path, then fsync the parent directory so
// the rename itself is durable. WAL GC may only be invoked after Install
// returns successfully.
func Install(root string, s Snapshot) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}
	tmpPath := tempFileName(root)
	finalPath := FileName(root)

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmpPath, err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: fsync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("snapshot: rename %s -> %s: %w", tmpPath, finalPath, err)
	}
	dir, err := os.Open(filepath.Dir(finalPath))
	if err != nil {
		return fmt.Errorf("snapshot: open parent dir of %s: %w", finalPath, err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("snapshot: fsync parent dir of %s: %w", finalPath, err)
	}
	return nil
}

// Load reads the latest snapshot for root, if one exists.
func Load(root string) (Snapshot, bool, error) {
	b, err := os.ReadFile(FileName(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("snapshot: read %s: %w", FileName(root), err)
	}
	s, err := Decode(b)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}
