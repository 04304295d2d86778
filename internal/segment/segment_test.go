package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dsjohal14/fluxdb/internal/store"
)

func TestCreateAppendReadNext(t *testing.T) {
	dir := t.TempDir()
	seg, err := Create(dir, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e := store.Event{Key: "x", New: float64(1), Version: 1}
	offset, err := seg.Append(e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected first record at offset 0, got %d", offset)
	}

	if err := seg.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	got, ok, err := seg.ReadNext()
	if err != nil || !ok {
		t.Fatalf("read_next: ok=%v err=%v", ok, err)
	}
	if got.Key != "x" || got.Version != 1 {
		t.Fatalf("unexpected event: %+v", got)
	}

	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReadNextTornTail(t *testing.T) {
	dir := t.TempDir()
	seg, err := Create(dir, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := seg.Append(store.Event{Key: "a", New: float64(1), Version: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(dir, FileName(0))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 50}); err != nil {
		t.Fatalf("write torn header: %v", err)
	}
	f.Close()

	seg2, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := seg2.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}

	first, ok, err := seg2.ReadNext()
	if err != nil || !ok || first.Key != "a" {
		t.Fatalf("expected first record to read cleanly, got %+v ok=%v err=%v", first, ok, err)
	}
	_, ok, err = seg2.ReadNext()
	if err != nil {
		t.Fatalf("expected torn tail to be reported as end of stream, not an error: %v", err)
	}
	if ok {
		t.Fatalf("expected torn tail record to be discarded")
	}
}

func TestReadNextCorruptPayloadIsFatal(t *testing.T) {
	dir := t.TempDir()
	seg, err := Create(dir, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(dir, FileName(0))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	// length prefix of 4 bytes, followed by invalid JSON.
	if _, err := f.Write([]byte{0, 0, 0, 4, 'n', 'o', 't', '{'}); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}
	f.Close()

	seg2, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := seg2.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, _, err = seg2.ReadNext()
	if err == nil {
		t.Fatalf("expected a fully-written malformed record to fail hard")
	}
}
