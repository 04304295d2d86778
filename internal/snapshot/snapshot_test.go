package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/dsjohal14/fluxdb/internal/lsn"
	"github.com/dsjohal14/fluxdb/internal/store"
)

func TestInstallThenLoadRoundTrips(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fluxdb")

	s := Snapshot{
		Data: map[string]store.Document{
			"a": {Value: float64(1), Version: 1},
		},
		LSN: lsn.LSN{Segment: 2, Offset: 37},
	}
	if err := Install(root, s); err != nil {
		t.Fatalf("install: %v", err)
	}

	loaded, ok, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected a snapshot to exist")
	}
	if loaded.LSN != s.LSN {
		t.Fatalf("expected lsn %s, got %s", s.LSN, loaded.LSN)
	}
	if loaded.Data["a"].Version != 1 {
		t.Fatalf("expected document to round-trip, got %+v", loaded.Data["a"])
	}
}

func TestLoadMissingSnapshotIsNotAnError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fluxdb")
	_, ok, err := Load(root)
	if err != nil {
		t.Fatalf("expected no error for a missing snapshot, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when no snapshot file exists")
	}
}

func TestInstallLeavesNoTempFileBehind(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fluxdb")
	s := Snapshot{Data: map[string]store.Document{}, LSN: lsn.Zero()}
	if err := Install(root, s); err != nil {
		t.Fatalf("install: %v", err)
	}
	matches, err := filepath.Glob(tempFileName(root))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected the temp file to be renamed away, found %v", matches)
	}
}
