package engine

import "testing"

func TestOpenPutFsyncApplyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, 1<<20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	e, err := db.Put("x", map[string]any{"a": float64(1)})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := db.Store.Get("x"); ok {
		t.Fatalf("expected pre-durability put to not yet be visible in Store")
	}

	if err := db.FsyncWAL(); err != nil {
		t.Fatalf("fsync: %v", err)
	}
	db.ExecutePostDurability(e)

	doc, ok := db.Store.Get("x")
	if !ok || doc.Version != 1 {
		t.Fatalf("expected x to be visible with version 1 after post-durability apply, got %+v ok=%v", doc, ok)
	}
}

func TestInjectedFsyncFailureIsOneShot(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, 1<<20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	db.FailNextFsync()
	if err := db.FsyncWAL(); err == nil {
		t.Fatalf("expected the injected failure to surface on the next fsync")
	}
	if err := db.FsyncWAL(); err != nil {
		t.Fatalf("expected the injected failure to be one-shot, got %v", err)
	}
}

func TestRecoveryReplaysWalSuffixAfterSnapshot(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, 1<<20)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	apply := func(key string, value any) {
		e, err := db.Put(key, value)
		if err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
		if err := db.FsyncWAL(); err != nil {
			t.Fatalf("fsync: %v", err)
		}
		db.ExecutePostDurability(e)
	}

	apply("a", float64(1))
	apply("b", float64(2))

	snap, err := db.CheckpointPayload()
	if err != nil {
		t.Fatalf("checkpoint payload: %v", err)
	}
	if err := db.InstallSnapshot(snap); err != nil {
		t.Fatalf("install snapshot: %v", err)
	}
	if err := db.GC(snap.LSN); err != nil {
		t.Fatalf("gc: %v", err)
	}

	apply("c", float64(3))
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir, 1<<20)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for key, want := range map[string]float64{"a": 1, "b": 2, "c": 3} {
		doc, ok := reopened.Store.Get(key)
		if !ok {
			t.Fatalf("expected %s to survive recovery", key)
		}
		if doc.Value != want {
			t.Fatalf("expected %s=%v, got %v", key, want, doc.Value)
		}
	}
}
