package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "users"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty store: want ErrNotFound, got %v", err)
	}

	// Create requires expected version 0.
	if _, err := s.Save(ctx, "users", json.RawMessage(`[]`), 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("create with nonzero expected version: want ErrConflict, got %v", err)
	}
	v, err := s.Save(ctx, "users", json.RawMessage(`[{"id":"1"}]`), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v != 1 {
		t.Fatalf("create version = %d, want 1", v)
	}

	e, err := s.Load(ctx, "users")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Version != 1 {
		t.Fatalf("loaded version = %d, want 1", e.Version)
	}
	var got []map[string]string
	if err := json.Unmarshal(e.Doc, &got); err != nil {
		t.Fatalf("unmarshal doc: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "1" {
		t.Fatalf("doc round-trip mismatch: %s", e.Doc)
	}

	// Stale writes are rejected, matching writes advance the version.
	if _, err := s.Save(ctx, "users", json.RawMessage(`[]`), 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale save: want ErrConflict, got %v", err)
	}
	v, err = s.Save(ctx, "users", json.RawMessage(`[]`), 1)
	if err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if v != 2 {
		t.Fatalf("save version = %d, want 2", v)
	}

	// Entries are independent.
	if _, err := s.Save(ctx, "dentalData", json.RawMessage(`{"patients":[],"incidents":[]}`), 0); err != nil {
		t.Fatalf("create dentalData: %v", err)
	}
	e, err = s.Load(ctx, "dentalData")
	if err != nil || e.Version != 1 {
		t.Fatalf("dentalData version = %d, err %v, want 1, nil", e.Version, err)
	}

	// Delete is idempotent.
	if err := s.Delete(ctx, "currentUser"); err != nil {
		t.Fatalf("delete absent entry: %v", err)
	}
	if err := s.Delete(ctx, "users"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "users"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load after delete: want ErrNotFound, got %v", err)
	}
	// Deleted entries can be re-created from version 0.
	if _, err := s.Save(ctx, "users", json.RawMessage(`[]`), 0); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runStoreContract(t, s)
}

func TestFileStoreContract(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if _, err := s.Save(ctx, "dentalData", json.RawMessage(`{"patients":[],"incidents":[]}`), 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	reopened, err := NewFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	e, err := reopened.Load(ctx, "dentalData")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if e.Version != 1 {
		t.Fatalf("version after reopen = %d, want 1", e.Version)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for i := uint64(0); i < 5; i++ {
		if _, err := s.Save(ctx, "users", json.RawMessage(`[]`), i); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := mem.(*Memory); !ok {
		t.Fatalf("driver memory: got %T", mem)
	}

	f, err := Open(ctx, Options{Driver: DriverFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := f.(*File); !ok {
		t.Fatalf("driver file: got %T", f)
	}

	if _, err := Open(ctx, Options{Driver: "redis"}); err == nil {
		t.Fatal("unknown driver: expected error")
	}
}
