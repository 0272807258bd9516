package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File stores each entry as <dir>/<key>.json. Writes go through a
// temporary file and rename so a crash never leaves a torn document.
// The default driver; the closest analogue of the storage model this
// data layer was designed around.
type File struct {
	dir string
	mu  sync.Mutex
}

type fileEntry struct {
	Version uint64          `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// NewFile creates dir if needed and returns a file-backed store.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		dir = "./clinicdata"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) read(key string) (fileEntry, error) {
	b, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return fileEntry{}, ErrNotFound
	}
	if err != nil {
		return fileEntry{}, fmt.Errorf("read %s: %w", key, err)
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return fileEntry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, nil
}

func (f *File) Load(_ context.Context, key string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.read(key)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Doc: e.Doc, Version: e.Version}, nil
}

func (f *File) Save(_ context.Context, key string, doc json.RawMessage, expected uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.read(key)
	switch {
	case err == nil:
		if expected != cur.Version {
			return 0, ErrConflict
		}
	case err == ErrNotFound:
		if expected != 0 {
			return 0, ErrConflict
		}
	default:
		return 0, err
	}

	next := expected + 1
	b, err := json.Marshal(fileEntry{Version: next, Doc: doc})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename %s: %w", key, err)
	}
	return next, nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
