package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type fileEntry struct {
	ExpiresAt int64  `json:"expires_at"`
	Value     []byte `json:"value"`
}

// FileStore persists entries as one file per key under a directory, with the
// expiry recorded inside the file and checked on read.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore verifies dir exists and is writable and returns a store
// rooted there. Callers that receive an error are expected to degrade to
// NullStore.
func NewFileStore(dir string, now func() time.Time) (*FileStore, error) {
	if now == nil {
		now = time.Now
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat cache dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache path %s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, "probe-*")
	if err != nil {
		return nil, fmt.Errorf("cache dir not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return &FileStore{dir: dir, now: now}, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool) {
	path := f.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry fileEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		os.Remove(path)
		return nil, false
	}
	if entry.ExpiresAt <= f.now().Unix() {
		os.Remove(path)
		return nil, false
	}
	return entry.Value, true
}

func (f *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(fileEntry{
		ExpiresAt: f.now().Add(ttl).Unix(),
		Value:     value,
	})
	if err != nil {
		return
	}
	// Write-then-rename so concurrent readers never see a partial entry.
	tmp, err := os.CreateTemp(f.dir, "entry-*")
	if err != nil {
		return
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
	}
}

func (f *FileStore) Name() string { return "filesystem" }

func (f *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+".cache")
}
