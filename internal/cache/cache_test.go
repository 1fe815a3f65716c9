package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNullStoreAlwaysMisses(t *testing.T) {
	store := NullStore{}
	store.Set(context.Background(), "key", []byte("value"), time.Minute)
	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("null store must never hit")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(func() time.Time { return now })

	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("expected miss before set")
	}
	store.Set(context.Background(), "key", []byte("value"), time.Minute)
	got, ok := store.Get(context.Background(), "key")
	if !ok || !bytes.Equal(got, []byte("value")) {
		t.Fatalf("expected stored value, got %q (hit=%v)", got, ok)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(func() time.Time { return now })

	store.Set(context.Background(), "key", []byte("value"), 30*time.Second)
	now = now.Add(31 * time.Second)
	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestMemoryStoreDiscardsNonPositiveTTL(t *testing.T) {
	store := NewMemoryStore(nil)
	store.Set(context.Background(), "key", []byte("value"), 0)
	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("expected zero-ttl write to be discarded")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	store, err := NewFileStore(dir, func() time.Time { return now })
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	key := "/v1/metrics?period=day"
	store.Set(context.Background(), key, []byte(`{"start":1}`), time.Minute)
	got, ok := store.Get(context.Background(), key)
	if !ok || !bytes.Equal(got, []byte(`{"start":1}`)) {
		t.Fatalf("expected stored value, got %q (hit=%v)", got, ok)
	}
	if _, ok := store.Get(context.Background(), "/v1/metrics?period=week"); ok {
		t.Fatal("distinct keys must not collide")
	}
}

func TestFileStoreExpiresAndRemoves(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)
	store, err := NewFileStore(dir, func() time.Time { return now })
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	store.Set(context.Background(), "key", []byte("value"), 30*time.Second)
	now = now.Add(31 * time.Second)
	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("expected entry to expire")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read cache dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected expired entry removal, found %d files", len(entries))
	}
}

func TestFileStoreIgnoresCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if err := os.WriteFile(store.path("key"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, ok := store.Get(context.Background(), "key"); ok {
		t.Fatal("expected corrupt entry to miss")
	}
}

func TestNewFileStoreRejectsUnusableDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileStore(filepath.Join(dir, "missing"), nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write probe file: %v", err)
	}
	if _, err := NewFileStore(file, nil); err == nil {
		t.Fatal("expected error for non-directory path")
	}
}
