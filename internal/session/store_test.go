package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aceinterview/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "resume_token"); err != nil || ok {
		t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "resume_token", "tok-1"); err != nil {
		t.Fatalf("Unexpected set error: %v", err)
	}
	if err := store.Set(ctx, "resume_token", "tok-2"); err != nil {
		t.Fatalf("Unexpected set error: %v", err)
	}
	if err := store.Set(ctx, "answers", `{"q":"a"}`); err != nil {
		t.Fatalf("Unexpected set error: %v", err)
	}

	v, ok, err := store.Get(ctx, "resume_token")
	if err != nil || !ok || v != "tok-2" {
		t.Errorf("Expected last write to win, got %q ok=%v err=%v", v, ok, err)
	}

	if err := store.Delete(ctx, "resume_token", "never-set"); err != nil {
		t.Fatalf("Unexpected delete error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "resume_token"); ok {
		t.Error("Expected key to be deleted")
	}
	if v, ok, _ := store.Get(ctx, "answers"); !ok || v != `{"q":"a"}` {
		t.Errorf("Expected other keys untouched, got %q", v)
	}
}

func newMiniredisStore(t *testing.T, prefix string, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, prefix, ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	testStoreContract(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json")))
}

func TestRedisStore(t *testing.T) {
	store, _ := newMiniredisStore(t, "aceinterview:session:", 0)
	testStoreContract(t, store)
}

func TestNamespacedStore(t *testing.T) {
	backing := NewMemoryStore()
	testStoreContract(t, Namespaced(backing, "abc:"))

	ctx := context.Background()
	a := Namespaced(backing, "a:")
	b := Namespaced(backing, "b:")
	_ = a.Set(ctx, "questions", "A")
	_ = b.Set(ctx, "questions", "B")

	if v, _, _ := a.Get(ctx, "questions"); v != "A" {
		t.Errorf("Expected namespace a to read A, got %q", v)
	}
	if v, ok, _ := backing.Get(ctx, "b:questions"); !ok || v != "B" {
		t.Errorf("Expected prefixed key in backing store, got %q", v)
	}
}

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	store := NopStore{}
	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("Expected nop store to remember nothing")
	}
}

func TestRedisStorePrefixAndTTL(t *testing.T) {
	store, mr := newMiniredisStore(t, "aceinterview:session:", time.Hour)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Unexpected ping error: %v", err)
	}
	if err := store.Set(ctx, "resume_token", "tok"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := mr.Get("aceinterview:session:resume_token")
	if err != nil || got != "tok" {
		t.Errorf("Expected prefixed key in redis, got %q err=%v", got, err)
	}
	if ttl := mr.TTL("aceinterview:session:resume_token"); ttl != time.Hour {
		t.Errorf("Expected 1h ttl, got %s", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.Get(ctx, "resume_token"); ok {
		t.Error("Expected key to expire")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newMiniredisStore(t, "", 0)
	mr.Close()

	if _, _, err := store.Get(context.Background(), "questions"); err == nil {
		t.Error("Expected error from a stopped redis")
	}
}

func TestFileStoreRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	store := NewFileStore(path)
	if _, _, err := store.Get(context.Background(), "questions"); err == nil {
		t.Error("Expected decode error for a corrupt file")
	}
	if err := store.Set(context.Background(), "questions", "[]"); err != nil {
		t.Fatalf("Expected write to replace the corrupt file: %v", err)
	}
	if v, ok, err := store.Get(context.Background(), "questions"); err != nil || !ok || v != "[]" {
		t.Errorf("Expected recovered value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		store       string
		expectError bool
	}{
		{store: "none"},
		{store: "memory"},
		{store: "file"},
		{store: "redis"},
		{store: "etcd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			store, err := NewStore(config.SessionConfig{
				Store:    tt.store,
				FilePath: filepath.Join(t.TempDir(), "session.json"),
				Redis:    config.RedisConfig{Address: "localhost:0"},
			})
			if tt.expectError {
				if err == nil {
					t.Error("Expected error for unknown store")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			_ = store.Close()
		})
	}
}

func TestFileWatcherSeesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	changed := make(chan struct{}, 4)
	watcher := NewFileWatcher(path, 20*time.Millisecond, func() { changed <- struct{}{} }, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	if err := watcher.Start(); err == nil {
		t.Error("Expected error starting a running watcher")
	}

	if err := store.Set(context.Background(), "evaluations", `{}`); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("Expected a change notification")
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Unexpected stop error: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Expected second stop to be a no-op, got %v", err)
	}
}
