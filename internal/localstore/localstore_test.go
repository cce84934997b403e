package localstore

import (
	"context"
	"path/filepath"
	"testing"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	if _, ok, err := s.Get(ctx, "settings"); err != nil || ok {
		t.Fatalf("missing key should report ok=false, got ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "settings", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "settings", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := s.Get(ctx, "settings")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"a":2}` {
		t.Fatalf("expected overwritten value, got %s", got)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "settings" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := s.Delete(ctx, "settings"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "settings"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sniper.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path should fail")
	}
}
