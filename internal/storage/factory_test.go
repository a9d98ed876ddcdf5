package storage

import (
	"path/filepath"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close sqlite store: %v", err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestDefaultStoreKindIsSupported(t *testing.T) {
	kind := DefaultStoreKind()
	if kind != "sqlite" {
		t.Fatalf("expected sqlite default, got %q", kind)
	}
	store, err := NewStore(kind, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close default store: %v", err)
	}
}
