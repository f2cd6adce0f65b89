package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := writeTempFile(t, "table bytes")
	if err := store.Put(ctx, src, "tables/daily_metrics.sqlite"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := store.Get(ctx, "tables/daily_metrics.sqlite", dst); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "table bytes" {
		t.Errorf("round trip content mismatch: %q", data)
	}
}

func TestLocalStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Get(context.Background(), "missing/key", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("got %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStore_Exists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "not/there")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Exists reported true for missing key")
	}

	src := writeTempFile(t, "x")
	if err := store.Put(ctx, src, "there"); err != nil {
		t.Fatal(err)
	}

	ok, err = store.Exists(ctx, "there")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Exists reported false for stored key")
	}
}

func TestLocalStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := writeTempFile(t, "x")
	keys := []string{
		"runs/a/events_cleaned.sqlite",
		"runs/a/daily_metrics.sqlite",
		"runs/b/events_cleaned.sqlite",
	}
	for _, key := range keys {
		if err := store.Put(ctx, src, key); err != nil {
			t.Fatalf("Put(%s) failed: %v", key, err)
		}
	}

	got, err := store.List(ctx, "runs/a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(got)
	want := []string{"runs/a/daily_metrics.sqlite", "runs/a/events_cleaned.sqlite"}
	if len(got) != len(want) {
		t.Fatalf("List returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLocalStore_ListMissingPrefix(t *testing.T) {
	store := newTestStore(t)

	got, err := store.List(context.Background(), "nothing/here")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List of missing prefix returned %v", got)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := writeTempFile(t, "x")
	if err := store.Put(ctx, src, "key"); err == nil {
		t.Error("Put with cancelled context should fail")
	}
}
