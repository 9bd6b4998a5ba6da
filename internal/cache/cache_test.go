package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func openTest(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s, err := Open(context.Background(), Config{
		Path:       filepath.Join(t.TempDir(), "cache.db"),
		DefaultTTL: time.Minute,
	}, clock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	s, _ := openTest(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
	if string(got) != "v2" {
		t.Errorf("value = %q, want v2", got)
	}
}

func TestStore_Expiry(t *testing.T) {
	t.Parallel()

	s, clock := openTest(t)
	ctx := context.Background()

	if err := s.Set(ctx, "short", []byte("x"), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "long", []byte("y"), time.Hour); err != nil {
		t.Fatal(err)
	}

	clock.Advance(11 * time.Second)

	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Error("expired entry still readable")
	}

	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, ok, _ := s.Get(ctx, "long"); !ok {
		t.Error("live entry purged")
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s, _ := openTest(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Delete(ctx, "a", "c", "missing")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	n, err = s.Delete(ctx)
	if err != nil || n != 0 {
		t.Errorf("Delete() = %d, %v", n, err)
	}
}

func TestStore_Stat(t *testing.T) {
	t.Parallel()

	s, _ := openTest(t)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_, _, _ = s.Get(ctx, "a")
	_, _, _ = s.Get(ctx, "a")
	_, _, _ = s.Get(ctx, "nope")

	st, err := s.Stat(ctx)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Hits != 2 || st.Misses != 1 || st.Sets != 1 || st.Entries != 1 {
		t.Errorf("stats = %+v", st)
	}
	if r := st.HitRatio(); r < 0.66 || r > 0.67 {
		t.Errorf("HitRatio = %f", r)
	}
}

func TestStats_HitRatioEmpty(t *testing.T) {
	t.Parallel()

	if r := (Stats{}).HitRatio(); r != 0 {
		t.Errorf("HitRatio = %f, want 0", r)
	}
}

func TestOpen_MissingPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStore_Reopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Path: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "persist", []byte("yes"), time.Hour); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(ctx, Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if v, ok, _ := s.Get(ctx, "persist"); !ok || string(v) != "yes" {
		t.Errorf("after reopen Get = %q, %v", v, ok)
	}
}
