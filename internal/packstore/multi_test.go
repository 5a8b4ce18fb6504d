package packstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

func TestMultiStorePackFanOut(t *testing.T) {
	ctx := context.Background()
	a := newFakeBackend("a", false, false)
	b := newFakeBackend("b", true, false)
	m, err := NewMulti(a, b)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "pack.bin")
	if err := os.WriteFile(src, []byte("pack bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	locs, err := m.StorePack(ctx, src, "bucket-1", "object-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 2 {
		t.Fatalf("len(locs) = %d, want 2", len(locs))
	}
	if _, ok := a.buckets["bucket-1"]["object-1"]; !ok {
		t.Error("expected object stored on backend a")
	}
	if _, ok := b.buckets["bucket-1"]["object-1"]; !ok {
		t.Error("expected object stored on backend b")
	}
}

func TestMultiStorePackAbortsOnFailure(t *testing.T) {
	ctx := context.Background()
	a := newFakeBackend("a", false, false)
	b := newFakeBackend("b", false, false)
	b.fail = true
	m, err := NewMulti(a, b)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "pack.bin")
	if err := os.WriteFile(src, []byte("pack bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = m.StorePack(ctx, src, "bucket-1", "object-1")
	if err == nil {
		t.Fatal("expected error when a member backend fails")
	}
	if _, ok := a.buckets["bucket-1"]["object-1"]; !ok {
		t.Error("expected the earlier successful upload to remain (tolerated orphan)")
	}
}

func TestMultiRetrievePackPrefersLocal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeBackend("remote", false, false)
	local := newFakeBackend("local", true, false)
	m, err := NewMulti(remote, local)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := remote.put("bucket-1", "object-1", []byte("from-remote")); err != nil {
		t.Fatal(err)
	}
	if _, err := local.put("bucket-1", "object-1", []byte("from-local")); err != nil {
		t.Fatal(err)
	}

	locs := []catalog.PackLocation{
		{StoreID: "remote", Bucket: "bucket-1", Object: "object-1"},
		{StoreID: "local", Bucket: "bucket-1", Object: "object-1"},
	}
	out := filepath.Join(t.TempDir(), "out.bin")
	if err := m.RetrievePack(ctx, locs, out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "from-local" {
		t.Errorf("expected retrieval to prefer the local backend, got %q", got)
	}
}

func TestMultiRetrievePackFallsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	brokenLocal := newFakeBackend("local", true, false)
	brokenLocal.fail = true
	workingRemote := newFakeBackend("remote", false, false)
	m, err := NewMulti(brokenLocal, workingRemote)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := workingRemote.put("bucket-1", "object-1", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	locs := []catalog.PackLocation{
		{StoreID: "local", Bucket: "bucket-1", Object: "object-1"},
		{StoreID: "remote", Bucket: "bucket-1", Object: "object-1"},
	}
	out := filepath.Join(t.TempDir(), "out.bin")
	if err := m.RetrievePack(ctx, locs, out); err != nil {
		t.Fatalf("expected fallback to the working remote backend: %v", err)
	}
}

func TestMultiRetrievePackFailsWhenAllExhausted(t *testing.T) {
	ctx := context.Background()
	a := newFakeBackend("a", false, false)
	a.fail = true
	m, err := NewMulti(a)
	if err != nil {
		t.Fatal(err)
	}
	locs := []catalog.PackLocation{{StoreID: "a", Bucket: "bucket-1", Object: "object-1"}}
	out := filepath.Join(t.TempDir(), "out.bin")
	if err := m.RetrievePack(ctx, locs, out); err == nil {
		t.Fatal("expected error when every location fails")
	}
}

func TestMultiFindMissingAndPruneExtra(t *testing.T) {
	ctx := context.Background()
	a := newFakeBackend("a", false, false)
	m, err := NewMulti(a)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.put("bucket-1", "kept-object", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.put("bucket-1", "orphan-object", []byte("y")); err != nil {
		t.Fatal(err)
	}

	packs := []catalog.Pack{
		{
			Digest:    fakeDigest("kept"),
			Locations: []catalog.PackLocation{{StoreID: "a", Bucket: "bucket-1", Object: "kept-object"}},
		},
		{
			Digest:    fakeDigest("missing"),
			Locations: []catalog.PackLocation{{StoreID: "a", Bucket: "bucket-1", Object: "never-uploaded"}},
		},
	}

	missing, err := m.FindMissing(ctx, "a", "bucket-1", packs)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || !missing[0].Equal(fakeDigest("missing")) {
		t.Errorf("FindMissing = %v, want [missing]", missing)
	}

	removed, err := m.PruneExtra(ctx, "a", "bucket-1", packs)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("PruneExtra removed %d, want 1", removed)
	}
	if _, ok := a.buckets["bucket-1"]["orphan-object"]; ok {
		t.Error("orphan object should have been removed")
	}
	if _, ok := a.buckets["bucket-1"]["kept-object"]; !ok {
		t.Error("referenced object should have been kept")
	}
}

func TestMultiStoreAndRetrieveLatestDatabase(t *testing.T) {
	ctx := context.Background()
	a := newFakeBackend("a", true, false)
	m, err := NewMulti(a)
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "db.bin")
	if err := os.WriteFile(src, []byte("catalog-backup-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StoreDatabase(ctx, "computer-1", src); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "restored.bin")
	if err := m.RetrieveLatestDatabase(ctx, "computer-1", out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "catalog-backup-bytes" {
		t.Errorf("restored database = %q, want %q", got, "catalog-backup-bytes")
	}
}

func TestGetBucketNameDerivation(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if got, want := GetBucketName("computer-1", now), "computer-1-202607"; got != want {
		t.Errorf("GetBucketName = %q, want %q", got, want)
	}
	if got, want := GetDatabaseBucketName("computer-1"), "computer-1-database"; got != want {
		t.Errorf("GetDatabaseBucketName = %q, want %q", got, want)
	}
}

func fakeDigest(s string) catalog.Digest {
	return catalog.Digest{Algorithm: 2, Hex: s} // Algorithm 2 = BLAKE3, avoids importing digest just for a test constant
}
