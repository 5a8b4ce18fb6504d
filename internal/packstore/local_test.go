package packstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

func TestLocalStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal("store-local", filepath.Join(dir, "packs"))
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "source.bin")
	content := []byte("pack contents go here")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	loc, err := l.StorePack(ctx, src, "bucket-1", "object-1")
	if err != nil {
		t.Fatal(err)
	}
	if loc.StoreID != "store-local" || loc.Bucket != "bucket-1" || loc.Object != "object-1" {
		t.Errorf("unexpected location: %+v", loc)
	}

	out := filepath.Join(dir, "restored.bin")
	if err := l.RetrievePack(ctx, loc, out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("retrieved content = %q, want %q", got, content)
	}

	buckets, err := l.ListBuckets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 1 || buckets[0] != "bucket-1" {
		t.Errorf("ListBuckets = %v, want [bucket-1]", buckets)
	}

	objects, err := l.ListObjects(ctx, "bucket-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 || objects[0] != "object-1" {
		t.Errorf("ListObjects = %v, want [object-1]", objects)
	}
}

func TestLocalRetrieveMissingFails(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal("store-local", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	loc := catalog.PackLocation{StoreID: l.ID(), Bucket: "no-such-bucket", Object: "no-such-object"}
	err = l.RetrievePack(ctx, loc, filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error retrieving a missing object")
	}
}

func TestLocalDeleteBucketRequiresEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal("store-local", filepath.Join(dir, "packs"))
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.StorePack(ctx, src, "bucket-1", "object-1"); err != nil {
		t.Fatal(err)
	}

	if err := l.DeleteBucket(ctx, "bucket-1"); err == nil {
		t.Fatal("expected error deleting non-empty bucket")
	}
	if err := l.DeleteObject(ctx, "bucket-1", "object-1"); err != nil {
		t.Fatal(err)
	}
	if err := l.DeleteBucket(ctx, "bucket-1"); err != nil {
		t.Fatalf("expected empty bucket to delete cleanly: %v", err)
	}
}

func TestLocalStoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := NewLocal("store-local", filepath.Join(dir, "packs"))
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(src, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.StorePack(ctx, src, "bucket-1", "object-1"); err != nil {
		t.Fatal(err)
	}

	// A second store under the same object name, with different source
	// bytes, must not overwrite the first (content-addressed names are
	// assumed to already match).
	if err := os.WriteFile(src, []byte("second-should-be-ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.StorePack(ctx, src, "bucket-1", "object-1"); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "check.bin")
	loc := catalog.PackLocation{StoreID: l.ID(), Bucket: "bucket-1", Object: "object-1"}
	if err := l.RetrievePack(ctx, loc, out); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first" {
		t.Errorf("object was overwritten: got %q, want %q", got, "first")
	}
}
