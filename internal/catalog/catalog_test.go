package catalog

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/digest"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestChunkInsertIfAbsent(t *testing.T) {
	cat := openTestCatalog(t)
	d := digest.HashBytes(digest.BLAKE3, []byte("hello world"))
	ch := Chunk{Digest: d, Length: 11}

	inserted, err := cat.PutChunk(ch)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("expected first PutChunk to insert")
	}

	inserted, err = cat.PutChunk(Chunk{Digest: d, Length: 999})
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("expected second PutChunk with same digest to be a no-op")
	}

	got, err := cat.GetChunk(d)
	if err != nil {
		t.Fatal(err)
	}
	if got.Length != 11 {
		t.Errorf("Length = %d, want 11 (first write should win)", got.Length)
	}
}

func TestChunkNotFound(t *testing.T) {
	cat := openTestCatalog(t)
	_, err := cat.GetChunk(digest.HashBytes(digest.BLAKE3, []byte("absent")))
	if err == nil {
		t.Fatal("expected error for missing chunk")
	}
}

func TestSetChunkPackfile(t *testing.T) {
	cat := openTestCatalog(t)
	d := digest.HashBytes(digest.BLAKE3, []byte("payload"))
	if _, err := cat.PutChunk(Chunk{Digest: d, Length: 7}); err != nil {
		t.Fatal(err)
	}

	pack := digest.HashBytes(digest.BLAKE3, []byte("pack-bytes"))
	if err := cat.SetChunkPackfile(d, pack); err != nil {
		t.Fatal(err)
	}

	got, err := cat.GetChunk(d)
	if err != nil {
		t.Fatal(err)
	}
	if got.Packfile == nil || !got.Packfile.Equal(pack) {
		t.Errorf("Packfile = %v, want %s", got.Packfile, pack)
	}
}

func TestSnapshotLatestTracking(t *testing.T) {
	cat := openTestCatalog(t)
	tree := digest.HashBytes(digest.BLAKE3, []byte("tree-bytes"))
	snap := Snapshot{
		Digest:    digest.HashBytes(digest.BLAKE3, []byte("snapshot-bytes")),
		Tree:      tree,
		StartTime: time.Now(),
	}
	if err := cat.PutSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	got, err := cat.GetSnapshot(snap.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if !got.InProgress() {
		t.Error("snapshot without EndTime should report InProgress")
	}

	got.EndTime = time.Now()
	got.FileCount = 42
	if err := cat.PutSnapshot(got); err != nil {
		t.Fatal(err)
	}

	if err := cat.SetLatestSnapshot("dataset-1", got.Digest); err != nil {
		t.Fatal(err)
	}
	latest, err := cat.GetLatestSnapshot("dataset-1")
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Equal(got.Digest) {
		t.Errorf("latest = %s, want %s", latest, got.Digest)
	}

	reread, err := cat.GetSnapshot(latest)
	if err != nil {
		t.Fatal(err)
	}
	if reread.InProgress() {
		t.Error("snapshot with EndTime set should not report InProgress")
	}
	if reread.FileCount != 42 {
		t.Errorf("FileCount = %d, want 42", reread.FileCount)
	}
}

func TestPackLocationsAndReassign(t *testing.T) {
	cat := openTestCatalog(t)
	d := digest.HashBytes(digest.BLAKE3, []byte("pack-contents"))
	if _, err := cat.PutPack(Pack{Digest: d}); err != nil {
		t.Fatal(err)
	}

	if err := cat.AddPackLocation(d, PackLocation{StoreID: "store-a", Bucket: "bkt", Object: "obj1"}); err != nil {
		t.Fatal(err)
	}
	if err := cat.AddPackLocation(d, PackLocation{StoreID: "store-b", Bucket: "bkt", Object: "obj1"}); err != nil {
		t.Fatal(err)
	}
	// Adding the same location twice must not duplicate it.
	if err := cat.AddPackLocation(d, PackLocation{StoreID: "store-a", Bucket: "bkt", Object: "obj1"}); err != nil {
		t.Fatal(err)
	}

	p, err := cat.GetPack(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Locations) != 2 {
		t.Fatalf("len(Locations) = %d, want 2", len(p.Locations))
	}

	count, err := cat.ReassignPackStore("store-a", "store-c")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("reassigned count = %d, want 1", count)
	}

	p, err = cat.GetPack(d)
	if err != nil {
		t.Fatal(err)
	}
	var sawC bool
	for _, loc := range p.Locations {
		if loc.StoreID == "store-a" {
			t.Error("store-a location should have been reassigned")
		}
		if loc.StoreID == "store-c" {
			sawC = true
		}
	}
	if !sawC {
		t.Error("expected a location reassigned to store-c")
	}
}

func TestCounts(t *testing.T) {
	cat := openTestCatalog(t)
	if _, err := cat.PutChunk(Chunk{Digest: digest.HashBytes(digest.BLAKE3, []byte("a"))}); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.PutFile(File{Digest: digest.HashBytes(digest.BLAKE3, []byte("b"))}); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.PutTree(Tree{Digest: digest.HashBytes(digest.BLAKE3, []byte("c"))}); err != nil {
		t.Fatal(err)
	}

	rc, err := cat.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if rc.Chunks != 1 || rc.Files != 1 || rc.Trees != 1 {
		t.Errorf("Counts = %+v, want 1 of each", rc)
	}
}

func TestCreateAndRestoreBackup(t *testing.T) {
	cat := openTestCatalog(t)
	d := digest.HashBytes(digest.BLAKE3, []byte("backed-up"))
	if _, err := cat.PutChunk(Chunk{Digest: d, Length: 9}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := cat.CreateBackup(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty backup stream")
	}

	// Close so the backup can be restored into the same path.
	if err := cat.Close(); err != nil {
		t.Fatal(err)
	}
	if err := RestoreFromBackup(nil, cat.Path(), bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(cat.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.GetChunk(d)
	if err != nil {
		t.Fatal(err)
	}
	if got.Length != 9 {
		t.Errorf("Length = %d, want 9", got.Length)
	}
}

func TestRegistrySharesHandle(t *testing.T) {
	reg := NewRegistry()
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := reg.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := reg.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if reg.refCount(path) != 2 {
		t.Fatalf("refCount = %d, want 2", reg.refCount(path))
	}

	d := digest.HashBytes(digest.BLAKE3, []byte("shared"))
	if _, err := a.PutChunk(Chunk{Digest: d, Length: 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetChunk(d); err != nil {
		t.Fatalf("expected second handle to see writes from the first: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if reg.refCount(path) != 1 {
		t.Fatalf("refCount after one Close = %d, want 1", reg.refCount(path))
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if reg.refCount(path) != 0 {
		t.Fatalf("refCount after both Close = %d, want 0", reg.refCount(path))
	}
}

func TestFallbackReader(t *testing.T) {
	primary := openTestCatalog(t)
	secondary := openTestCatalog(t)

	onlyPrimary := digest.HashBytes(digest.BLAKE3, []byte("only-primary"))
	onlySecondary := digest.HashBytes(digest.BLAKE3, []byte("only-secondary"))
	if _, err := primary.PutChunk(Chunk{Digest: onlyPrimary, Length: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := secondary.PutChunk(Chunk{Digest: onlySecondary, Length: 2}); err != nil {
		t.Fatal(err)
	}

	fb := WithFallback(primary, secondary)
	if _, err := fb.GetChunk(onlyPrimary); err != nil {
		t.Errorf("expected fallback to find primary-only chunk: %v", err)
	}
	if _, err := fb.GetChunk(onlySecondary); err != nil {
		t.Errorf("expected fallback to find secondary-only chunk: %v", err)
	}
	if _, err := fb.GetChunk(digest.HashBytes(digest.BLAKE3, []byte("neither"))); err == nil {
		t.Error("expected error when neither catalog has the chunk")
	}
}
