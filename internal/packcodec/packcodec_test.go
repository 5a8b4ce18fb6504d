package packcodec

import (
	"bytes"
	"testing"
)

func TestBuildAndReadRoundTrip(t *testing.T) {
	var b Builder
	salt, err := b.Initialize("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if len(salt) != saltSize {
		t.Fatalf("salt length = %d, want %d", len(salt), saltSize)
	}

	payloads := map[string][]byte{
		"blake3-aaa": bytes.Repeat([]byte("a"), 5000),
		"blake3-bbb": []byte("short payload"),
		"blake3-ccc": {},
	}
	order := []string{"blake3-aaa", "blake3-bbb", "blake3-ccc"}
	for _, name := range order {
		if _, err := b.AddChunk(name, payloads[name]); err != nil {
			t.Fatalf("AddChunk(%s): %v", name, err)
		}
	}

	archive, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if len(archive) < 4 || string(archive[:4]) != "ZPK1" {
		t.Fatalf("archive does not start with ZPK1 magic: %v", archive[:4])
	}

	r, err := Open("correct horse battery staple", archive)
	if err != nil {
		t.Fatal(err)
	}
	entries := r.Entries()
	if len(entries) != len(order) {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), len(order))
	}
	for i, name := range order {
		if entries[i].Name != name {
			t.Errorf("entry %d name = %q, want %q", i, entries[i].Name, name)
		}
	}

	for _, name := range order {
		got, err := r.Open(name)
		if err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
		if !bytes.Equal(got, payloads[name]) {
			t.Errorf("Open(%s) = %v, want %v", name, got, payloads[name])
		}
	}
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	var b Builder
	if _, err := b.Initialize("right passphrase"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddChunk("blake3-x", []byte("secret data")); err != nil {
		t.Fatal(err)
	}
	archive, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	r, err := Open("wrong passphrase", archive)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open("blake3-x"); err == nil {
		t.Fatal("expected decryption failure with the wrong passphrase")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	if _, err := Open("whatever", []byte("not a pack archive at all")); err == nil {
		t.Fatal("expected error for non-ZPK1 input")
	}
}

func TestOpenMissingEntry(t *testing.T) {
	var b Builder
	if _, err := b.Initialize("pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddChunk("blake3-only", []byte("data")); err != nil {
		t.Fatal(err)
	}
	archive, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open("pw", archive)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open("blake3-absent"); err == nil {
		t.Fatal("expected error for entry not present in archive")
	}
}

func TestEntryNonceUniquePerIndex(t *testing.T) {
	seen := make(map[string]bool)
	for i := uint32(0); i < 1000; i++ {
		n := entryNonce(i)
		key := string(n)
		if seen[key] {
			t.Fatalf("nonce collision at index %d", i)
		}
		seen[key] = true
	}
}
