// Package restore materializes file content back out of the catalog and
// pack-store: single files on demand, or a queue of tree-entry requests
// processed sequentially by a long-running worker.
package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/digest"
	"github.com/nlfiedler/zorigami-sub002/internal/packcodec"
	"github.com/nlfiedler/zorigami-sub002/internal/packstore"
)

// PackCache downloads and opens packs at most once per digest, sharing the
// decrypted Reader across every chunk that lives in the same pack — restoring
// a file whose chunks cluster in one pack should not re-download it once per
// chunk.
type PackCache struct {
	mu      sync.Mutex
	workdir string
	store   *packstore.Multi
	cat     *catalog.Catalog
	open    map[string]*packcodec.Reader
}

// NewPackCache returns a cache that downloads packs into workdir as needed.
func NewPackCache(cat *catalog.Catalog, store *packstore.Multi, workdir string) *PackCache {
	return &PackCache{cat: cat, store: store, workdir: workdir, open: make(map[string]*packcodec.Reader)}
}

// Open returns the decrypted Reader for packDigest, downloading and opening
// it on first use and reusing the cached Reader afterward.
func (c *PackCache) Open(ctx context.Context, packDigest catalog.Digest, passphrase string) (*packcodec.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := packDigest.String()
	if r, ok := c.open[key]; ok {
		return r, nil
	}

	pack, err := c.cat.GetPack(packDigest)
	if err != nil {
		return nil, fmt.Errorf("restore: lookup pack %s: %w", packDigest, err)
	}

	if err := os.MkdirAll(c.workdir, 0o755); err != nil {
		return nil, fmt.Errorf("restore: create workdir %s: %w", c.workdir, err)
	}
	tmp := filepath.Join(c.workdir, key+".pack")
	if err := c.store.RetrievePack(ctx, pack.Locations, tmp); err != nil {
		return nil, fmt.Errorf("restore: retrieve pack %s: %w", packDigest, err)
	}
	defer os.Remove(tmp)

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("restore: read downloaded pack %s: %w", tmp, err)
	}
	reader, err := packcodec.Open(passphrase, data)
	if err != nil {
		return nil, fmt.Errorf("restore: open pack %s: %w", packDigest, err)
	}
	c.open[key] = reader
	return reader, nil
}

// RestoreFile reassembles the content of fileDigest into outpath: it looks
// up the File record, then for every chunk in offset order resolves the
// owning Pack (via the Chunk's packfile field) through cache, extracts the
// chunk's plaintext by name, and appends it. It then verifies the
// concatenated bytes hash to fileDigest, returning ErrDigestMismatch if they
// do not; outpath is not removed on that or any other error.
func RestoreFile(ctx context.Context, cat *catalog.Catalog, cache *PackCache, passphrase string, fileDigest catalog.Digest, outpath string) error {
	file, err := cat.GetFile(fileDigest)
	if err != nil {
		return fmt.Errorf("restore: lookup file %s: %w", fileDigest, err)
	}

	if err := os.MkdirAll(filepath.Dir(outpath), 0o755); err != nil {
		return fmt.Errorf("restore: create parent dir for %s: %w", outpath, err)
	}
	out, err := os.OpenFile(outpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("restore: create %s: %w", outpath, err)
	}

	hasher := digest.NewHasher(digest.BLAKE3)
	for _, ref := range file.Chunks {
		select {
		case <-ctx.Done():
			out.Close()
			return ctx.Err()
		default:
		}

		chunk, err := cat.GetChunk(ref.Digest)
		if err != nil {
			out.Close()
			return fmt.Errorf("restore: lookup chunk %s: %w", ref.Digest, err)
		}
		if chunk.Packfile == nil {
			out.Close()
			return fmt.Errorf("restore: chunk %s has no recorded pack", ref.Digest)
		}

		reader, err := cache.Open(ctx, *chunk.Packfile, passphrase)
		if err != nil {
			out.Close()
			return err
		}
		plaintext, err := reader.Open(ref.Digest.String())
		if err != nil {
			out.Close()
			return fmt.Errorf("restore: extract chunk %s from pack %s: %w", ref.Digest, *chunk.Packfile, err)
		}

		if _, err := out.Write(plaintext); err != nil {
			out.Close()
			return fmt.Errorf("restore: write chunk to %s: %w", outpath, err)
		}
		hasher.Write(plaintext)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("restore: close %s: %w", outpath, err)
	}

	if got := hasher.Sum(); !got.Equal(fileDigest) {
		return fmt.Errorf("restore: %s: %w (got %s, want %s)", outpath, ErrDigestMismatch, got, fileDigest)
	}
	return nil
}

// writeSmall writes content (a Tree entry's inlined bytes) directly to
// outpath, for entries small enough that they were never chunked.
func writeSmall(outpath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(outpath), 0o755); err != nil {
		return fmt.Errorf("restore: create parent dir for %s: %w", outpath, err)
	}
	if err := os.WriteFile(outpath, content, 0o644); err != nil {
		return fmt.Errorf("restore: write %s: %w", outpath, err)
	}
	return nil
}
