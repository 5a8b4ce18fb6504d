// Package snapshotter walks a dataset's basepath in deterministic order,
// classifying each entry as a file, symlink, directory, or inlined-small
// blob, and emits the Tree/File/Chunk records the backup performer then
// commits to the catalog. It reuses a prior tree's file digests when a
// file's (path, size, mtime, ctime) signature is unchanged, avoiding a
// rehash of unmodified content.
package snapshotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/cdc"
	"github.com/nlfiedler/zorigami-sub002/internal/digest"
)

// errSkipEntry marks a per-entry filesystem error (unreadable directory,
// unstatable entry, broken symlink, unreadable file) that has already been
// logged at its origin and should simply drop that entry from the tree
// rather than abort the whole walk. It never escapes this package.
var errSkipEntry = errors.New("snapshotter: entry skipped")

// InlineThreshold is the file size, in bytes, below which a file's content
// is stored inline inside its TreeEntry instead of being chunked into a
// separate File record.
const InlineThreshold = 4096

// ChunkBounds are the content-defined chunking bounds used for every file
// the walker hashes. These mirror the avg=16384 case from the chunking
// contract. New always builds the walker's chunker from these bounds;
// Options has no field for supplying a different chunker.
var ChunkBounds = struct{ Min, Avg, Max uint32 }{Min: 4096, Avg: 16384, Max: 65536}

// ChunkSink receives chunk bytes as the walker reads files, so the backup
// performer can pack and upload them without the walker needing to know
// anything about packs or stores.
type ChunkSink interface {
	// Chunk is called once per content-defined chunk as a file is read.
	// fileDigest identifies which file the chunk belongs to, purely for
	// logging/progress purposes; chunk.Filepath is already set.
	Chunk(fileDigest digest.Digest, chunk catalog.Chunk, data []byte) error
}

// PriorTree resolves a path to the File digest a previous snapshot
// recorded there, used to skip rehashing unchanged files.
type PriorTree interface {
	// Lookup returns the signature a previous walk observed at relpath,
	// and whether one was found at all.
	Lookup(relpath string) (Signature, bool)
}

// Signature is the (size, mtime, ctime) triple the change detector
// compares against to decide whether a file's content may have changed
// without opening it.
type Signature struct {
	Size  int64
	Mtime time.Time
	Ctime time.Time
	File  digest.Digest
}

// Options configures a Walker.
type Options struct {
	// Excludes are shell glob patterns (as matched by path/filepath.Match
	// against the entry's base name) applied at every level of the walk.
	Excludes []string
	// Prior supplies file signatures from the previous completed
	// snapshot. May be nil for a first-ever backup of a dataset.
	Prior PriorTree
	// Sink receives every chunk read from a changed file.
	Sink ChunkSink
}

// Walker performs one deterministic traversal of a dataset's basepath.
type Walker struct {
	basepath string
	opts     Options
	chunker  *cdc.Chunker

	// FileCount accumulates the number of file entries produced, including
	// inlined-small files, across the whole walk.
	FileCount int
}

// New returns a Walker rooted at basepath.
func New(basepath string, opts Options) (*Walker, error) {
	chunker, err := cdc.New(ChunkBounds.Min, ChunkBounds.Avg, ChunkBounds.Max)
	if err != nil {
		return nil, fmt.Errorf("snapshotter: build chunker: %w", err)
	}
	return &Walker{basepath: basepath, opts: opts, chunker: chunker}, nil
}

// shouldExclude reports whether name matches any of the walker's exclude
// patterns.
func (w *Walker) shouldExclude(name string) bool {
	for _, pattern := range w.opts.Excludes {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Walk traverses the dataset and returns the digest of the root Tree,
// together with every Tree and File record produced along the way so the
// caller can insert them into the catalog with insert-if-absent semantics.
// ctx is checked between directory entries so a backup can be cancelled
// mid-walk.
func (w *Walker) Walk(ctx context.Context) (root catalog.Digest, trees []catalog.Tree, files []catalog.File, err error) {
	root, err = w.walkDir(ctx, w.basepath, "", true, &trees, &files)
	return root, trees, files, err
}

// walkDir reads one directory and builds its Tree record. A ReadDir failure
// is fatal only at the basepath (isRoot); anywhere deeper it is logged and
// the unreadable directory is left out of its parent's tree so the rest of
// the snapshot can proceed.
func (w *Walker) walkDir(ctx context.Context, abspath, relpath string, isRoot bool, trees *[]catalog.Tree, files *[]catalog.File) (catalog.Digest, error) {
	entries, err := os.ReadDir(abspath)
	if err != nil {
		if isRoot {
			return catalog.Digest{}, fmt.Errorf("snapshotter: readdir %s: %w", abspath, err)
		}
		slog.Warn("snapshotter: skipping directory", "path", abspath, "error", err)
		return catalog.Digest{}, errSkipEntry
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var treeEntries []catalog.TreeEntry
	for _, de := range entries {
		select {
		case <-ctx.Done():
			return catalog.Digest{}, ctx.Err()
		default:
		}

		name := de.Name()
		if w.shouldExclude(name) {
			continue
		}
		childAbs := filepath.Join(abspath, name)
		childRel := name
		if relpath != "" {
			childRel = relpath + "/" + name
		}

		info, err := de.Info()
		if err != nil {
			slog.Warn("snapshotter: skipping entry, stat failed", "path", childAbs, "error", err)
			continue
		}

		entry, err := w.buildEntry(ctx, childAbs, childRel, name, info, trees, files)
		if err != nil {
			if errors.Is(err, errSkipEntry) {
				continue
			}
			return catalog.Digest{}, err
		}
		treeEntries = append(treeEntries, entry)
	}

	tree := catalog.Tree{Entries: treeEntries}
	data, err := serializeTreeEntries(treeEntries)
	if err != nil {
		return catalog.Digest{}, err
	}
	tree.Digest = digest.HashBytes(digest.BLAKE3, data)
	*trees = append(*trees, tree)
	return tree.Digest, nil
}

func (w *Walker) buildEntry(ctx context.Context, abspath, relpath, name string, info os.FileInfo, trees *[]catalog.Tree, files *[]catalog.File) (catalog.TreeEntry, error) {
	entry := catalog.TreeEntry{
		Name:  name,
		Mode:  uint32(info.Mode().Perm()),
		Ctime: ctimeOf(info),
		Mtime: info.ModTime(),
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(abspath)
		if err != nil {
			slog.Warn("snapshotter: skipping entry, readlink failed", "path", abspath, "error", err)
			return catalog.TreeEntry{}, errSkipEntry
		}
		entry.Kind = catalog.KindLink
		entry.Reference = catalog.TreeReference{Kind: catalog.KindLink, LinkTarget: target}

	case info.IsDir():
		childDigest, err := w.walkDir(ctx, abspath, relpath, false, trees, files)
		if err != nil {
			return catalog.TreeEntry{}, err
		}
		entry.Kind = catalog.KindTree
		entry.Reference = catalog.TreeReference{Kind: catalog.KindTree, TreeDigest: childDigest}

	case info.Size() < InlineThreshold:
		data, err := os.ReadFile(abspath)
		if err != nil {
			slog.Warn("snapshotter: skipping entry, read failed", "path", abspath, "error", err)
			return catalog.TreeEntry{}, errSkipEntry
		}
		entry.Kind = catalog.KindSmall
		entry.Reference = catalog.TreeReference{Kind: catalog.KindSmall, SmallBytes: data}
		w.FileCount++

	default:
		fileDigest, err := w.hashOrReuse(relpath, abspath, info, files)
		if err != nil {
			return catalog.TreeEntry{}, err
		}
		entry.Kind = catalog.KindFile
		entry.Reference = catalog.TreeReference{Kind: catalog.KindFile, FileDigest: fileDigest}
		w.FileCount++
	}

	return entry, nil
}

// hashOrReuse reuses a prior run's digest when the file's signature is
// unchanged, or chunks and hashes the file from scratch otherwise.
func (w *Walker) hashOrReuse(relpath, abspath string, info os.FileInfo, files *[]catalog.File) (digest.Digest, error) {
	if w.opts.Prior != nil {
		if sig, ok := w.opts.Prior.Lookup(relpath); ok {
			if sig.Size == info.Size() && sig.Mtime.Equal(info.ModTime()) && sig.Ctime.Equal(ctimeOf(info)) {
				return sig.File, nil
			}
		}
	}

	data, err := os.ReadFile(abspath)
	if err != nil {
		slog.Warn("snapshotter: skipping entry, read failed", "path", abspath, "error", err)
		return digest.Digest{}, errSkipEntry
	}

	boundaries := w.chunker.Split(data)
	refs := make([]catalog.FileChunkRef, 0, len(boundaries))
	for _, b := range boundaries {
		piece := data[b.Offset : b.Offset+b.Length]
		chunkDigest := digest.HashBytes(digest.BLAKE3, piece)
		refs = append(refs, catalog.FileChunkRef{Offset: b.Offset, Digest: chunkDigest})

		if w.opts.Sink != nil {
			ch := catalog.Chunk{Digest: chunkDigest, Length: b.Length, Filepath: relpath}
			if err := w.opts.Sink.Chunk(chunkDigest, ch, piece); err != nil {
				return digest.Digest{}, fmt.Errorf("snapshotter: chunk sink: %w", err)
			}
		}
	}

	fileDigest := digest.HashBytes(digest.BLAKE3, data)
	*files = append(*files, catalog.File{Digest: fileDigest, Length: uint64(len(data)), Chunks: refs})
	return fileDigest, nil
}
