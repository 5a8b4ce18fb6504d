// Package backup drives the pipeline for a single dataset: walk the
// filesystem, chunk and pack changed content, upload packs through a
// pack-store, and commit the resulting catalog records — bounded by
// dataset.PackSize in memory and cancellable at file and pack-upload
// boundaries.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/digest"
	"github.com/nlfiedler/zorigami-sub002/internal/packcodec"
	"github.com/nlfiedler/zorigami-sub002/internal/packstore"
	"github.com/nlfiedler/zorigami-sub002/internal/snapshotter"
)

// Outcome is the result of a Performer run.
type Outcome int

const (
	// Completed means the snapshot finished and the latest pointer was
	// updated.
	Completed Outcome = iota
	// Stopped means cancellation was observed; any pack upload already in
	// flight was allowed to finish, but the latest pointer was not moved.
	Stopped
	// Failed means an unrecoverable error aborted the run before it
	// could complete; the latest pointer was not moved, and the
	// in-progress Snapshot record is left for the next run to resume
	// diffing against.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is published at file and pack boundaries so a supervisor's
// state store can report live counters.
type Progress struct {
	PacksUploaded int
	FilesUploaded int
	BytesUploaded uint64
	CurrentPath   string
}

// ProgressFunc receives a Progress update. It must not block.
type ProgressFunc func(Progress)

// Result carries the outcome of one Performer.Run.
type Result struct {
	Outcome  Outcome
	Snapshot catalog.Snapshot
	Err      error
}

// Performer drives one dataset's backup pipeline end to end.
type Performer struct {
	Catalog    *catalog.Catalog
	Store      *packstore.Multi
	ComputerID string
	Passphrase string
	OnProgress ProgressFunc
}

// Run executes one backup pass over dataset, returning once the walk
// completes, is cancelled via ctx, or fails.
func (p *Performer) Run(ctx context.Context, dataset catalog.Dataset) Result {
	// Read the previous latest pointer before beginSnapshot repoints it at
	// the new in-progress snapshot; it names this run's parent.
	prevLatest, prevErr := p.Catalog.GetLatestSnapshot(dataset.ID)
	snap, resuming, err := p.beginSnapshot(dataset)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	slog.Info("backup started", "dataset", dataset.ID, "resuming", resuming)

	var prior snapshotter.PriorTree
	if resuming && !snap.Tree.IsZero() {
		loaded, err := snapshotter.LoadCatalogPriorTree(p.Catalog, snap.Tree)
		if err != nil {
			slog.Error("could not load prior tree, rehashing everything", "error", err)
		} else {
			prior = loaded
		}
	} else if !resuming {
		if latest, err := prevLatest, prevErr; err == nil {
			if prevSnap, err := p.Catalog.GetSnapshot(latest); err == nil && !prevSnap.Tree.IsZero() {
				if loaded, err := snapshotter.LoadCatalogPriorTree(p.Catalog, prevSnap.Tree); err == nil {
					prior = loaded
				}
				parent := prevSnap.Digest
				snap.Parent = &parent
			}
		}
	}

	coll := &packCollector{
		performer: p,
		dataset:   dataset,
		pack:      new(packcodec.Builder),
	}
	if err := coll.openPack(); err != nil {
		return Result{Outcome: Failed, Snapshot: snap, Err: err}
	}

	walker, err := snapshotter.New(dataset.Basepath, snapshotter.Options{
		Excludes: dataset.Excludes,
		Prior:    prior,
		Sink:     coll,
	})
	if err != nil {
		return Result{Outcome: Failed, Snapshot: snap, Err: err}
	}

	root, trees, files, walkErr := walker.Walk(ctx)

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			if err := coll.flushIfNonEmpty(); err != nil {
				slog.Error("failed to flush in-flight pack on cancellation", "error", err)
				return Result{Outcome: Failed, Snapshot: snap, Err: err}
			}
			slog.Info("backup stopped", "dataset", dataset.ID)
			return Result{Outcome: Stopped, Snapshot: snap}
		}
		return Result{Outcome: Failed, Snapshot: snap, Err: fmt.Errorf("backup: walk: %w", walkErr)}
	}

	if err := coll.flushIfNonEmpty(); err != nil {
		return Result{Outcome: Failed, Snapshot: snap, Err: err}
	}

	for _, tree := range trees {
		if _, err := p.Catalog.PutTree(tree); err != nil {
			return Result{Outcome: Failed, Snapshot: snap, Err: fmt.Errorf("backup: insert tree: %w", err)}
		}
	}
	for _, f := range files {
		if _, err := p.Catalog.PutFile(f); err != nil {
			return Result{Outcome: Failed, Snapshot: snap, Err: fmt.Errorf("backup: insert file: %w", err)}
		}
	}

	snap.Tree = root
	snap.EndTime = time.Now().UTC()
	snap.FileCount = uint64(walker.FileCount)
	snap.Digest = snapshotDigest(snap)
	if err := p.Catalog.PutSnapshot(snap); err != nil {
		return Result{Outcome: Failed, Snapshot: snap, Err: fmt.Errorf("backup: finalize snapshot: %w", err)}
	}
	if err := p.Catalog.SetLatestSnapshot(dataset.ID, snap.Digest); err != nil {
		return Result{Outcome: Failed, Snapshot: snap, Err: fmt.Errorf("backup: update latest pointer: %w", err)}
	}

	slog.Info("backup completed", "dataset", dataset.ID, "snapshot", snap.Digest, "files", snap.FileCount)
	return Result{Outcome: Completed, Snapshot: snap}
}

// beginSnapshot either resumes an interrupted in-progress Snapshot (no
// EndTime recorded for the dataset's latest pointer) or creates a fresh
// one, recording it immediately so a crash mid-walk leaves a resumable
// trace.
func (p *Performer) beginSnapshot(dataset catalog.Dataset) (catalog.Snapshot, bool, error) {
	if latest, err := p.Catalog.GetLatestSnapshot(dataset.ID); err == nil {
		if prev, err := p.Catalog.GetSnapshot(latest); err == nil && prev.InProgress() {
			return prev, true, nil
		}
	}

	snap := catalog.Snapshot{
		StartTime: time.Now().UTC(),
	}
	snap.Digest = snapshotDigest(snap)
	if err := p.Catalog.PutSnapshot(snap); err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("backup: create in-progress snapshot: %w", err)
	}
	if err := p.Catalog.SetLatestSnapshot(dataset.ID, snap.Digest); err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("backup: set in-progress latest pointer: %w", err)
	}
	return snap, false, nil
}

// snapshotDigest derives a Snapshot's identity from (parent, tree,
// start_time, file_count), matching the data model's definition. Since the
// in-progress record is written before tree/file_count are known, the
// digest necessarily changes once finalized — callers must re-derive and
// rewrite it at completion, which Run does.
func snapshotDigest(s catalog.Snapshot) catalog.Digest {
	var parent string
	if s.Parent != nil {
		parent = s.Parent.String()
	}
	material := fmt.Sprintf("%s|%s|%d|%d", parent, s.Tree, s.StartTime.UnixNano(), s.FileCount)
	return digest.HashBytes(digest.BLAKE3, []byte(material))
}

// packCollector implements snapshotter.ChunkSink, accumulating chunk
// bytes into a pack builder until dataset.PackSize is reached, then
// finalizing, uploading, and committing catalog records for the closed
// pack before opening the next one.
type packCollector struct {
	performer *Performer
	dataset   catalog.Dataset

	pack     *packcodec.Builder
	salt     []byte
	pending  []catalog.Chunk
	rawBytes uint64

	PacksUploaded int
	FilesUploaded int
	BytesUploaded uint64
}

func (c *packCollector) openPack() error {
	c.pack = new(packcodec.Builder)
	salt, err := c.pack.Initialize(c.performer.Passphrase)
	if err != nil {
		return fmt.Errorf("backup: initialize pack: %w", err)
	}
	c.salt = salt
	c.pending = nil
	c.rawBytes = 0
	return nil
}

// Chunk implements snapshotter.ChunkSink.
func (c *packCollector) Chunk(_ digest.Digest, ch catalog.Chunk, data []byte) error {
	if existing, err := c.performer.Catalog.GetChunk(ch.Digest); err == nil {
		_ = existing
		return nil // already uploaded in a prior run; nothing to do
	}

	n, err := c.pack.AddChunk(ch.Digest.String(), data)
	if err != nil {
		return fmt.Errorf("backup: add chunk to pack: %w", err)
	}
	c.pending = append(c.pending, ch)
	c.rawBytes += uint64(n)

	if c.performer.OnProgress != nil {
		c.performer.OnProgress(Progress{
			PacksUploaded: c.PacksUploaded,
			FilesUploaded: c.FilesUploaded,
			BytesUploaded: c.BytesUploaded,
			CurrentPath:   ch.Filepath,
		})
	}

	if c.dataset.PackSize > 0 && c.rawBytes >= c.dataset.PackSize {
		return c.flush()
	}
	return nil
}

func (c *packCollector) flushIfNonEmpty() error {
	if len(c.pending) == 0 {
		return nil
	}
	return c.flush()
}

// flush finalizes the current pack, uploads it to every configured store,
// records the Pack, and marks every pending Chunk as packed — in that
// order, so a crash partway through never leaves a Chunk pointing at a
// pack that was never actually uploaded.
func (c *packCollector) flush() error {
	archive, err := c.pack.Finalize()
	if err != nil {
		return fmt.Errorf("backup: finalize pack: %w", err)
	}

	packDigest := digest.HashBytes(digest.BLAKE3, archive)

	tmpDir := c.dataset.WorkspaceOrDefault()
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("backup: create workspace %s: %w", tmpDir, err)
	}
	tmpFile := filepath.Join(tmpDir, "pack-"+ulid.Make().String()+".tmp")
	if err := os.WriteFile(tmpFile, archive, 0o600); err != nil {
		return fmt.Errorf("backup: write pack to workspace: %w", err)
	}
	defer os.Remove(tmpFile)

	bucket := packstore.GetBucketName(c.performer.ComputerID, time.Now())
	object := packDigest.String()
	locs, err := c.performer.Store.StorePack(context.Background(), tmpFile, bucket, object)
	if err != nil {
		return fmt.Errorf("backup: upload pack: %w", err)
	}

	if _, err := c.performer.Catalog.PutPack(catalog.Pack{
		Digest:     packDigest,
		Locations:  locs,
		CryptoSalt: c.salt,
	}); err != nil {
		return fmt.Errorf("backup: insert pack record: %w", err)
	}

	for _, ch := range c.pending {
		if _, err := c.performer.Catalog.PutChunk(ch); err != nil {
			return fmt.Errorf("backup: insert chunk record: %w", err)
		}
		if err := c.performer.Catalog.SetChunkPackfile(ch.Digest, packDigest); err != nil {
			return fmt.Errorf("backup: set chunk packfile: %w", err)
		}
	}

	c.PacksUploaded++
	c.BytesUploaded += uint64(len(archive))
	if c.performer.OnProgress != nil {
		c.performer.OnProgress(Progress{
			PacksUploaded: c.PacksUploaded,
			FilesUploaded: c.FilesUploaded,
			BytesUploaded: c.BytesUploaded,
		})
	}

	return c.openPack()
}
