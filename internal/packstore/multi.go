package packstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// Multi composes a non-empty set of Backends and presents the
// store/retrieve/find-missing/prune contract the backup and restore
// pipelines actually drive, on top of whichever concrete backends a
// dataset's stores resolve to.
type Multi struct {
	backends []Backend
}

// NewMulti builds a Multi over backends, which must be non-empty.
func NewMulti(backends ...Backend) (*Multi, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("packstore: multi: at least one backend required")
	}
	return &Multi{backends: backends}, nil
}

// GetBucketName derives the deterministic bucket name packs for computerID
// are uploaded into this month: "<computerID>-<YYYYMM>". Rounding to the
// month keeps any one bucket from growing without bound while still
// letting an operator reason about roughly when a pack was created just
// from its location.
func GetBucketName(computerID string, now time.Time) string {
	return fmt.Sprintf("%s-%s", computerID, now.UTC().Format("200601"))
}

// GetDatabaseBucketName derives the fixed bucket catalog self-backups for
// computerID are uploaded into, distinct from the monthly pack buckets so
// a pack-bucket-oriented lifecycle policy never touches it.
func GetDatabaseBucketName(computerID string) string {
	return fmt.Sprintf("%s-database", computerID)
}

// DatabaseObjectName derives a lexicographically sortable object name for
// a catalog self-backup, so the lexicographically greatest name in the
// bucket is always the most recent backup.
func DatabaseObjectName(now time.Time) string {
	return now.UTC().Format("20060102T150405.000000000Z")
}

// StorePack uploads the file at path as object within bucket to every
// member backend in order. If any upload fails, StorePack aborts and
// returns the error; copies already placed on earlier backends are
// tolerated as orphans that a later prune will clean up, rather than
// unwound.
func (m *Multi) StorePack(ctx context.Context, path, bucket, object string) ([]catalog.PackLocation, error) {
	locs := make([]catalog.PackLocation, 0, len(m.backends))
	for _, b := range m.backends {
		loc, err := b.StorePack(ctx, path, bucket, object)
		if err != nil {
			return locs, fmt.Errorf("packstore: multi: store pack on %s: %w", b.ID(), err)
		}
		locs = append(locs, loc)
		slog.Info("pack stored", "store", b.ID(), "bucket", bucket, "object", object)
	}
	return locs, nil
}

// retrievalOrder returns indices into locs, ordered by preference: local
// stores first, then non-slow remote stores, then slow remote stores, each
// tier preserving the caller's original order. Locations whose store is not
// one of m.backends are left out.
func (m *Multi) retrievalOrder(locs []catalog.PackLocation) []int {
	byID := make(map[string]Backend, len(m.backends))
	for _, b := range m.backends {
		byID[b.ID()] = b
	}

	type candidate struct {
		idx  int
		tier int
	}
	var candidates []candidate
	for i, loc := range locs {
		b, ok := byID[loc.StoreID]
		if !ok {
			continue
		}
		tier := 2
		if b.IsLocal() {
			tier = 0
		} else if !b.IsSlow() {
			tier = 1
		}
		candidates = append(candidates, candidate{idx: i, tier: tier})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].tier < candidates[j].tier
	})
	order := make([]int, len(candidates))
	for i, c := range candidates {
		order[i] = c.idx
	}
	return order
}

// RetrievePack downloads the pack described by one of locs to outpath,
// preferring local backends, then non-slow remotes, then slow remotes,
// advancing to the next location on failure and failing only once every
// candidate has been tried.
func (m *Multi) RetrievePack(ctx context.Context, locs []catalog.PackLocation, outpath string) error {
	return m.retrieve(ctx, locs, outpath, func(b Backend, loc catalog.PackLocation) error {
		return b.RetrievePack(ctx, loc, outpath)
	})
}

func (m *Multi) retrieve(ctx context.Context, locs []catalog.PackLocation, outpath string, call func(Backend, catalog.PackLocation) error) error {
	byID := make(map[string]Backend, len(m.backends))
	for _, b := range m.backends {
		byID[b.ID()] = b
	}

	var lastErr error
	for _, idx := range m.retrievalOrder(locs) {
		loc := locs[idx]
		b := byID[loc.StoreID]
		if err := call(b, loc); err != nil {
			lastErr = err
			slog.Error("pack retrieval failed, trying next location", "store", b.ID(), "error", err)
			continue
		}
		return nil
	}
	if lastErr == nil {
		return fmt.Errorf("packstore: multi: no matching backend among %d locations", len(locs))
	}
	return fmt.Errorf("packstore: multi: all locations exhausted: %w", lastErr)
}

// TestStore round-trips a ListBuckets call against the named backend,
// confirming it is reachable and correctly configured.
func (m *Multi) TestStore(ctx context.Context, storeID string) error {
	for _, b := range m.backends {
		if b.ID() != storeID {
			continue
		}
		if _, err := b.ListBuckets(ctx); err != nil {
			return fmt.Errorf("packstore: multi: test store %s: %w", storeID, err)
		}
		return nil
	}
	return fmt.Errorf("packstore: multi: unknown store %s", storeID)
}

// StoreDatabase uploads a catalog self-backup file to every member backend
// under the deterministic database bucket/object naming for computerID.
func (m *Multi) StoreDatabase(ctx context.Context, computerID, path string) ([]catalog.PackLocation, error) {
	bucket := GetDatabaseBucketName(computerID)
	object := DatabaseObjectName(time.Now())
	locs := make([]catalog.PackLocation, 0, len(m.backends))
	for _, b := range m.backends {
		loc, err := b.StoreDatabase(ctx, path, bucket, object)
		if err != nil {
			return locs, fmt.Errorf("packstore: multi: store database on %s: %w", b.ID(), err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// RetrieveLatestDatabase downloads the lexicographically greatest (most
// recent) database object for computerID from the first backend able to
// list and serve it.
func (m *Multi) RetrieveLatestDatabase(ctx context.Context, computerID, outpath string) error {
	bucket := GetDatabaseBucketName(computerID)
	var lastErr error
	for _, b := range m.backends {
		names, err := b.ListDatabases(ctx, bucket)
		if err != nil {
			lastErr = err
			continue
		}
		if len(names) == 0 {
			continue
		}
		latest := names[0]
		for _, n := range names[1:] {
			if n > latest {
				latest = n
			}
		}
		loc := catalog.PackLocation{StoreID: b.ID(), Bucket: bucket, Object: latest}
		if err := b.RetrieveDatabase(ctx, loc, outpath); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		return fmt.Errorf("packstore: multi: no database backups found for %s", computerID)
	}
	return fmt.Errorf("packstore: multi: retrieve latest database: %w", lastErr)
}

// FindMissing returns the digest of every pack in packs whose object name
// does not appear in storeID's bucket listing.
func (m *Multi) FindMissing(ctx context.Context, storeID, bucket string, packs []catalog.Pack) ([]catalog.Digest, error) {
	var backend Backend
	for _, b := range m.backends {
		if b.ID() == storeID {
			backend = b
			break
		}
	}
	if backend == nil {
		return nil, fmt.Errorf("packstore: multi: unknown store %s", storeID)
	}
	present, err := backend.ListObjects(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("packstore: multi: find missing: %w", err)
	}
	have := make(map[string]bool, len(present))
	for _, name := range present {
		have[name] = true
	}

	var missing []catalog.Digest
	for _, p := range packs {
		object, ok := objectFor(p, storeID)
		if !ok {
			continue
		}
		if !have[object] {
			missing = append(missing, p.Digest)
		}
	}
	return missing, nil
}

// PruneExtra deletes every object in storeID's bucket that is not
// referenced by any pack in packs, then removes the bucket if it ends up
// empty. It returns the number of objects removed.
func (m *Multi) PruneExtra(ctx context.Context, storeID, bucket string, packs []catalog.Pack) (int, error) {
	var backend Backend
	for _, b := range m.backends {
		if b.ID() == storeID {
			backend = b
			break
		}
	}
	if backend == nil {
		return 0, fmt.Errorf("packstore: multi: unknown store %s", storeID)
	}

	referenced := make(map[string]bool)
	for _, p := range packs {
		if object, ok := objectFor(p, storeID); ok {
			referenced[object] = true
		}
	}

	present, err := backend.ListObjects(ctx, bucket)
	if err != nil {
		return 0, fmt.Errorf("packstore: multi: prune extra: %w", err)
	}

	removed := 0
	for _, name := range present {
		if referenced[name] {
			continue
		}
		if err := backend.DeleteObject(ctx, bucket, name); err != nil {
			return removed, fmt.Errorf("packstore: multi: prune extra: delete %s: %w", name, err)
		}
		removed++
	}

	if remaining, err := backend.ListObjects(ctx, bucket); err == nil && len(remaining) == 0 {
		if err := backend.DeleteBucket(ctx, bucket); err != nil {
			slog.Error("prune could not remove now-empty bucket", "bucket", bucket, "error", err)
		}
	}
	return removed, nil
}

func objectFor(p catalog.Pack, storeID string) (string, bool) {
	for _, loc := range p.Locations {
		if loc.StoreID == storeID {
			return loc.Object, true
		}
	}
	return "", false
}
