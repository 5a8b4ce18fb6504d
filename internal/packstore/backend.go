// Package packstore abstracts over the physical locations packs can be
// replicated to: a plain local directory, an SFTP server, an S3-compatible
// object store, or Google Cloud Storage. Every concrete backend implements
// the same Backend contract so the backup and restore pipelines, and the
// Multi aggregator, never branch on which kind of store they're talking to.
package packstore

import (
	"context"
	"fmt"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// Backend is the uniform contract every pack-store implementation
// satisfies, whether it's a local directory, an SFTP server, or a cloud
// object store.
type Backend interface {
	// ID is the store's catalog identifier, used to build PackLocation
	// values and in error messages.
	ID() string

	// IsLocal hints that retrieval from this backend is cheap, so Multi
	// should prefer it when a pack is available on more than one store.
	IsLocal() bool

	// IsSlow hints that this backend should be deprioritized relative to
	// other remote (non-local) stores during retrieval.
	IsSlow() bool

	// StorePack uploads the file at path as object within bucket,
	// creating the bucket if it does not already exist. Storing an
	// object name that already exists with identical bytes is a no-op.
	StorePack(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error)

	// RetrievePack downloads the pack named by loc to outpath. It fails
	// if the object is absent.
	RetrievePack(ctx context.Context, loc catalog.PackLocation, outpath string) error

	// ListBuckets returns every bucket's name known to this backend.
	ListBuckets(ctx context.Context) ([]string, error)

	// ListObjects returns every object name within bucket.
	ListObjects(ctx context.Context, bucket string) ([]string, error)

	// DeleteObject removes one object from bucket.
	DeleteObject(ctx context.Context, bucket, object string) error

	// DeleteBucket removes bucket, which must already be empty.
	DeleteBucket(ctx context.Context, bucket string) error

	// StoreDatabase uploads a catalog self-backup. Semantically identical
	// to StorePack, but backends may apply distinct retention rules
	// (e.g. a different lifecycle policy on the bucket).
	StoreDatabase(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error)

	// RetrieveDatabase downloads a catalog self-backup to outpath.
	RetrieveDatabase(ctx context.Context, loc catalog.PackLocation, outpath string) error

	// ListDatabases returns every database object name within bucket.
	ListDatabases(ctx context.Context, bucket string) ([]string, error)
}

// ErrObjectNotFound is returned by RetrievePack/RetrieveDatabase when the
// named object does not exist on the backend.
var ErrObjectNotFound = fmt.Errorf("packstore: object not found")

// ErrBucketNotEmpty is returned by DeleteBucket when the bucket still has
// objects in it.
var ErrBucketNotEmpty = fmt.Errorf("packstore: bucket not empty")
