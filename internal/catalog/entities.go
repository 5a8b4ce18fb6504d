// Package catalog implements the per-machine embedded key-value store that
// records every chunk, file, tree, snapshot, pack, and store configuration
// known to this backup system. It is backed by go.etcd.io/bbolt, a
// single-file embedded KV engine chosen because its cursor API gives cheap
// prefix scans and its Tx.WriteTo primitive is a ready-made hot backup
// mechanism for the catalog self-backup protocol.
package catalog

import (
	"time"

	"github.com/nlfiedler/zorigami-sub002/internal/digest"
)

// Digest re-exports the content-addressing type so catalog callers rarely
// need to import internal/digest directly.
type Digest = digest.Digest

// Chunk is a contiguous byte range of some file, identified by its content
// hash. Offset and Length describe the chunk's position within the source
// file at the moment it was chunked; they are not persisted, since the same
// chunk bytes may appear inside many different files.
type Chunk struct {
	Digest   Digest
	Offset   uint64 `msgpack:"-"`
	Length   uint64
	Filepath string  `msgpack:"-"`
	Packfile *Digest // set once the chunk has been uploaded; never cleared
}

// WithFilepath returns a copy of the chunk annotated with the path of the
// file it was read from, mirroring the builder style of the original
// Chunk::filepath method.
func (c Chunk) WithFilepath(path string) Chunk {
	c.Filepath = path
	return c
}

// FileChunkRef names one chunk's place within a File's content.
type FileChunkRef struct {
	Offset uint64
	Digest Digest
}

// File is the content hash of an entire file plus the ordered list of
// chunks that reassemble it. Chunks are ordered by Offset with no gaps or
// overlaps, summing to Length.
type File struct {
	Digest Digest
	Length uint64
	Chunks []FileChunkRef
}

// EntryKind distinguishes the four kinds of TreeEntry.reference.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindTree
	KindLink
	KindSmall
)

// TreeReference is the tagged union of what a TreeEntry points to.
type TreeReference struct {
	Kind EntryKind

	// FileDigest is set when Kind == KindFile.
	FileDigest Digest
	// TreeDigest is set when Kind == KindTree.
	TreeDigest Digest
	// LinkTarget is set when Kind == KindLink.
	LinkTarget string
	// SmallBytes is set when Kind == KindSmall (content inlined because it
	// is smaller than the configured inlining threshold).
	SmallBytes []byte
}

// TreeEntry is one named member of a directory listing.
type TreeEntry struct {
	Name      string
	Kind      EntryKind // mirrors Reference.Kind for quick filtering
	Mode      uint32
	UID       uint32
	GID       uint32
	User      string
	Group     string
	Ctime     time.Time
	Mtime     time.Time
	Reference TreeReference
	// Xattrs maps extended attribute name to the digest of its
	// separately stored blob under the xattr/ namespace.
	Xattrs map[string]Digest
}

// Tree is a directory listing: a name-sorted sequence of entries, content
// addressed by the serialized entry list.
type Tree struct {
	Digest Digest
	Entries []TreeEntry
	// FileCount is the transitive count of file entries in the subtree.
	// It is never persisted, so GetTree leaves it at zero.
	FileCount int `msgpack:"-"`
}

// Snapshot is a named point-in-time root tree, optionally linked to a
// parent snapshot. EndTime is the zero time while a backup is still in
// progress.
type Snapshot struct {
	Digest    Digest
	Parent    *Digest
	Tree      Digest
	StartTime time.Time
	EndTime   time.Time
	FileCount uint64
}

// InProgress reports whether this snapshot represents a backup that never
// completed (or is still running).
func (s Snapshot) InProgress() bool {
	return s.EndTime.IsZero()
}

// PackLocation names the (store, bucket, object) coordinate of a pack on
// one backend.
type PackLocation struct {
	StoreID string
	Bucket  string
	Object  string
}

// Pack is an encrypted archive containing one or more chunks. Locations is
// never empty once a pack is recorded; it may grow over time as the pack is
// replicated to additional stores but never shrinks except via prune.
type Pack struct {
	Digest     Digest
	Locations  []PackLocation
	CryptoSalt []byte
}

// StoreKind enumerates the supported pack-store backend types.
type StoreKind uint8

const (
	StoreLocal StoreKind = iota
	StoreMinio
	StoreSFTP
	StoreGoogle
)

func (k StoreKind) String() string {
	switch k {
	case StoreLocal:
		return "local"
	case StoreMinio:
		return "minio"
	case StoreSFTP:
		return "sftp"
	case StoreGoogle:
		return "google"
	default:
		return "unknown"
	}
}

// ParseStoreKind is the inverse of StoreKind.String.
func ParseStoreKind(s string) (StoreKind, bool) {
	switch s {
	case "local":
		return StoreLocal, true
	case "minio":
		return StoreMinio, true
	case "sftp":
		return StoreSFTP, true
	case "google":
		return StoreGoogle, true
	default:
		return 0, false
	}
}

// Store is a configured backend endpoint. ID is a ULID assigned at
// creation; Properties holds kind-specific configuration such as endpoint,
// base path, or a reference to externally managed credentials.
type Store struct {
	ID         string
	Kind       StoreKind
	Label      string
	Properties map[string]string
	Retention  Retention
}

// Retention captures how long packs on this store should be kept before
// becoming eligible for prune. A zero value means "keep forever".
type Retention struct {
	MaxAge time.Duration
}

// Schedule names when a dataset's backups should run. Only the fields
// needed by the due-decision logic in internal/supervisor are modeled here;
// richer recurrence rules are a presentation-layer concern.
type Schedule struct {
	Interval time.Duration
}

// Dataset is a user-designated local tree plus the configuration that
// governs how it is backed up.
type Dataset struct {
	ID        string
	Basepath  string
	Workspace string
	PackSize  uint64
	Stores    []string
	Schedules []Schedule
	Excludes  []string
	Retention Retention
}

// WorkspaceOrDefault returns the dataset's configured workspace, or the
// default "<basepath>/.tmp" scratch directory when unset.
func (d Dataset) WorkspaceOrDefault() string {
	if d.Workspace != "" {
		return d.Workspace
	}
	return d.Basepath + "/.tmp"
}

// Configuration is the per-machine identity used to label catalog backups
// and pack buckets.
type Configuration struct {
	Hostname   string
	Username   string
	ComputerID string
}

// RecordCounts tallies the number of records of each kind in the catalog,
// used by administrative tooling and tests as a cheap sanity check.
type RecordCounts struct {
	Chunks    int
	Files     int
	Trees     int
	Snapshots int
	Packs     int
	Databases int
}
