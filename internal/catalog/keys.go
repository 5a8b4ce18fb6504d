package catalog

import "github.com/nlfiedler/zorigami-sub002/internal/digest"

// Bucket names, one per key namespace from the data model. Each entity
// kind lives in its own top-level bbolt bucket rather than sharing one
// bucket with a string prefix, since bbolt buckets already give us cheap,
// isolated cursors — the "prefix" of the conceptual key space becomes the
// bucket name, and the "suffix" is the bbolt key itself (a digest's
// "<alg>-<hex>" display form, or an id).
const (
	bucketChunk    = "chunk"
	bucketFile     = "file"
	bucketTree     = "tree"
	bucketPack     = "pack"
	bucketDatabase = "database"
	bucketXattr    = "xattr"
	bucketSnapshot = "snapshot"
	bucketStore    = "store"
	bucketDataset  = "dataset"
	bucketComputer = "computer"
	bucketLatest   = "latest"
	bucketMeta     = "meta"
)

// configKey is the single key inside bucketMeta holding the serialized
// Configuration singleton.
var configKey = []byte("config")

// allBuckets lists every bucket Open must ensure exists, so a fresh
// catalog file is fully provisioned on first use.
var allBuckets = []string{
	bucketChunk,
	bucketFile,
	bucketTree,
	bucketPack,
	bucketDatabase,
	bucketXattr,
	bucketSnapshot,
	bucketStore,
	bucketDataset,
	bucketComputer,
	bucketLatest,
	bucketMeta,
}

func digestKey(d Digest) []byte {
	return []byte(d.String())
}

func parseDigestKey(raw []byte) (Digest, error) {
	return digest.ParseDigest(string(raw))
}
