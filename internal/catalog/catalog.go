package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Catalog is a handle onto one machine's embedded record store. Multiple
// Catalog values may share the same underlying *bolt.DB via Registry; the
// zero value is not usable, use Open or Registry.Open.
type Catalog struct {
	db   *bolt.DB
	path string
	reg  *Registry // nil when opened directly via Open, not through a Registry
}

// Open opens (creating if necessary) the catalog file at path and ensures
// every namespace bucket exists. Callers that need a handle shared safely
// across goroutines and call sites should prefer Registry.Open instead.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	c := &Catalog{db: db, path: path}
	if err := c.ensureBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) ensureBuckets() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("catalog: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Path returns the filesystem path this catalog was opened from.
func (c *Catalog) Path() string { return c.path }

// Close releases the underlying database handle. If this Catalog was
// obtained from a Registry, Close decrements the shared reference count and
// only closes the database once it reaches zero.
func (c *Catalog) Close() error {
	if c.reg != nil {
		return c.reg.release(c.path)
	}
	return c.db.Close()
}

func (c *Catalog) put(bucket string, key, value []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		return b.Put(key, value)
	})
}

// insertIfAbsent writes value under key only if no record already exists
// there, reporting which happened. This is the content-addressed write
// path: since identical content always produces the same digest, a
// pre-existing record under that key is necessarily the same bytes, so
// skipping the write is always safe and avoids needless I/O.
func (c *Catalog) insertIfAbsent(bucket string, key, value []byte) (inserted bool, err error) {
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		if b.Get(key) != nil {
			inserted = false
			return nil
		}
		inserted = true
		return b.Put(key, value)
	})
	return inserted, err
}

func (c *Catalog) get(bucket string, key []byte) ([]byte, error) {
	var value []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		v := b.Get(key)
		if v == nil {
			return notFound(bucket, key)
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *Catalog) delete(bucket string, key []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		return b.Delete(key)
	})
}

// countPrefix returns the number of keys in bucket beginning with prefix.
func (c *Catalog) countPrefix(bucket string, prefix []byte) (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		cur := b.Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// fetchPrefix returns the raw key/value pairs in bucket beginning with
// prefix, as a map keyed by the bbolt key; the map carries no ordering.
func (c *Catalog) fetchPrefix(bucket string, prefix []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("catalog: unknown bucket %s", bucket)
		}
		cur := b.Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			out[string(k)] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBackup streams a consistent, point-in-time copy of the whole
// catalog to dst using bbolt's own hot-backup primitive: a read-only
// transaction's WriteTo method, which copies the mmap'd database file
// without blocking concurrent readers or writers.
func (c *Catalog) CreateBackup(dst io.Writer) error {
	return c.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(dst)
		if err != nil {
			return fmt.Errorf("catalog: backup: %w", err)
		}
		return nil
	})
}

// RestoreFromBackup replaces the catalog file at path with the bytes read
// from src. It refuses when the catalog still has live strong references
// (via a Registry), since swapping the file out from under an open handle
// would corrupt in-flight reads.
func RestoreFromBackup(reg *Registry, path string, src io.Reader) error {
	if reg != nil && reg.refCount(path) > 0 {
		return ErrAlreadyOpen
	}
	tmp := path + ".restoring"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("catalog: restore: create temp file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("catalog: restore: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("catalog: restore: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("catalog: restore: rename into place: %w", err)
	}
	slog.Info("catalog restored from backup", "path", path)
	return nil
}

// FallbackReader consults primary first and falls back to secondary on
// ErrNotFound, used while a catalog restore is in flight so callers keep
// seeing a consistent view of whichever copy has the record.
type FallbackReader struct {
	primary, secondary *Catalog
}

// WithFallback builds a FallbackReader over primary and secondary.
func WithFallback(primary, secondary *Catalog) *FallbackReader {
	return &FallbackReader{primary: primary, secondary: secondary}
}

// GetChunk reads a Chunk, trying the primary catalog before the secondary.
func (f *FallbackReader) GetChunk(d Digest) (Chunk, error) {
	ch, err := f.primary.GetChunk(d)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chunk{}, err
	}
	return f.secondary.GetChunk(d)
}

// GetSnapshot reads a Snapshot, trying the primary catalog before the
// secondary.
func (f *FallbackReader) GetSnapshot(d Digest) (Snapshot, error) {
	s, err := f.primary.GetSnapshot(d)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Snapshot{}, err
	}
	return f.secondary.GetSnapshot(d)
}
