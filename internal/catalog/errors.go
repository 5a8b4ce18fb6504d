package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by every entity getter when the requested digest
// or id has no record in the catalog.
var ErrNotFound = errors.New("catalog: not found")

// ErrAlreadyOpen is returned by RestoreFromBackup when the target catalog
// still has live strong references, mirroring the weak-reference model's
// refusal to replace a handle still in use.
var ErrAlreadyOpen = errors.New("catalog: still referenced, cannot replace")

// IntegrityError reports that stored bytes failed to reproduce the digest
// that names them, the catalog-level instance of the system's integrity
// error taxonomy.
type IntegrityError struct {
	Digest Digest
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("catalog: integrity error for %s: %s", e.Digest, e.Reason)
}

// notFound wraps ErrNotFound with the bucket/key context that was missing,
// so logs can name what was being looked up without every caller
// reconstructing the message.
func notFound(bucket string, key []byte) error {
	return fmt.Errorf("catalog: %s/%s: %w", bucket, key, ErrNotFound)
}
