package restore

import "errors"

// ErrDigestMismatch is returned by RestoreFile when the reassembled bytes'
// BLAKE3 digest does not match the expected File digest.
var ErrDigestMismatch = errors.New("restore: reassembled content digest mismatch")

// ErrEntryNotFound is returned when a Request's entry_name does not name a
// member of the given tree.
var ErrEntryNotFound = errors.New("restore: entry not found in tree")

// ErrRequestNotFound is returned by Cancel, StatusOf and WaitFor when the
// given request id is unknown to the Restorer.
var ErrRequestNotFound = errors.New("restore: unknown request id")

// ErrUnsupportedEntryKind is returned when a queued request names a tree
// entry that is neither a chunked file nor an inlined small file: the
// restorer does not restore directories or symbolic links.
var ErrUnsupportedEntryKind = errors.New("restore: unsupported entry kind for a single restore request")
