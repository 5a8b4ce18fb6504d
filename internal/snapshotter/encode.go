package snapshotter

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// serializeTreeEntries renders entries with sorted map keys so that two
// directories with identical contents always produce identical bytes,
// which is what makes a Tree's digest content-addressed in the first
// place.
func serializeTreeEntries(entries []catalog.TreeEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
