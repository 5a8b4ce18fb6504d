package catalog

import "github.com/oklog/ulid/v2"

// NewStoreID mints a fresh lexicographically sortable identifier for a
// Store, matching the data model's "Store.id is a ULID generated at
// creation".
func NewStoreID() string {
	return ulid.Make().String()
}

// PutStore writes (or overwrites) a store configuration record. Stores are
// mutable: their properties and retention policy may be edited after
// creation.
func (c *Catalog) PutStore(s Store) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return c.put(bucketStore, []byte(s.ID), data)
}

// GetStore reads the store record named by id.
func (c *Catalog) GetStore(id string) (Store, error) {
	data, err := c.get(bucketStore, []byte(id))
	if err != nil {
		return Store{}, err
	}
	var s Store
	if err := decode(data, &s); err != nil {
		return Store{}, err
	}
	return s, nil
}

// DeleteStore removes the store record named by id.
func (c *Catalog) DeleteStore(id string) error {
	return c.delete(bucketStore, []byte(id))
}

// ListStores returns every configured store.
func (c *Catalog) ListStores() ([]Store, error) {
	raw, err := c.fetchPrefix(bucketStore, nil)
	if err != nil {
		return nil, err
	}
	stores := make([]Store, 0, len(raw))
	for _, data := range raw {
		var s Store
		if err := decode(data, &s); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, nil
}
