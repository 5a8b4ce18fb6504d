package catalog

// PutPack inserts a pack record if its digest is not already present.
func (c *Catalog) PutPack(p Pack) (inserted bool, err error) {
	data, err := encode(p)
	if err != nil {
		return false, err
	}
	return c.insertIfAbsent(bucketPack, digestKey(p.Digest), data)
}

// GetPack reads the pack record named by d.
func (c *Catalog) GetPack(d Digest) (Pack, error) {
	data, err := c.get(bucketPack, digestKey(d))
	if err != nil {
		return Pack{}, err
	}
	var p Pack
	if err := decode(data, &p); err != nil {
		return Pack{}, err
	}
	return p, nil
}

// AddPackLocation appends loc to the pack named by d, used when a pack is
// replicated to an additional store after its initial upload.
func (c *Catalog) AddPackLocation(d Digest, loc PackLocation) error {
	p, err := c.GetPack(d)
	if err != nil {
		return err
	}
	for _, existing := range p.Locations {
		if existing == loc {
			return nil
		}
	}
	p.Locations = append(p.Locations, loc)
	data, err := encode(p)
	if err != nil {
		return err
	}
	return c.put(bucketPack, digestKey(d), data)
}

// ListPacks returns every pack record in the catalog. Used by find-missing
// and prune-extra, both of which need the full set to compare against a
// store's actual contents.
func (c *Catalog) ListPacks() ([]Pack, error) {
	raw, err := c.fetchPrefix(bucketPack, nil)
	if err != nil {
		return nil, err
	}
	packs := make([]Pack, 0, len(raw))
	for _, data := range raw {
		var p Pack
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// CountPacks returns the number of pack records in the catalog.
func (c *Catalog) CountPacks() (int, error) {
	return c.countPrefix(bucketPack, nil)
}

// ReassignPackStore rewrites every pack location naming oldStoreID to name
// newStoreID instead, returning how many locations were changed. This
// supports retiring or renaming a store without re-uploading every pack
// already sent to it.
func (c *Catalog) ReassignPackStore(oldStoreID, newStoreID string) (int, error) {
	packs, err := c.ListPacks()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range packs {
		changed := false
		for i := range p.Locations {
			if p.Locations[i].StoreID == oldStoreID {
				p.Locations[i].StoreID = newStoreID
				changed = true
				count++
			}
		}
		if !changed {
			continue
		}
		data, err := encode(p)
		if err != nil {
			return count, err
		}
		if err := c.put(bucketPack, digestKey(p.Digest), data); err != nil {
			return count, err
		}
	}
	return count, nil
}

// PutDatabasePack records a catalog self-backup as a pseudo-pack under the
// database namespace, which ordinary pack prune never walks.
func (c *Catalog) PutDatabasePack(p Pack) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	return c.put(bucketDatabase, digestKey(p.Digest), data)
}

// ListDatabasePacks returns every recorded catalog self-backup, in no
// particular order.
func (c *Catalog) ListDatabasePacks() ([]Pack, error) {
	raw, err := c.fetchPrefix(bucketDatabase, nil)
	if err != nil {
		return nil, err
	}
	packs := make([]Pack, 0, len(raw))
	for _, data := range raw {
		var p Pack
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// CountDatabasePacks returns the number of recorded catalog self-backups.
func (c *Catalog) CountDatabasePacks() (int, error) {
	return c.countPrefix(bucketDatabase, nil)
}
