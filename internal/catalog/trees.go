package catalog

// PutTree inserts a tree record if its digest is not already present.
func (c *Catalog) PutTree(t Tree) (inserted bool, err error) {
	data, err := encode(t)
	if err != nil {
		return false, err
	}
	return c.insertIfAbsent(bucketTree, digestKey(t.Digest), data)
}

// GetTree reads the tree record named by d. FileCount is left at zero; it
// is a derived field computed by walkers that hold the whole subtree, not
// something the catalog can answer from a single record.
func (c *Catalog) GetTree(d Digest) (Tree, error) {
	data, err := c.get(bucketTree, digestKey(d))
	if err != nil {
		return Tree{}, err
	}
	var t Tree
	if err := decode(data, &t); err != nil {
		return Tree{}, err
	}
	return t, nil
}

// CountTrees returns the number of tree records in the catalog.
func (c *Catalog) CountTrees() (int, error) {
	return c.countPrefix(bucketTree, nil)
}
