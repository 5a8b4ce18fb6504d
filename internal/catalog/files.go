package catalog

// PutFile inserts a file record if its digest is not already present.
func (c *Catalog) PutFile(f File) (inserted bool, err error) {
	data, err := encode(f)
	if err != nil {
		return false, err
	}
	return c.insertIfAbsent(bucketFile, digestKey(f.Digest), data)
}

// GetFile reads the file record named by d.
func (c *Catalog) GetFile(d Digest) (File, error) {
	data, err := c.get(bucketFile, digestKey(d))
	if err != nil {
		return File{}, err
	}
	var f File
	if err := decode(data, &f); err != nil {
		return File{}, err
	}
	return f, nil
}

// CountFiles returns the number of file records in the catalog.
func (c *Catalog) CountFiles() (int, error) {
	return c.countPrefix(bucketFile, nil)
}
