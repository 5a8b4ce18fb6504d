package catalog

// PutConfiguration writes the singleton per-machine Configuration record.
func (c *Catalog) PutConfiguration(cfg Configuration) error {
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	return c.put(bucketMeta, configKey, data)
}

// GetConfiguration reads the singleton per-machine Configuration record.
func (c *Catalog) GetConfiguration() (Configuration, error) {
	data, err := c.get(bucketMeta, configKey)
	if err != nil {
		return Configuration{}, err
	}
	var cfg Configuration
	if err := decode(data, &cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// PutXattr inserts an extended-attribute blob if its digest is not already
// present.
func (c *Catalog) PutXattr(d Digest, value []byte) (inserted bool, err error) {
	return c.insertIfAbsent(bucketXattr, digestKey(d), value)
}

// GetXattr reads the extended-attribute blob named by d.
func (c *Catalog) GetXattr(d Digest) ([]byte, error) {
	return c.get(bucketXattr, digestKey(d))
}
