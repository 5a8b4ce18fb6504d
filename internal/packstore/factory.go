package packstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// BuildBackend constructs the concrete Backend named by store.Kind from its
// Properties map, the same way every backend's own Config struct is
// populated directly from catalog.Store records rather than a second,
// parallel configuration format.
func BuildBackend(ctx context.Context, store catalog.Store) (Backend, error) {
	props := store.Properties
	switch store.Kind {
	case catalog.StoreLocal:
		dir, ok := props["basepath"]
		if !ok || dir == "" {
			return nil, fmt.Errorf("packstore: store %s: local backend requires a \"basepath\" property", store.ID)
		}
		return NewLocal(store.ID, dir)

	case catalog.StoreMinio:
		endpoint, ok := props["endpoint"]
		if !ok || endpoint == "" {
			return nil, fmt.Errorf("packstore: store %s: minio backend requires an \"endpoint\" property", store.ID)
		}
		return NewMinio(store.ID, MinioConfig{
			Endpoint:  endpoint,
			AccessKey: props["access_key"],
			SecretKey: props["secret_key"],
			Region:    props["region"],
			UseTLS:    parseBoolProp(props["use_tls"]),
			Slow:      parseBoolProp(props["slow"]),
		})

	case catalog.StoreSFTP:
		addr, ok := props["addr"]
		if !ok || addr == "" {
			return nil, fmt.Errorf("packstore: store %s: sftp backend requires an \"addr\" property", store.ID)
		}
		return NewSFTP(store.ID, SFTPConfig{
			Addr:       addr,
			Username:   props["username"],
			Password:   props["password"],
			PrivateKey: []byte(props["private_key"]),
			BaseDir:    props["base_dir"],
			Slow:       parseBoolProp(props["slow"]),
		})

	case catalog.StoreGoogle:
		return NewGCS(ctx, store.ID, GCSConfig{
			ProjectID: props["project_id"],
			Location:  props["location"],
		})

	default:
		return nil, fmt.Errorf("packstore: store %s: unsupported store kind %v", store.ID, store.Kind)
	}
}

// BuildMulti constructs a Multi aggregating a Backend for every store
// listed, failing on the first store that cannot be constructed.
func BuildMulti(ctx context.Context, stores []catalog.Store) (*Multi, error) {
	backends := make([]Backend, 0, len(stores))
	for _, store := range stores {
		backend, err := BuildBackend(ctx, store)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
	}
	return NewMulti(backends...)
}

func parseBoolProp(raw string) bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return b
}
