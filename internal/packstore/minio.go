package packstore

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// Minio talks to any S3-compatible object store (AWS S3, MinIO, and
// similar) through the minio-go client, which speaks the S3 API directly
// rather than through the heavier AWS SDK.
type Minio struct {
	id     string
	client *minio.Client
	region string
	slow   bool
}

// MinioConfig names the connection details for one S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseTLS    bool
	// Slow marks this store as deprioritized relative to other remote
	// stores during Multi.RetrievePack, e.g. for a cold-storage tier.
	Slow bool
}

// NewMinio constructs a Minio backend from cfg.
func NewMinio(id string, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("packstore: minio: new client: %w", err)
	}
	return &Minio{id: id, client: client, region: cfg.Region, slow: cfg.Slow}, nil
}

func (m *Minio) ID() string    { return m.id }
func (m *Minio) IsLocal() bool { return false }
func (m *Minio) IsSlow() bool  { return m.slow }

func (m *Minio) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("packstore: minio: bucket exists %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("packstore: minio: make bucket %s: %w", bucket, err)
	}
	return nil
}

func (m *Minio) upload(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	if err := m.ensureBucket(ctx, bucket); err != nil {
		return catalog.PackLocation{}, err
	}
	if _, err := m.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{}); err == nil {
		// Idempotent on an identical object name, same contract as Local.
		return catalog.PackLocation{StoreID: m.id, Bucket: bucket, Object: object}, nil
	}
	if _, err := m.client.FPutObject(ctx, bucket, object, path, minio.PutObjectOptions{}); err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: minio: put %s/%s: %w", bucket, object, err)
	}
	return catalog.PackLocation{StoreID: m.id, Bucket: bucket, Object: object}, nil
}

func (m *Minio) StorePack(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	return m.upload(ctx, path, bucket, object)
}

func (m *Minio) StoreDatabase(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	return m.upload(ctx, path, bucket, object)
}

func (m *Minio) retrieve(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	err := m.client.FGetObject(ctx, loc.Bucket, loc.Object, outpath, minio.GetObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return fmt.Errorf("packstore: minio: %s/%s: %w", loc.Bucket, loc.Object, ErrObjectNotFound)
		}
		return fmt.Errorf("packstore: minio: get %s/%s: %w", loc.Bucket, loc.Object, err)
	}
	return nil
}

func (m *Minio) RetrievePack(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	return m.retrieve(ctx, loc, outpath)
}

func (m *Minio) RetrieveDatabase(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	return m.retrieve(ctx, loc, outpath)
}

func (m *Minio) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := m.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("packstore: minio: list buckets: %w", err)
	}
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = b.Name
	}
	return names, nil
}

func (m *Minio) listNames(ctx context.Context, bucket string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("packstore: minio: list objects %s: %w", bucket, obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (m *Minio) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	return m.listNames(ctx, bucket)
}

func (m *Minio) ListDatabases(ctx context.Context, bucket string) ([]string, error) {
	return m.listNames(ctx, bucket)
}

func (m *Minio) DeleteObject(ctx context.Context, bucket, object string) error {
	if err := m.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("packstore: minio: remove %s/%s: %w", bucket, object, err)
	}
	return nil
}

func (m *Minio) DeleteBucket(ctx context.Context, bucket string) error {
	names, err := m.listNames(ctx, bucket)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("packstore: minio: %s: %w", bucket, ErrBucketNotEmpty)
	}
	if err := m.client.RemoveBucket(ctx, bucket); err != nil {
		return fmt.Errorf("packstore: minio: remove bucket %s: %w", bucket, err)
	}
	return nil
}
