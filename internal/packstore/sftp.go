package packstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// SFTP stores packs as files under a remote base directory reached over an
// SSH connection, one subdirectory per bucket — the same layout Local
// uses, just over the network.
type SFTP struct {
	id      string
	conn    *ssh.Client
	client  *sftp.Client
	baseDir string
	slow    bool
}

// SFTPConfig names the connection details for one SFTP endpoint.
type SFTPConfig struct {
	Addr     string // host:port
	Username string
	Password string // empty when using PrivateKey
	PrivateKey []byte
	BaseDir  string
	// HostKeyCallback should be supplied by the caller from known_hosts;
	// left nil only in tests against a throwaway server.
	HostKeyCallback ssh.HostKeyCallback
	Slow            bool
}

// NewSFTP dials the configured SSH server and opens an SFTP session.
func NewSFTP(id string, cfg SFTPConfig) (*SFTP, error) {
	var auth []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("packstore: sftp: parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	conn, err := ssh.Dial("tcp", cfg.Addr, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("packstore: sftp: dial %s: %w", cfg.Addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("packstore: sftp: new client: %w", err)
	}
	return &SFTP{id: id, conn: conn, client: client, baseDir: cfg.BaseDir, slow: cfg.Slow}, nil
}

// Close releases the underlying SFTP session and SSH connection.
func (s *SFTP) Close() error {
	s.client.Close()
	return s.conn.Close()
}

func (s *SFTP) ID() string    { return s.id }
func (s *SFTP) IsLocal() bool { return false }
func (s *SFTP) IsSlow() bool  { return s.slow }

func (s *SFTP) bucketDir(bucket string) string {
	return path.Join(s.baseDir, bucket)
}

func (s *SFTP) upload(ctx context.Context, localPath, bucket, object string) (catalog.PackLocation, error) {
	dir := s.bucketDir(bucket)
	if err := s.client.MkdirAll(dir); err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: mkdir %s: %w", dir, err)
	}
	dest := path.Join(dir, object)
	if _, err := s.client.Stat(dest); err == nil {
		return catalog.PackLocation{StoreID: s.id, Bucket: bucket, Object: object}, nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp := dest + ".uploading"
	dst, err := s.client.Create(tmp)
	if err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: create %s: %w", tmp, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		s.client.Remove(tmp)
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: copy into %s: %w", tmp, err)
	}
	if err := dst.Close(); err != nil {
		s.client.Remove(tmp)
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: close %s: %w", tmp, err)
	}
	if err := s.client.Rename(tmp, dest); err != nil {
		s.client.Remove(tmp)
		return catalog.PackLocation{}, fmt.Errorf("packstore: sftp: rename into place: %w", err)
	}

	_ = ctx // the sftp client's operations are not context-aware upstream
	return catalog.PackLocation{StoreID: s.id, Bucket: bucket, Object: object}, nil
}

func (s *SFTP) StorePack(ctx context.Context, localPath, bucket, object string) (catalog.PackLocation, error) {
	return s.upload(ctx, localPath, bucket, object)
}

func (s *SFTP) StoreDatabase(ctx context.Context, localPath, bucket, object string) (catalog.PackLocation, error) {
	return s.upload(ctx, localPath, bucket, object)
}

func (s *SFTP) retrieve(loc catalog.PackLocation, outpath string) error {
	src := path.Join(s.bucketDir(loc.Bucket), loc.Object)
	in, err := s.client.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("packstore: sftp: %s/%s: %w", loc.Bucket, loc.Object, ErrObjectNotFound)
		}
		return fmt.Errorf("packstore: sftp: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(outpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("packstore: sftp: create %s: %w", outpath, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("packstore: sftp: copy to %s: %w", outpath, err)
	}
	return out.Close()
}

func (s *SFTP) RetrievePack(_ context.Context, loc catalog.PackLocation, outpath string) error {
	return s.retrieve(loc, outpath)
}

func (s *SFTP) RetrieveDatabase(_ context.Context, loc catalog.PackLocation, outpath string) error {
	return s.retrieve(loc, outpath)
}

func (s *SFTP) ListBuckets(_ context.Context) ([]string, error) {
	entries, err := s.client.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("packstore: sftp: readdir %s: %w", s.baseDir, err)
	}
	var buckets []string
	for _, e := range entries {
		if e.IsDir() {
			buckets = append(buckets, e.Name())
		}
	}
	return buckets, nil
}

func (s *SFTP) listNames(bucket string) ([]string, error) {
	dir := s.bucketDir(bucket)
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("packstore: sftp: readdir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *SFTP) ListObjects(_ context.Context, bucket string) ([]string, error) {
	return s.listNames(bucket)
}

func (s *SFTP) ListDatabases(_ context.Context, bucket string) ([]string, error) {
	return s.listNames(bucket)
}

func (s *SFTP) DeleteObject(_ context.Context, bucket, object string) error {
	path := path.Join(s.bucketDir(bucket), object)
	if err := s.client.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("packstore: sftp: remove %s: %w", path, err)
	}
	return nil
}

func (s *SFTP) DeleteBucket(_ context.Context, bucket string) error {
	dir := s.bucketDir(bucket)
	entries, err := s.client.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("packstore: sftp: readdir %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("packstore: sftp: %s: %w", bucket, ErrBucketNotEmpty)
	}
	if err := s.client.RemoveDirectory(dir); err != nil {
		return fmt.Errorf("packstore: sftp: rmdir %s: %w", dir, err)
	}
	return nil
}
