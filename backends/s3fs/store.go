package s3fs

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chromium/axiom-sub003/fserr"
)

// ObjectInfo describes one object, or a common prefix when Key ends in "/".
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the object-level API the backend needs from a bucket.
type Store interface {
	StatObject(ctx context.Context, key string) (ObjectInfo, error)
	// ReadObject reads up to n bytes at off; n <= 0 reads to the end.
	ReadObject(ctx context.Context, key string, off int64, n int) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	// ListObjects lists keys under prefix. Without recursive, deeper keys are
	// folded into common prefixes.
	ListObjects(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
}

// MinioStore is a Store over a minio client and one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore connects to cfg's endpoint. No request is made until first use.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "failed to create minio client")
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// translate maps minio error responses onto the VFS kinds.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fserr.Wrap(err, fserr.NotFound, message)
	case "AccessDenied":
		return fserr.Wrap(err, fserr.Runtime, message+": access denied")
	}
	return fserr.FromHost(err, message)
}

func (s *MinioStore) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translate(err, "stat "+key)
	}
	return ObjectInfo{Key: info.Key, Size: info.Size, LastModified: info.LastModified}, nil
}

func (s *MinioStore) ReadObject(ctx context.Context, key string, off int64, n int) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	switch {
	case n > 0:
		if err := opts.SetRange(off, off+int64(n)-1); err != nil {
			return nil, fserr.Wrap(err, fserr.Invalid, "read "+key)
		}
	case off > 0:
		if err := opts.SetRange(off, 0); err != nil {
			return nil, fserr.Wrap(err, fserr.Invalid, "read "+key)
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, translate(err, "read "+key)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		// A range starting at the end of the object is unsatisfiable.
		if minio.ToErrorResponse(err).Code == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, translate(err, "read "+key)
	}
	return data, nil
}

func (s *MinioStore) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return translate(err, "put "+key)
}

func (s *MinioStore) ListObjects(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if object.Err != nil {
			return nil, translate(object.Err, "list "+prefix)
		}
		out = append(out, ObjectInfo{Key: object.Key, Size: object.Size, LastModified: object.LastModified})
	}
	return out, nil
}

func (s *MinioStore) RemoveObject(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	return translate(err, "remove "+key)
}
