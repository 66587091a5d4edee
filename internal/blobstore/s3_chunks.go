package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/multierr"
)

const BackendS3 = "s3"

// S3Config describes an S3 compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// NewS3Client builds a client shared by every tenant's chunk store.
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	return minio.New(cfg.Endpoint, opts)
}

// S3Chunks stores one object per chunk at <prefix>/<bucket>/<id>/<n>.
// The prefix is the tenant key, so tenants never share object keys.
type S3Chunks struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Chunks binds a tenant prefix to an S3 bucket, creating the bucket on first use.
func NewS3Chunks(ctx context.Context, client *minio.Client, bucket, region, prefix string) (*S3Chunks, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if err := validPathSegment("s3 prefix", prefix); err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check s3 bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("create s3 bucket %s: %w", bucket, err)
		}
	}
	return &S3Chunks{client: client, bucket: bucket, prefix: prefix}, nil
}

func (c *S3Chunks) Backend() string {
	return BackendS3
}

func (c *S3Chunks) PutChunk(ctx context.Context, key ChunkKey, data []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, c.objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: DefaultContentType,
	})
	return err
}

func (c *S3Chunks) GetChunk(ctx context.Context, key ChunkKey) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, c.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapS3Error(err)
	}
	return data, nil
}

// DeleteChunks removes count chunk objects in one batch request.
func (c *S3Chunks) DeleteChunks(ctx context.Context, bucket, blobID string, count int) error {
	if count <= 0 {
		return nil
	}
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for n := 0; n < count; n++ {
			select {
			case objects <- minio.ObjectInfo{Key: c.objectKey(ChunkKey{Bucket: bucket, BlobID: blobID, N: n})}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs error
	for removeErr := range c.client.RemoveObjects(ctx, c.bucket, objects, minio.RemoveObjectsOptions{}) {
		if removeErr.Err == nil || minio.ToErrorResponse(removeErr.Err).Code == "NoSuchKey" {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", removeErr.ObjectName, removeErr.Err))
	}
	return errs
}

func (c *S3Chunks) objectKey(key ChunkKey) string {
	return path.Join(c.prefix, key.Bucket, key.BlobID, strconv.Itoa(key.N))
}

func mapS3Error(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrChunkNotFound
	}
	return err
}
