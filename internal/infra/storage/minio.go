package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const dicomContentType = "application/dicom"

// Store implements the object-store port on MinIO/S3.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// Get reads the whole object into memory. Pipeline inputs are header-sized
// DICOM files, not full archives.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Put writes the object with user metadata attached.
func (s *Store) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  dicomContentType,
			UserMetadata: metadata,
		})
	return err
}

// Exists reports whether the object is present. A missing key is a normal
// outcome, not an error.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return false, nil
	}
	return false, err
}

// List returns the keys under a prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// PresignGet issues a time-limited download URL with DICOM response headers
// so browsers treat the artifact as a file attachment.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	issued := time.Now()

	params := make(url.Values)
	params.Set("response-content-type", dicomContentType)
	params.Set("response-content-disposition", "attachment")

	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, ttl, params)
	if err != nil {
		return "", time.Time{}, err
	}
	return u.String(), issued.Add(ttl), nil
}
