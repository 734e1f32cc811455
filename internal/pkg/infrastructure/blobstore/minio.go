package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type minioStore struct {
	client *minio.Client
	log    logging.Logger
}

//NewMinioStore connects to an S3 compatible object store
func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, log logging.Logger) (Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	log.Infof("Using object store at %s", endpoint)

	return &minioStore{client: client, log: log}, nil
}

func bucketName(companyID uuid.UUID) string {
	return companyID.String()
}

func (s *minioStore) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if !exists {
		s.log.Infof("Creating bucket %s", bucket)
		err = s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil {
			// another upload may have created it in the meantime
			if exists, _ := s.client.BucketExists(ctx, bucket); exists {
				return nil
			}
			return err
		}
	}

	return nil
}

func (s *minioStore) Upload(ctx context.Context, companyID, objectID uuid.UUID, r io.Reader, size int64) error {
	bucket := bucketName(companyID)

	if err := s.ensureBucket(ctx, bucket); err != nil {
		return fmt.Errorf("failed to prepare bucket %s: %w", bucket, err)
	}

	_, err := s.client.PutObject(ctx, bucket, objectID.String(), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectID, err)
	}

	return nil
}

func (s *minioStore) Download(ctx context.Context, companyID, objectID uuid.UUID) (*Stream, error) {
	obj, err := s.client.GetObject(ctx, bucketName(companyID), objectID.String(), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, objectID)
	}

	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, translate(err, objectID)
	}

	return newStream(obj, info.Size), nil
}

func (s *minioStore) Delete(ctx context.Context, companyID, objectID uuid.UUID) error {
	err := s.client.RemoveObject(ctx, bucketName(companyID), objectID.String(), minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchBucket" || resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete object %s: %w", objectID, err)
	}
	return nil
}

func translate(err error, objectID uuid.UUID) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchBucket" || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}
	return fmt.Errorf("failed to download object %s: %w", objectID, err)
}
