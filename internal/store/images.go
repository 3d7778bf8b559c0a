package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cropdoc/internal/config"
)

// ImageStore keeps uploaded photos in an S3-compatible bucket, keyed by
// result id.
type ImageStore struct {
	client     *minio.Client
	bucketName string
	region     string
	initMu     sync.Mutex
	ready      bool
}

func NewImageStore(cfg config.ArtifactConfig) (*ImageStore, error) {
	if !cfg.CanUseS3() {
		return nil, fmt.Errorf("s3 endpoint, credentials and bucket are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &ImageStore{
		client:     client,
		bucketName: strings.TrimSpace(cfg.Bucket),
		region:     region,
	}, nil
}

func (s *ImageStore) ensureBucket(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setupTimeout)
	defer cancel()
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// PutImage uploads the photo and returns its object key.
func (s *ImageStore) PutImage(ctx context.Context, resultID string, image []byte, mimeType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("store is nil")
	}
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return "", fmt.Errorf("result id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	key := imageKey(resultID, mimeType)
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(image), int64(len(image)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// ImageURL presigns a one hour download link.
func (s *ImageStore) ImageURL(ctx context.Context, key string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("store is nil")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, time.Hour, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func imageKey(resultID, mimeType string) string {
	ext := "bin"
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		ext = "jpg"
	case "image/png":
		ext = "png"
	case "image/webp":
		ext = "webp"
	case "image/heic":
		ext = "heic"
	}
	return "photos/" + resultID + "." + ext
}
