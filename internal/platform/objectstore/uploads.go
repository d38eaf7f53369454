package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// Presigner hands out short-lived URLs for step attachments.
type Presigner interface {
	PresignUpload(ctx context.Context, req UploadRequest) (Upload, error)
}

type UploadRequest struct {
	ScenarioNodeID string
	StepNumber     int
	Name           string
	ContentType    string
}

// Upload carries the PUT URL for the client plus the reference it stores
// in the step delta once the object is written.
type Upload struct {
	FileID    string
	Key       string
	UploadURL string
	GetURL    string
	ExpiresAt time.Time
}

type MinioUploads struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

func NewMinioUploads(client *minio.Client, cfg Config) (*MinioUploads, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if strings.TrimSpace(cfg.BucketUploads) == "" {
		return nil, errors.New("uploads bucket is required")
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinioUploads{
		client: client,
		bucket: cfg.BucketUploads,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

func (u *MinioUploads) PresignUpload(ctx context.Context, req UploadRequest) (Upload, error) {
	if u == nil || u.client == nil {
		return Upload{}, errors.New("minio uploads not initialized")
	}
	key, id, err := u.objectKey(req)
	if err != nil {
		return Upload{}, err
	}

	putURL, err := u.client.PresignedPutObject(ctx, u.bucket, key, u.ttl)
	if err != nil {
		return Upload{}, fmt.Errorf("presign put: %w", err)
	}
	getURL, err := u.client.PresignedGetObject(ctx, u.bucket, key, u.ttl, nil)
	if err != nil {
		return Upload{}, fmt.Errorf("presign get: %w", err)
	}
	return Upload{
		FileID:    id,
		Key:       key,
		UploadURL: putURL.String(),
		GetURL:    getURL.String(),
		ExpiresAt: u.now().UTC().Add(u.ttl),
	}, nil
}

func (u *MinioUploads) objectKey(req UploadRequest) (string, string, error) {
	node := strings.TrimSpace(req.ScenarioNodeID)
	if node == "" || strings.ContainsAny(node, "/\\") {
		return "", "", fmt.Errorf("invalid scenario node id: %q", req.ScenarioNodeID)
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(req.Name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", "", errors.New("file name is required")
	}
	id := u.newID()
	key := fmt.Sprintf("scenarios/%s/steps/%d/%s/%s", node, req.StepNumber, id, name)
	return key, id, nil
}
