// Package attach stores issue attachments in S3-compatible object storage.
// Files never pass through the API server: clients upload and download via
// presigned URLs.
package attach

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"tempo/api/internal/util"
)

const (
	uploadExpiry   = 15 * time.Minute
	downloadExpiry = 1 * time.Hour
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service wraps a MinIO client scoped to one bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to the object store and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Service{client: client, bucket: cfg.Bucket}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return s, nil
}

// Attachment describes one stored object belonging to an issue.
type Attachment struct {
	ObjectKey string    `json:"objectKey"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// objectKey namespaces attachments per issue. The random segment keeps
// repeated uploads of the same filename from colliding.
func objectKey(issueID, filename string) string {
	return path.Join("issues", issueID, util.NewID("att_")+"_"+sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}

// PresignUpload returns a presigned PUT URL for a new attachment and the
// object key the caller should record.
func (s *Service) PresignUpload(ctx context.Context, issueID, filename string) (string, string, error) {
	if filename == "" {
		return "", "", fmt.Errorf("filename required")
	}

	key := objectKey(issueID, filename)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, uploadExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign upload %s: %w", key, err)
	}
	return u.String(), key, nil
}

// PresignDownload returns a presigned GET URL for an existing attachment.
func (s *Service) PresignDownload(ctx context.Context, key string) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, downloadExpiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("presign download %s: %w", key, err)
	}
	return u.String(), nil
}

// ListForIssue returns the attachments stored for one issue.
func (s *Service) ListForIssue(ctx context.Context, issueID string) ([]Attachment, error) {
	prefix := path.Join("issues", issueID) + "/"

	var attachments []Attachment
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list attachments for %s: %w", issueID, obj.Err)
		}
		attachments = append(attachments, Attachment{
			ObjectKey: obj.Key,
			Filename:  displayName(obj.Key),
			Size:      obj.Size,
			UpdatedAt: obj.LastModified,
		})
	}
	return attachments, nil
}

// displayName strips the att_ random prefix the upload path added.
func displayName(key string) string {
	base := path.Base(key)
	if i := strings.Index(base, "_"); i >= 0 && strings.HasPrefix(base, "att_") {
		if j := strings.Index(base[4:], "_"); j >= 0 {
			return base[4+j+1:]
		}
	}
	return base
}

// Delete removes one attachment.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete attachment %s: %w", key, err)
	}
	return nil
}

// DeleteForIssue removes all attachments belonging to an issue. Used when
// the issue itself is deleted.
func (s *Service) DeleteForIssue(ctx context.Context, issueID string) error {
	prefix := path.Join("issues", issueID) + "/"

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return fmt.Errorf("list attachments for %s: %w", issueID, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete attachment %s: %w", obj.Key, err)
		}
	}
	return nil
}
