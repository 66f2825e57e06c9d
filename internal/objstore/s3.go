// Package objstore issues presigned S3 upload URLs so file payloads bypass
// the chat nodes entirely: clients PUT the object directly and only the
// object key travels through the message path.
package objstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Presigner mints time-limited upload URLs for client-side file uploads.
type Presigner interface {
	PresignPut(ctx context.Context, userID, filename string, size int64) (*Upload, error)
}

// Upload is a minted upload slot: where to PUT and the key to reference in
// the follow-up message.
type Upload struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// S3Presigner presigns PUT requests against a single bucket.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	ttl    time.Duration
}

// NewS3Presigner loads the ambient AWS credential chain for the given region.
func NewS3Presigner(ctx context.Context, bucket, region string, ttl time.Duration) (*S3Presigner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Presigner{
		client: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		bucket: bucket,
		ttl:    ttl,
	}, nil
}

// PresignPut mints a presigned PUT for one object. Keys are namespaced per
// uploader and salted with a UUID so concurrent uploads of the same filename
// never collide.
func (p *S3Presigner) PresignPut(ctx context.Context, userID, filename string, size int64) (*Upload, error) {
	key := fmt.Sprintf("uploads/%s/%s-%s", userID, uuid.New().String(), sanitizeFilename(filename))

	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &key,
		ContentLength: &size,
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	return &Upload{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: time.Now().Add(p.ttl),
	}, nil
}

// sanitizeFilename strips any path components and characters that would make
// the key awkward to handle downstream.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
