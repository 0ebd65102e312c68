// Package deploy publishes the current document to S3-compatible object
// storage as a static site.
package deploy

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

const htmlContentType = "text/html; charset=utf-8"

var (
	ErrEmptyDocument = errors.New("deploy document empty")
	ErrNotConfigured = errors.New("deploy storage not configured")
)

// ObjectStore is the subset of an S3 client the publisher needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error
}

type MinioStore struct {
	client *minio.Client
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

func (m *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func (m *MinioStore) Put(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

type Deployment struct {
	Slug        string    `json:"slug"`
	Version     string    `json:"version"`
	URL         string    `json:"url"`
	VersionURL  string    `json:"versionUrl"`
	Bytes       int       `json:"bytes"`
	PublishedAt time.Time `json:"publishedAt"`
}

type Publisher struct {
	store         ObjectStore
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

func NewPublisher(store ObjectStore, bucket, publicBaseURL string) *Publisher {
	return &Publisher{
		store:         store,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// Publish uploads the document as <slug>/index.html and as an immutable
// <slug>/versions/<hash>.html. Both uploads run concurrently; either failing
// fails the deployment.
func (p *Publisher) Publish(ctx context.Context, project, content string) (Deployment, error) {
	if p == nil || p.store == nil || p.bucket == "" {
		return Deployment{}, ErrNotConfigured
	}
	if strings.TrimSpace(content) == "" {
		return Deployment{}, ErrEmptyDocument
	}
	if err := p.store.EnsureBucket(ctx, p.bucket); err != nil {
		return Deployment{}, err
	}

	data := []byte(content)
	slug := Slug(project)
	version := Version(data)
	indexKey := slug + "/index.html"
	versionKey := slug + "/versions/" + version + ".html"

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.store.Put(gctx, p.bucket, indexKey, data, htmlContentType, "no-cache")
	})
	g.Go(func() error {
		return p.store.Put(gctx, p.bucket, versionKey, data, htmlContentType, "public, max-age=31536000, immutable")
	})
	if err := g.Wait(); err != nil {
		return Deployment{}, fmt.Errorf("publish %s: %w", slug, err)
	}

	return Deployment{
		Slug:        slug,
		Version:     version,
		URL:         p.objectURL(slug + "/"),
		VersionURL:  p.objectURL(versionKey),
		Bytes:       len(data),
		PublishedAt: p.now().UTC(),
	}, nil
}

func (p *Publisher) objectURL(key string) string {
	if p.publicBaseURL == "" {
		return "s3://" + p.bucket + "/" + key
	}
	return p.publicBaseURL + "/" + key
}

// Slug lower-cases a project name into a URL path segment.
func Slug(project string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(project)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// Version is a short content hash; identical documents share a version.
func Version(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:12])
}
