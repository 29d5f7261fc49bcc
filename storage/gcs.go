package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"streamchat/config"
)

type GCSBucket struct {
	client    *storage.Client
	name      string
	cdnDomain string
}

func NewGCSBucket(ctx context.Context, cfg config.Storage) (*GCSBucket, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBucket{client: client, name: cfg.Bucket, cdnDomain: cfg.CDNDomain}, nil
}

func (b *GCSBucket) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (b *GCSBucket) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	bucket := b.client.Bucket(b.name)
	it := bucket.Objects(ctx, &storage.Query{Prefix: strings.TrimRight(prefix, "/") + "/"})
	var errs []error
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *GCSBucket) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", b.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}
