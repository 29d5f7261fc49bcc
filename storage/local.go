package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket keeps objects on the local filesystem. The HTTP server exposes
// Root under the public base URL.
type LocalBucket struct {
	Root    string
	baseURL string
}

func NewLocalBucket(root, publicBaseURL string) (*LocalBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalBucket{Root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (b *LocalBucket) Upload(ctx context.Context, key string, body io.Reader, _ string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(b.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write object: %w", err)
	}
	return f.Close()
}

func (b *LocalBucket) DeletePrefix(_ context.Context, prefix string) error {
	prefix, err := cleanKey(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(b.Root, filepath.FromSlash(prefix)))
}

func (b *LocalBucket) PublicURL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}
