// Package storage uploads attachment files to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"streamchat/config"
)

var ErrInvalidKey = errors.New("invalid object key")

// Bucket is an object store addressed by slash-separated keys.
type Bucket interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	DeletePrefix(ctx context.Context, prefix string) error
	PublicURL(key string) string
}

// New builds the Bucket selected by cfg.Mode.
func New(ctx context.Context, cfg config.Storage) (Bucket, error) {
	switch cfg.Mode {
	case "gcs":
		return NewGCSBucket(ctx, cfg)
	case "local", "":
		return NewLocalBucket(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.Mode)
	}
}

// ObjectKey is the attachment key for a file of a message. Only the base
// name of fileName is kept.
func ObjectKey(messageID, fileName string) (string, error) {
	if messageID == "" || strings.Contains(messageID, "/") {
		return "", fmt.Errorf("%w: message id %q", ErrInvalidKey, messageID)
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	switch name {
	case ".", "..", "/":
		return "", fmt.Errorf("%w: file name %q", ErrInvalidKey, fileName)
	}
	return messageID + "/" + name, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return cleaned, nil
}
