// Package blob stores uploaded images and resolves their public URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a key/value object store with publicly resolvable URLs.
type Store interface {
	// Upload writes the object, replacing any existing object under key.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(ctx context.Context, key string) (string, error)
}

// KeyFor returns the object key for a local file: images/<base name>.
// Files sharing a base name map to the same key.
func KeyFor(localPath string) string {
	return "images/" + filepath.Base(localPath)
}

// ContentType guesses a MIME type from the file extension.
func ContentType(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// UploadFile uploads a local file under KeyFor(localPath) and returns its
// public URL.
func UploadFile(ctx context.Context, s Store, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", localPath)
	}

	key := KeyFor(localPath)
	if err := s.Upload(ctx, key, f, info.Size(), ContentType(localPath)); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := s.PublicURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("public url %s: %w", key, err)
	}
	return url, nil
}
