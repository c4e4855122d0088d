package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/pkg/cloudinary"
)

// Local writes uploads to a directory served by the API under a public prefix.
type Local struct {
	dir    string
	prefix string
	logger zerolog.Logger
}

// NewLocal creates the upload directory when needed.
func NewLocal(dir, prefix string, logger zerolog.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if prefix == "" {
		prefix = "/uploads"
	}

	return &Local{
		dir:    dir,
		prefix: prefix,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Dir returns the directory files are written to.
func (l *Local) Dir() string {
	return l.dir
}

// Prefix returns the URL path the directory is served under.
func (l *Local) Prefix() string {
	return l.prefix
}

// Upload stores the content and returns its public path.
func (l *Local) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := cloudinary.BuildPublicID(name)
	target := filepath.Join(l.dir, fileName)

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	written, err := io.Copy(dst, reader)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("write upload: %w", err)
	}

	l.logger.Info().Str("file", fileName).Int64("bytes", written).Msg("file stored locally")

	return path.Join(l.prefix, fileName), nil
}

// Delete removes a file previously returned by Upload. Missing files are not an error.
func (l *Local) Delete(ctx context.Context, fileURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := strings.TrimSuffix(l.prefix, "/") + "/"
	name := strings.TrimPrefix(fileURL, prefix)
	if !strings.HasPrefix(fileURL, prefix) || name == "" || name != path.Base(name) {
		return fmt.Errorf("%q is not a local upload", fileURL)
	}

	if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}

	l.logger.Info().Str("file", name).Msg("local file deleted")
	return nil
}
