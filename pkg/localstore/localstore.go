// Package localstore keeps chat uploads on the local filesystem.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrOutsideRoot indicates a location that does not belong to the store.
var ErrOutsideRoot = errors.New("location outside upload root")

// Config describes where files live and how they are addressed.
type Config struct {
	// Dir is the directory files are written to.
	Dir string
	// PublicPrefix is the URL prefix files are served under, e.g. /uploads.
	PublicPrefix string
}

// Store writes uploads below a single directory.
type Store struct {
	fs     afero.Fs
	dir    string
	prefix string
	logger zerolog.Logger
}

// New returns a store on the OS filesystem, creating the directory if needed.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	return NewWithFs(afero.NewOsFs(), cfg, logger)
}

// NewWithFs returns a store on an arbitrary filesystem.
func NewWithFs(fs afero.Fs, cfg Config, logger zerolog.Logger) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "uploads"
	}
	prefix := "/" + strings.Trim(cfg.PublicPrefix, "/")
	if prefix == "/" {
		prefix = "/uploads"
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		fs:     fs,
		dir:    dir,
		prefix: prefix,
		logger: logger.With().Str("component", "local_store").Logger(),
	}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Upload writes reader to a uniquely named file and returns its public path.
func (s *Store) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "upload.bin"
	}
	stored := uuid.NewString() + "-" + base

	file, err := s.fs.OpenFile(filepath.Join(s.dir, stored), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		_ = s.fs.Remove(filepath.Join(s.dir, stored))
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	location := path.Join(s.prefix, stored)
	s.logger.Debug().Str("path", location).Msg("file stored on disk")
	return location, nil
}

// Delete removes the file behind a location returned by Upload. Missing files
// are not an error.
func (s *Store) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, ok := strings.CutPrefix(location, s.prefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return fmt.Errorf("%s: %w", location, ErrOutsideRoot)
	}

	if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
