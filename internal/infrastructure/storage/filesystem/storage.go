package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "stored-file-api/internal/domain/stored_file"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640

	// incomingDir holds partial writes so that file directories only ever
	// contain complete variants.
	incomingDir = ".incoming"
)

type Storage struct {
	layout Layout
	log    *zap.Logger
}

func New(root string, logger *zap.Logger) (*Storage, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, incomingDir), dirPerm); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}

	return &Storage{layout: NewLayout(root), log: logger}, nil
}

func (s *Storage) Layout() Layout { return s.layout }

func (s *Storage) Path(id uuid.UUID, v domain.Variant) string { return s.layout.Path(id, v) }

func (s *Storage) WriteBlob(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error) {
	return s.write(ctx, s.layout.Path(id, domain.VariantOriginal), r)
}

func (s *Storage) WriteThumbnail(ctx context.Context, id uuid.UUID, v domain.Variant, r io.Reader) (int64, error) {
	if !v.IsThumbnail() {
		return 0, fmt.Errorf("variant %q is not a thumbnail", v)
	}
	return s.write(ctx, s.layout.Path(id, v), r)
}

// write is create-or-overwrite: temp file, fsync, atomic rename.
func (s *Storage) write(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.layout.Root(), incomingDir), "part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename %s: %w", path, err)
	}

	return n, nil
}

// Size reads the size from disk. fs.ErrNotExist is returned as is.
func (s *Storage) Size(id uuid.UUID, v domain.Variant) (int64, error) {
	info, err := os.Stat(s.layout.Path(id, v))
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", s.layout.Path(id, v), fs.ErrNotExist)
	}
	return info.Size(), nil
}

func (s *Storage) Open(id uuid.UUID, v domain.Variant) (*os.File, error) {
	return os.Open(s.layout.Path(id, v))
}

func (s *Storage) ReadBlob(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.layout.Path(id, domain.VariantOriginal))
}

// DeleteDir removes everything stored for id. A missing directory is not an error.
func (s *Storage) DeleteDir(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.layout.Dir(id)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if s.log != nil {
		s.log.Debug("file directory removed", zap.String("file_id", id.String()))
	}
	return nil
}
