package filesystem

import (
	"path/filepath"

	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

const (
	originalName = "original"
	thumb128Name = "thumb-128"
	thumb512Name = "thumb-512"
)

// Layout maps a file identifier to its directory:
//
//	{root}/{fileId}/original
//	{root}/{fileId}/thumb-128
//	{root}/{fileId}/thumb-512
//
// Only the generated UUID becomes a path component.
type Layout struct {
	root string
}

func NewLayout(root string) Layout { return Layout{root: filepath.Clean(root)} }

func (l Layout) Root() string { return l.root }

func (l Layout) Dir(id uuid.UUID) string {
	return filepath.Join(l.root, id.String())
}

func (l Layout) Path(id uuid.UUID, v domain.Variant) string {
	switch v {
	case domain.Variant128:
		return filepath.Join(l.Dir(id), thumb128Name)
	case domain.Variant512:
		return filepath.Join(l.Dir(id), thumb512Name)
	default:
		return filepath.Join(l.Dir(id), originalName)
	}
}
