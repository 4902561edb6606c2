package ports

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

type Scanner interface {
	Scan(ctx context.Context, r io.Reader) (domain.ScanResult, error)
	Ping(ctx context.Context) error
}

type FileStorage interface {
	WriteBlob(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error)
	WriteThumbnail(ctx context.Context, id uuid.UUID, v domain.Variant, r io.Reader) (int64, error)
	ReadBlob(ctx context.Context, id uuid.UUID) ([]byte, error)
	Size(id uuid.UUID, v domain.Variant) (int64, error)
	Path(id uuid.UUID, v domain.Variant) string
	Open(id uuid.UUID, v domain.Variant) (*os.File, error)
	DeleteDir(ctx context.Context, id uuid.UUID) error
}

type MimeDetector interface {
	Detect(content []byte, fileName string) string
}

type Thumbnailer interface {
	GenerateSet(content []byte, targets []int, format domain.ThumbnailFormat) (map[int][]byte, error)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the UTC wall clock.
var SystemClock = ClockFunc(func() time.Time { return time.Now().UTC() })
