package stored_file

import (
	"time"

	"github.com/google/uuid"
)

type (
	Thumbnails struct {
		Thumb128 bool `json:"thumb_128"`
		Thumb512 bool `json:"thumb_512"`
	}
	StoredFile struct {
		FileID     uuid.UUID  `json:"file_id"`
		ObjectType string     `json:"object_type"`
		FileName   string     `json:"file_name"`
		SizeBytes  uint64     `json:"size_bytes"`
		Status     string     `json:"status"`
		MimeType   *string    `json:"mime_type"`
		UploadedAt time.Time  `json:"uploaded_at"`
		UploadedBy uuid.UUID  `json:"uploaded_by"`
		ScannedAt  *time.Time `json:"scanned_at,omitempty"`
		DeletedAt  *time.Time `json:"deleted_at,omitempty"`
		Thumbnails Thumbnails `json:"thumbnails"`
	}
	UploadResponse struct {
		FileID uuid.UUID `json:"file_id"`
		Status string    `json:"status"`
	}
)
