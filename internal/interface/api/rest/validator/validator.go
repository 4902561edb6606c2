package validator

import (
	"github.com/google/uuid"

	domain "stored-file-api/internal/domain/stored_file"
)

func IsUUID(s string) (bool, uuid.UUID) {
	id, err := uuid.Parse(s)
	return err == nil && id != uuid.Nil, id
}

// ValidateUploadForm checks the multipart fields that exist before any
// content is read. Size ceilings and content rules live in the domain.
func ValidateUploadForm(objectType, fileName string, size int64) map[string]string {
	errs := make(map[string]string)

	if _, err := domain.ParseObjectType(objectType); err != nil {
		errs["object_type"] = "object_type must be one of USER_AVATAR_IMAGE, CATEGORY_IMAGE, PART_IMAGE, PART_GALLERY_IMAGE, PART_ATTACHMENT"
	}

	switch {
	case fileName == "":
		errs["file"] = "file is required"
	case size <= 0:
		errs["file"] = "file is empty"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
