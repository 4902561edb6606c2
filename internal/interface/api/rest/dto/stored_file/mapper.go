package stored_file

import (
	domain "stored-file-api/internal/domain/stored_file"
)

func ToResponseStoredFile(fDomain domain.StoredFile) StoredFile {
	var f = StoredFile{
		FileID:     fDomain.UUID,
		ObjectType: fDomain.ObjectType.String(),
		FileName:   fDomain.FileName,
		SizeBytes:  fDomain.SizeBytes,
		Status:     fDomain.Status.String(),
		MimeType:   fDomain.MimeType,
		UploadedAt: fDomain.UploadedAt,
		UploadedBy: fDomain.UploadedBy,
		ScannedAt:  fDomain.ScannedAt,
		DeletedAt:  fDomain.DeletedAt,
		Thumbnails: Thumbnails{
			Thumb128: fDomain.Thumb128Ready,
			Thumb512: fDomain.Thumb512Ready,
		},
	}

	return f
}

func ToUploadResponse(fDomain domain.StoredFile) UploadResponse {
	return UploadResponse{
		FileID: fDomain.UUID,
		Status: fDomain.Status.String(),
	}
}
