package stored_file

type UploadRequest struct {
	ObjectType ObjectType
	FileName   string
	Content    []byte
	UploadedBy UUID
}

type DeleteResult string

const (
	DeleteResultDeleted  DeleteResult = "DELETED"
	DeleteResultNotFound DeleteResult = "NOT_FOUND"
	DeleteResultFailed   DeleteResult = "FAILED"
)

// ResolvedFile locates the bytes to serve for a variant. Variant is the one
// actually served, which is the original after a fallback.
type ResolvedFile struct {
	FileID    UUID
	Variant   Variant
	Path      string
	MimeType  string
	SizeBytes int64
	FileName  string
}
