package stored_file

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type (
	ObjectType  string
	ContentKind string
)

const (
	ObjectTypeUserAvatar       ObjectType = "USER_AVATAR_IMAGE"
	ObjectTypeCategoryImage    ObjectType = "CATEGORY_IMAGE"
	ObjectTypePartImage        ObjectType = "PART_IMAGE"
	ObjectTypePartGalleryImage ObjectType = "PART_GALLERY_IMAGE"
	ObjectTypePartAttachment   ObjectType = "PART_ATTACHMENT"

	ContentKindImage ContentKind = "IMAGE"
	ContentKindBlob  ContentKind = "BLOB"
)

const (
	MaxFileNameBytes = 256

	MimePNG         = "image/png"
	MimeJPEG        = "image/jpeg"
	MimeWEBP        = "image/webp"
	MimeGIF         = "image/gif"
	MimeOctetStream = "application/octet-stream"
)

type Rules struct {
	Kind     ContentKind
	MaxBytes int64
	Allowed  map[string]struct{}
}

var (
	imageMimes = set(MimePNG, MimeJPEG, MimeWEBP)

	attachmentMimes = set(
		"application/pdf",
		"text/plain",
		"text/csv",
		"application/zip",
		MimePNG, MimeJPEG, MimeWEBP, MimeGIF,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.oasis.opendocument.spreadsheet",
	)

	imageExtensions = map[string]string{
		".png":  MimePNG,
		".jpg":  MimeJPEG,
		".jpeg": MimeJPEG,
		".webp": MimeWEBP,
	}

	rules = map[ObjectType]Rules{
		ObjectTypeUserAvatar:       {Kind: ContentKindImage, MaxBytes: 5 << 20, Allowed: imageMimes},
		ObjectTypeCategoryImage:    {Kind: ContentKindImage, MaxBytes: 10 << 20, Allowed: imageMimes},
		ObjectTypePartImage:        {Kind: ContentKindImage, MaxBytes: 10 << 20, Allowed: imageMimes},
		ObjectTypePartGalleryImage: {Kind: ContentKindImage, MaxBytes: 10 << 20, Allowed: imageMimes},
		ObjectTypePartAttachment:   {Kind: ContentKindBlob, MaxBytes: 50 << 20, Allowed: attachmentMimes},
	}
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func ParseObjectType(s string) (ObjectType, error) {
	ot := ObjectType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rules[ot]; !ok {
		return "", NewError(KindValidation, "parse_object_type", fmt.Errorf("%w: %q", ErrUnknownObjectType, s))
	}
	return ot, nil
}

func (ot ObjectType) Valid() bool {
	_, ok := rules[ot]
	return ok
}

func (ot ObjectType) Rules() Rules { return rules[ot] }

func (ot ObjectType) ContentKind() ContentKind { return rules[ot].Kind }

func (ot ObjectType) MaxBytes() int64 { return rules[ot].MaxBytes }

func (ot ObjectType) String() string { return string(ot) }

// ValidateUpload checks the request shape before anything is persisted.
func (ot ObjectType) ValidateUpload(fileName string, size int64) error {
	const op = "validate_upload"

	if !ot.Valid() {
		return NewError(KindValidation, op, fmt.Errorf("%w: %q", ErrUnknownObjectType, string(ot)))
	}
	if strings.TrimSpace(fileName) == "" {
		return NewError(KindValidation, op, ErrEmptyFileName)
	}
	if len(fileName) > MaxFileNameBytes || !utf8.ValidString(fileName) {
		return NewError(KindValidation, op, fmt.Errorf("%w: max %d bytes", ErrFileNameTooLong, MaxFileNameBytes))
	}
	if size < 1 {
		return NewError(KindValidation, op, ErrEmptyContent)
	}
	if size > ot.MaxBytes() {
		return NewError(KindValidation, op, fmt.Errorf("%w: %d > %d bytes", ErrContentTooLarge, size, ot.MaxBytes()))
	}
	return nil
}

// ValidateContent checks a detected MIME type against the object type's
// allow-list. Image kinds also require the file extension to agree with it.
func (ot ObjectType) ValidateContent(mimeType, fileName string) error {
	const op = "validate_content"

	r, ok := rules[ot]
	if !ok {
		return NewError(KindRejected, op, fmt.Errorf("%w: %q", ErrUnknownObjectType, string(ot)))
	}
	if _, ok = r.Allowed[mimeType]; !ok {
		return NewError(KindRejected, op, fmt.Errorf("%w: %s for %s", ErrMimeNotAllowed, mimeType, ot))
	}
	if r.Kind != ContentKindImage {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if imageExtensions[ext] != mimeType {
		return NewError(KindRejected, op, fmt.Errorf("%w: %q is %s", ErrExtensionMismatch, ext, mimeType))
	}
	return nil
}

// DecodeLimits bound what the thumbnailer may decode. They are checked
// against the image header, before pixel data is allocated.
type DecodeLimits struct {
	MaxDimension   int
	MaxPixels      int64
	MaxDecodeBytes int64
	MaxAspectRatio float64
}

var DefaultDecodeLimits = DecodeLimits{
	MaxDimension:   10_000,
	MaxPixels:      40_000_000,
	MaxDecodeBytes: 160 << 20,
	MaxAspectRatio: 20,
}
