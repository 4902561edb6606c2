package stored_file

import "errors"

var (
	// ErrImageDecode: the bytes passed sniffing but are not a decodable image.
	ErrImageDecode = errors.New("image decode failed")
	// ErrImageTooLarge: the header exceeds a decode ceiling; pixels were never decoded.
	ErrImageTooLarge = errors.New("image exceeds decode limits")
)

// ThumbnailFormat is the encoding of generated derivatives.
type ThumbnailFormat int

const (
	ThumbnailJPEG ThumbnailFormat = iota
	ThumbnailPNG
)

// ThumbnailFormatFor keeps PNG sources lossless and turns everything else
// into baseline JPEG.
func ThumbnailFormatFor(mimeType string) ThumbnailFormat {
	if mimeType == MimePNG {
		return ThumbnailPNG
	}
	return ThumbnailJPEG
}

func (f ThumbnailFormat) MimeType() string {
	if f == ThumbnailPNG {
		return MimePNG
	}
	return MimeJPEG
}
