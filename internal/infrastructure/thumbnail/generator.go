package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	domain "stored-file-api/internal/domain/stored_file"
)

const jpegQuality = 85

type Generator struct {
	limits domain.DecodeLimits
}

func New(limits domain.DecodeLimits) *Generator {
	return &Generator{limits: limits}
}

// Generate renders one derivative whose longest side is at most target.
func (g *Generator) Generate(content []byte, target int, format domain.ThumbnailFormat) ([]byte, error) {
	out, err := g.GenerateSet(content, []int{target}, format)
	if err != nil {
		return nil, err
	}
	return out[target], nil
}

// GenerateSet decodes content once and renders a derivative per target.
// Images are scaled down uniformly and never enlarged.
func (g *Generator) GenerateSet(content []byte, targets []int, format domain.ThumbnailFormat) (map[int][]byte, error) {
	if err := g.checkHeader(content); err != nil {
		return nil, err
	}

	src, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}

	out := make(map[int][]byte, len(targets))
	for _, target := range targets {
		if target <= 0 {
			return nil, fmt.Errorf("invalid thumbnail size %d", target)
		}
		dst := imaging.Fit(src, target, target, imaging.Lanczos)

		var buf bytes.Buffer
		if err = encode(&buf, dst, format); err != nil {
			return nil, fmt.Errorf("encode %dpx thumbnail: %w", target, err)
		}
		out[target] = buf.Bytes()
	}

	return out, nil
}

func encode(buf *bytes.Buffer, img image.Image, format domain.ThumbnailFormat) error {
	if format == domain.ThumbnailPNG {
		return imaging.Encode(buf, img, imaging.PNG)
	}
	return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
}

// checkHeader enforces the decode ceilings from the image header alone.
func (g *Generator) checkHeader(content []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrImageDecode, err)
	}

	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: empty dimensions %dx%d", domain.ErrImageDecode, w, h)
	}

	long, short := max(w, h), min(w, h)
	pixels := int64(w) * int64(h)
	switch {
	case g.limits.MaxDimension > 0 && long > g.limits.MaxDimension:
		return fmt.Errorf("%w: %dx%d exceeds %dpx", domain.ErrImageTooLarge, w, h, g.limits.MaxDimension)
	case g.limits.MaxPixels > 0 && pixels > g.limits.MaxPixels:
		return fmt.Errorf("%w: %d pixels exceeds %d", domain.ErrImageTooLarge, pixels, g.limits.MaxPixels)
	case g.limits.MaxDecodeBytes > 0 && pixels*4 > g.limits.MaxDecodeBytes:
		return fmt.Errorf("%w: %d decoded bytes exceeds %d", domain.ErrImageTooLarge, pixels*4, g.limits.MaxDecodeBytes)
	case g.limits.MaxAspectRatio > 0 && float64(long)/float64(short) > g.limits.MaxAspectRatio:
		return fmt.Errorf("%w: aspect ratio %dx%d exceeds %.0f:1", domain.ErrImageTooLarge, w, h, g.limits.MaxAspectRatio)
	}

	return nil
}
