package stored_file

import (
	"fmt"
	"strings"
)

type Variant string

const (
	VariantOriginal Variant = "original"
	Variant128      Variant = "thumb-128"
	Variant512      Variant = "thumb-512"
)

var Thumbnails = []Variant{Variant128, Variant512}

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case "", VariantOriginal:
		return VariantOriginal, nil
	case Variant128, Variant512:
		return v, nil
	default:
		return "", NewError(KindValidation, "parse_variant", fmt.Errorf("unknown variant %q", s))
	}
}

func (v Variant) IsThumbnail() bool { return v == Variant128 || v == Variant512 }

// Size is the longest-side target in pixels, zero for the original.
func (v Variant) Size() int {
	switch v {
	case Variant128:
		return 128
	case Variant512:
		return 512
	default:
		return 0
	}
}

// Ready reports whether the record marks this variant as generated.
func (f *StoredFile) Ready(v Variant) bool {
	switch v {
	case VariantOriginal:
		return f.Status == StatusReady
	case Variant128:
		return f.Thumb128Ready
	case Variant512:
		return f.Thumb512Ready
	default:
		return false
	}
}
