package services

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "stored-file-api/internal/domain/stored_file"
)

const defaultFileName = "file"

// sanitizeFileName makes the client-supplied name safe to display and store:
// NFC, no directory components, no control characters, at most
// MaxFileNameBytes. It is never used as a path on disk.
func sanitizeFileName(original string) string {
	s := strings.TrimSpace(original)
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(s)

	if s == "." || s == ".." || s == "/" || s == "" {
		return defaultFileName
	}

	t := transform.Chain(norm.NFC, transform.RemoveFunc(isControl))
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, ".") == "" {
		return defaultFileName
	}

	ext := path.Ext(s)
	base := strings.TrimSuffix(s, ext)
	for len(base)+len(ext) > domain.MaxFileNameBytes && base != "" {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	if base == "" {
		base = defaultFileName
	}

	return base + ext
}

func isControl(r rune) bool { return r == utf8.RuneError || unicode.IsControl(r) }
