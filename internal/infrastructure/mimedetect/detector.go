package mimedetect

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	domain "stored-file-api/internal/domain/stored_file"
)

// DefaultReadLimit matches mimetype's own default header size.
const DefaultReadLimit = 3072

// textRefinements lists the extensions allowed to narrow a generic
// text/plain detection. Binary signatures are never overridden by a name.
var textRefinements = map[string]string{
	".csv": "text/csv",
	".md":  "text/markdown",
	".tsv": "text/tab-separated-values",
}

type Detector struct {
	readLimit int
}

func New(readLimit int) *Detector {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &Detector{readLimit: readLimit}
}

// Detect sniffs at most readLimit bytes of content. fileName only refines
// plain text; unknown content is application/octet-stream.
func (d *Detector) Detect(content []byte, fileName string) string {
	head := content
	if len(head) > d.readLimit {
		head = head[:d.readLimit]
	}
	if len(head) == 0 {
		return domain.MimeOctetStream
	}

	detected := baseType(mimetype.Detect(head).String())
	if detected == "" {
		return domain.MimeOctetStream
	}

	if detected == "text/plain" {
		if refined, ok := textRefinements[strings.ToLower(filepath.Ext(fileName))]; ok {
			return refined
		}
	}

	return detected
}

func baseType(s string) string {
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		mt, _, _ = strings.Cut(s, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
