package codec

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"attacknav/internal/layer"
)

// Importer reads layer documents from a serialized format
type Importer interface {
	Parse(r io.Reader) (*layer.Document, error)
	Format() string
}

// Exporter writes layer documents to a serialized format
type Exporter interface {
	Export(doc *layer.Document, w io.Writer) error
	Format() string
}

// Codec both imports and exports
type Codec interface {
	Importer
	Exporter
	ContentType() string
}

// ForFormat returns the codec for a format name ("json", "yaml" or "yml")
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "", "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unsupported layer format %q", format)
}

// ForContentType picks a codec from an HTTP content type. Anything that is
// not YAML is treated as JSON.
func ForContentType(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return NewJSONCodec()
	}
	if strings.Contains(mediaType, "yaml") {
		return NewYAMLCodec()
	}
	return NewJSONCodec()
}

// ForPath picks a codec from a file extension
func ForPath(path string) (Codec, error) {
	return ForFormat(filepath.Ext(path))
}
