package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"attacknav/internal/layer"
)

// JSONCodec handles layer documents as JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the HTTP media type
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Parse reads a layer document from JSON
func (c *JSONCodec) Parse(r io.Reader) (*layer.Document, error) {
	var doc layer.Document
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &doc, nil
}

// Export writes a layer document as indented JSON
func (c *JSONCodec) Export(doc *layer.Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
