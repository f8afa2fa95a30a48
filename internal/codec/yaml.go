package codec

import (
	"fmt"
	"io"

	"attacknav/internal/layer"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles layer documents as YAML. Field names match the JSON
// form so documents convert losslessly.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the HTTP media type
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// Parse reads a layer document from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*layer.Document, error) {
	var doc layer.Document
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if doc.Techniques == nil {
		doc.Techniques = []layer.TechniqueEntry{}
	}
	return &doc, nil
}

// Export writes a layer document as YAML
func (c *YAMLCodec) Export(doc *layer.Document, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
