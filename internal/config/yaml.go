package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/folio/internal/schema"
)

// LoadYAMLFile loads a YAML schema file.
func LoadYAMLFile(path string) (*schema.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML schema. Unknown keys are rejected.
func ParseYAML(data []byte) (*schema.Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	return Build(&f)
}
