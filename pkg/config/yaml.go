package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML loads configuration from a YAML file. Durations may be written
// as strings such as "5s". Unknown keys are rejected; an empty file leaves
// target untouched.
func LoadYAML(path string, target interface{}) error {
	// #nosec G304 -- path comes from the operator's -config flag.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return nil
}

// WriteYAML encodes config as YAML to w
func WriteYAML(w io.Writer, config interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}
