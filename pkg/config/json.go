package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSON loads configuration from a JSON file.
// Unknown fields are rejected so a misspelled key does not silently fall
// back to its default.
func LoadJSON(path string, target interface{}) error {
	// #nosec G304 -- path comes from the operator's -config flag.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}
