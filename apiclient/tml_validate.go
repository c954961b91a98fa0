package apiclient

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValidateTML reports whether doc parses as well-formed YAML, the
// wire format TML documents are written in. It does not validate
// TML-specific schema, only that the document isn't malformed text a
// caller accidentally handed to TMLImport.
func ValidateTML(doc []byte) error {
	var out interface{}
	if err := yaml.Unmarshal(doc, &out); err != nil {
		return fmt.Errorf("apiclient: malformed tml document: %w", err)
	}
	return nil
}
