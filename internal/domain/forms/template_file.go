package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chw/forms/internal/formengine/wire"
)

// DecodeTemplate reads a wire template written as JSON or YAML. YAML uses the
// same field names as the JSON form.
func DecodeTemplate(data []byte) (wire.Template, error) {
	var t wire.Template
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return t, fmt.Errorf("%w: empty template", ErrInvalid)
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return t, fmt.Errorf("%w: decode JSON template: %v", ErrInvalid, err)
		}
		return t, nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return t, fmt.Errorf("%w: decode YAML template: %v", ErrInvalid, err)
	}
	// Round-trip through JSON so the wire types' own decoding applies.
	buf, err := json.Marshal(doc)
	if err != nil {
		return t, fmt.Errorf("%w: YAML template: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(buf, &t); err != nil {
		return t, fmt.Errorf("%w: YAML template: %v", ErrInvalid, err)
	}
	return t, nil
}

// IsYAML reports whether a content type names YAML.
func IsYAML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "yaml")
}
