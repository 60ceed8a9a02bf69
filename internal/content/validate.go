package content

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrInvalidContent marks generated content that does not match its schema.
var ErrInvalidContent = errors.New("invalid content")

// Validator checks generated JSON against the schema for its content type.
type Validator struct {
	schemas map[ContentType]*gojsonschema.Schema
}

// NewValidator compiles the built-in schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[ContentType]*gojsonschema.Schema)}
	for _, ct := range ContentTypes {
		data, err := schemaFS.ReadFile("schemas/" + string(ct) + ".json")
		if err != nil {
			return nil, fmt.Errorf("reading schema %q: %w", ct, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %q: %w", ct, err)
		}
		v.schemas[ct] = schema
	}
	return v, nil
}

// Validate returns ErrInvalidContent, with the schema violations, when raw
// does not satisfy the schema for t.
func (v *Validator) Validate(t ContentType, raw json.RawMessage) error {
	schema, ok := v.schemas[t]
	if !ok {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidContent, t)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidContent, strings.Join(msgs, "; "))
}
