package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrInvalid indicates the configuration document failed validation.
	ErrInvalid = errors.New("callscope: invalid configuration")
	// ErrSchemaSystem indicates the validator itself failed.
	ErrSchemaSystem = errors.New("callscope: schema validation system error")
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Validate checks a decoded configuration document against the embedded
// schema.
func Validate(doc map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaSystem, err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	return formatErrors(result, err)
}

// ValidateJSON validates a raw JSON document. YAML callers should decode
// first and use Validate.
func ValidateJSON(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaSystem, err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(b))
	return formatErrors(result, err)
}

func formatErrors(result *gojsonschema.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaSystem, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
