// Package jsonschema wraps JSON Schema compilation and validation
// behind a small API for document checks.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema, reusable across validations.
type Schema struct {
	compiled *jsonschema.Schema
}

// Compile compiles a JSON Schema document for repeated use.
func Compile(schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate validates a JSON string against the schema.
// Returns true if the JSON is valid, false otherwise.
// If the JSON itself cannot be parsed, it returns an error.
func (s *Schema) Validate(jsonStr string) (bool, error) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return false, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := s.compiled.Validate(jsonData); err != nil {
		// JSON is invalid according to the schema
		return false, nil
	}
	return true, nil
}

// ValidateWithErrors validates a JSON string against the schema.
// Returns true if the JSON is valid, false otherwise.
// Also returns a list of validation errors if the JSON is invalid.
func (s *Schema) ValidateWithErrors(jsonStr string) (bool, ValidationErrors) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return false, ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}

	if err := s.compiled.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return false, extractValidationErrors(validationErr)
		}
		return false, ValidationErrors{err}
	}
	return true, nil
}

// Validate validates a JSON string against a JSON Schema document,
// compiling the schema on each call. Use Compile plus Schema.Validate
// when the same schema checks many documents.
func Validate(jsonStr, schemaStr string) (bool, error) {
	schema, err := Compile(schemaStr)
	if err != nil {
		return false, err
	}
	return schema.Validate(jsonStr)
}

// ValidateWithErrors validates a JSON string against a JSON Schema
// document, compiling the schema on each call.
func ValidateWithErrors(jsonStr, schemaStr string) (bool, ValidationErrors) {
	schema, err := Compile(schemaStr)
	if err != nil {
		return false, ValidationErrors{err}
	}
	return schema.ValidateWithErrors(jsonStr)
}

// extractValidationErrors extracts all validation errors from a jsonschema.ValidationError
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errors ValidationErrors

	// Add the current error
	if err.Message != "" {
		errors = append(errors, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}

	// Add all child errors
	for _, childErr := range err.Causes {
		errors = append(errors, extractValidationErrors(childErr)...)
	}

	return errors
}
