// Package validator provides JSON schema validation for chart tool payloads.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates chart specifications produced by the visualizer.
type Validator struct {
	chartSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Summary joins all error messages into one line.
func (r *ValidationResult) Summary() string {
	if r.Valid {
		return ""
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return strings.Join(parts, "; ")
}

// New creates a new validator with the embedded chart schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("chart.json", strings.NewReader(chartSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add chart schema: %w", err)
	}

	chartSchema, err := compiler.Compile("chart.json")
	if err != nil {
		return nil, fmt.Errorf("compile chart schema: %w", err)
	}

	return &Validator{chartSchema: chartSchema}, nil
}

// MustNew is New for package-level initialisation. The embedded schema is
// static, so a failure here is a programming error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateChart validates a decoded chart payload.
func (v *Validator) ValidateChart(chart map[string]interface{}) *ValidationResult {
	return v.validate(v.chartSchema, chart)
}

// ValidateChartJSON validates a JSON-encoded chart payload.
func (v *Validator) ValidateChartJSON(data []byte) *ValidationResult {
	var chart interface{}
	if err := json.Unmarshal(data, &chart); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}
	return v.validate(v.chartSchema, chart)
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}

	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}

	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}

	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}

	return errors
}

// Embedded JSON schemas

const chartSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "chart.json",
  "title": "Chart Specification",
  "description": "Payload accepted by the chart tool",
  "type": "object",
  "required": ["chart_type", "title", "labels", "values"],
  "properties": {
    "chart_type": {
      "type": "string",
      "enum": ["bar", "horizontal_bar", "pie", "line"]
    },
    "title": {
      "type": "string",
      "maxLength": 200
    },
    "labels": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 50
    },
    "values": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 1,
      "maxItems": 50
    },
    "unit": {
      "type": "string"
    },
    "filename": {
      "type": "string",
      "minLength": 1
    }
  }
}`
