package schema

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/schemaregistry/errors"
)

// DataResult is the outcome of validating a data instance against a document.
type DataResult struct {
	Valid   bool     `json:"compatible"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// DataValidator validates data instances against a schema document.
type DataValidator interface {
	ValidateData(doc *Document, data any) (DataResult, error)
}

// JSONSchemaValidator validates data with gojsonschema.
type JSONSchemaValidator struct{}

// NewDataValidator returns the default DataValidator.
func NewDataValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

// ValidateData validates data against doc. An error is returned only when
// the document itself cannot be compiled.
func (JSONSchemaValidator) ValidateData(doc *Document, data any) (DataResult, error) {
	js, err := doc.JSONSchema()
	if err != nil {
		return DataResult{}, errors.WrapInvalid(err, "DataValidator", "ValidateData", "schema encode")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(js), gojsonschema.NewGoLoader(data))
	if err != nil {
		return DataResult{}, errors.WrapInvalid(err, "DataValidator", "ValidateData", "validation")
	}

	if result.Valid() {
		return DataResult{Valid: true, Message: "Data is valid"}, nil
	}

	out := DataResult{Message: "Data validation failed"}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, desc.String())
	}
	return out, nil
}
