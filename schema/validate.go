package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/version"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id is usable as a schema identifier. Ids are used as
// a storage key segment so separators are not allowed.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Normalize fills defaults for optional keys that have one and puts values
// into the form they take after a JSON round trip: enum numbers become
// float64, extra keywords are compacted, and empty lists become nil.
func (d *Document) Normalize() {
	if d.Dialect == "" {
		d.Dialect = DefaultDialect
	}
	if d.RootType == "" {
		d.RootType = RootTypeObject
	}
	if len(d.RequiredFields) == 0 {
		d.RequiredFields = nil
	}
	d.Extra = canonicalExtra(d.Extra)
	for name, f := range d.Properties {
		f.Enum = canonicalValues(f.Enum)
		f.Extra = canonicalExtra(f.Extra)
		d.Properties[name] = f
	}
}

// Validate checks the document structure. All problems are collected and
// returned as a single ValidationError.
func Validate(d *Document) error {
	if d == nil {
		return errors.WrapInvalid(errors.NewValidationError("invalid schema document", "document is empty"),
			"Schema", "Validate", "structure check")
	}

	var reasons []string

	switch {
	case d.ID == "":
		reasons = append(reasons, "id is required")
	case !ValidID(d.ID):
		reasons = append(reasons, fmt.Sprintf("id %q must match %s", d.ID, idPattern.String()))
	}

	if d.Title == "" {
		reasons = append(reasons, "title is required")
	}

	if _, err := version.Parse(d.Version); err != nil {
		reasons = append(reasons, fmt.Sprintf("version %q must be MAJOR.MINOR.PATCH", d.Version))
	}

	if d.RootType != "" && d.RootType != RootTypeObject {
		reasons = append(reasons, fmt.Sprintf("root type must be %q, got %q", RootTypeObject, d.RootType))
	}

	if d.Properties == nil {
		reasons = append(reasons, "properties is required")
	}

	for _, name := range d.RequiredFields {
		if _, ok := d.Properties[name]; !ok {
			reasons = append(reasons, fmt.Sprintf("required field %q is not a declared property", name))
		}
	}

	names := make([]string, 0, len(d.Properties))
	for name := range d.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := d.Properties[name]
		if f.Minimum != nil && f.Maximum != nil && *f.Minimum > *f.Maximum {
			reasons = append(reasons, fmt.Sprintf("field %q has minimum greater than maximum", name))
		}
	}

	if d.ColumnarSchema != nil {
		for i, f := range d.ColumnarSchema.Fields {
			if f.Name == "" || f.Type.Name == "" {
				reasons = append(reasons, fmt.Sprintf("invalid arrow field definition at index %d", i))
			}
		}
	}

	if len(reasons) == 0 && usesJSONTypesOnly(d) {
		if err := compileCheck(d); err != nil {
			reasons = append(reasons, fmt.Sprintf("schema structure error: %v", err))
		}
	}

	if len(reasons) > 0 {
		return errors.WrapInvalid(errors.NewValidationError("invalid schema document", reasons...),
			"Schema", "Validate", "structure check")
	}
	return nil
}

var jsonTypes = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true,
	"object": true, "array": true, "null": true,
}

// usesJSONTypesOnly reports whether every property type is a JSON-Schema type.
// Columnar tags such as int64 are accepted in properties but cannot be compiled.
func usesJSONTypesOnly(d *Document) bool {
	for _, f := range d.Properties {
		if f.Type == "" {
			continue
		}
		for _, t := range strings.Split(f.Type, "|") {
			if !jsonTypes[t] {
				return false
			}
		}
	}
	return true
}

// compileCheck makes sure the document compiles as a JSON-Schema.
func compileCheck(d *Document) error {
	js, err := d.JSONSchema()
	if err != nil {
		return err
	}
	_, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(js))
	return err
}
