// Package schema defines the registry's document model: the JSON-Schema
// document submitted by clients, the per-field specification, and the stored
// record that wraps a document with timestamps.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultDialect is the JSON-Schema dialect assumed when $schema is omitted.
const DefaultDialect = "http://json-schema.org/draft-07/schema#"

// RootTypeObject is the only root type accepted for registry documents.
const RootTypeObject = "object"

// Document is an immutable JSON-Schema document identified by (ID, Version).
type Document struct {
	ID                        string
	Dialect                   string
	Title                     string
	RootType                  string
	Properties                map[string]FieldSpec
	RequiredFields            []string
	AllowAdditionalProperties bool
	ColumnarSchema            *ColumnarSchema
	Version                   string

	// Extra holds top-level keys the model does not name so they survive a round trip.
	Extra map[string]json.RawMessage
}

// FieldSpec describes a single property.
type FieldSpec struct {
	// Type is the primitive type tag. A JSON type union such as
	// ["string","null"] is held as "string|null".
	Type    string
	Enum    []any
	Minimum *float64
	Maximum *float64
	Format  string

	// Extra holds keywords such as description or items.
	Extra map[string]json.RawMessage
}

// ColumnarSchema is a secondary, Arrow-style description of the fields.
type ColumnarSchema struct {
	Fields []ColumnarField `json:"fields"`
}

// ColumnarField is one (name, type, unit) triple of a ColumnarSchema.
type ColumnarField struct {
	Name string       `json:"name"`
	Type ColumnarType `json:"type"`
}

// ColumnarType names a columnar type with an optional unit.
type ColumnarType struct {
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

// Record is the stored form of a Document.
type Record struct {
	Schema    Document  `json:"schema"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord wraps doc with creation timestamps. Versions are immutable so
// UpdatedAt always equals CreatedAt.
func NewRecord(doc Document, now time.Time) *Record {
	now = now.UTC()
	return &Record{Schema: doc, CreatedAt: now, UpdatedAt: now}
}

// Ref returns "id@version", used in log lines and error messages.
func (d *Document) Ref() string {
	return d.ID + "@" + d.Version
}

// HasProperty reports whether name is a declared property.
func (d *Document) HasProperty(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Properties[name]
	return ok
}

var documentKeys = map[string]bool{
	"id": true, "$schema": true, "title": true, "type": true, "properties": true,
	"required": true, "additionalProperties": true, "arrow": true, "version": true,
}

type documentWire struct {
	ID                   string               `json:"id"`
	Dialect              string               `json:"$schema,omitempty"`
	Title                string               `json:"title"`
	Type                 string               `json:"type,omitempty"`
	Properties           map[string]FieldSpec `json:"properties"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
	Arrow                *ColumnarSchema      `json:"arrow,omitempty"`
	Version              string               `json:"version"`
}

// MarshalJSON encodes the document using JSON-Schema key names.
func (d Document) MarshalJSON() ([]byte, error) {
	addl := d.AllowAdditionalProperties
	wire := documentWire{
		ID:                   d.ID,
		Dialect:              d.Dialect,
		Title:                d.Title,
		Type:                 d.RootType,
		Properties:           d.Properties,
		Required:             d.RequiredFields,
		AdditionalProperties: &addl,
		Arrow:                d.ColumnarSchema,
		Version:              d.Version,
	}
	return mergeExtra(wire, d.Extra)
}

// UnmarshalJSON decodes a JSON-Schema document. Missing $schema and type take
// their defaults and additionalProperties defaults to false.
func (d *Document) UnmarshalJSON(data []byte) error {
	var wire documentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	extra, err := collectExtra(data, documentKeys)
	if err != nil {
		return err
	}

	*d = Document{
		ID:             wire.ID,
		Dialect:        wire.Dialect,
		Title:          wire.Title,
		RootType:       wire.Type,
		Properties:     wire.Properties,
		RequiredFields: wire.Required,
		ColumnarSchema: wire.Arrow,
		Version:        wire.Version,
		Extra:          extra,
	}
	if d.Dialect == "" {
		d.Dialect = DefaultDialect
	}
	if d.RootType == "" {
		d.RootType = RootTypeObject
	}
	if wire.AdditionalProperties != nil {
		d.AllowAdditionalProperties = *wire.AdditionalProperties
	}
	return nil
}

var fieldKeys = map[string]bool{
	"type": true, "enum": true, "minimum": true, "maximum": true, "format": true,
}

type fieldWire struct {
	Type    json.RawMessage `json:"type,omitempty"`
	Enum    []any           `json:"enum,omitempty"`
	Minimum *float64        `json:"minimum,omitempty"`
	Maximum *float64        `json:"maximum,omitempty"`
	Format  string          `json:"format,omitempty"`
}

// MarshalJSON encodes the field spec using JSON-Schema keyword names.
func (f FieldSpec) MarshalJSON() ([]byte, error) {
	wire := fieldWire{
		Enum:    f.Enum,
		Minimum: f.Minimum,
		Maximum: f.Maximum,
		Format:  f.Format,
	}
	if f.Type != "" {
		var err error
		if strings.Contains(f.Type, "|") {
			wire.Type, err = json.Marshal(strings.Split(f.Type, "|"))
		} else {
			wire.Type, err = json.Marshal(f.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return mergeExtra(wire, f.Extra)
}

// UnmarshalJSON decodes a field spec, accepting either a string or an array for type.
func (f *FieldSpec) UnmarshalJSON(data []byte) error {
	var wire fieldWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	extra, err := collectExtra(data, fieldKeys)
	if err != nil {
		return err
	}

	if len(wire.Enum) == 0 {
		wire.Enum = nil
	}
	*f = FieldSpec{
		Enum:    wire.Enum,
		Minimum: wire.Minimum,
		Maximum: wire.Maximum,
		Format:  wire.Format,
		Extra:   extra,
	}

	if len(wire.Type) == 0 || bytes.Equal(wire.Type, []byte("null")) {
		return nil
	}
	var single string
	if err := json.Unmarshal(wire.Type, &single); err == nil {
		f.Type = single
		return nil
	}
	var union []string
	if err := json.Unmarshal(wire.Type, &union); err != nil {
		return fmt.Errorf("field type must be a string or array of strings: %w", err)
	}
	f.Type = strings.Join(union, "|")
	return nil
}

// Equal reports whether two field specs encode identically.
func (f FieldSpec) Equal(o FieldSpec) bool {
	a, errA := json.Marshal(f)
	b, errB := json.Marshal(o)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// collectExtra returns the top-level keys of data not present in known.
func collectExtra(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return canonicalExtra(extra), nil
}

// canonicalExtra returns extra with every value in its encoded form, the
// compact text json.Marshal writes for a RawMessage.
func canonicalExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, raw := range extra {
		if b, err := json.Marshal(raw); err == nil {
			raw = b
		}
		out[k] = raw
	}
	return out
}

// canonicalValues returns values as encoding/json decodes them into any.
// Values that do not encode are kept as given.
func canonicalValues(values []any) []any {
	if len(values) == 0 {
		return nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return values
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return values
	}
	return out
}

// mergeExtra encodes v and adds extra keys that v does not already carry.
func mergeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return base, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, taken := merged[k]; !taken {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// JSONSchema returns the document as a plain JSON-Schema map, without the
// registry-only keys (id, version, arrow). It is what data validation runs against.
func (d *Document) JSONSchema() (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	delete(out, "id")
	delete(out, "version")
	delete(out, "arrow")
	return out, nil
}

// Clone returns a deep copy made through the JSON encoding.
func (d *Document) Clone() (*Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
