package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/errors"
)

const ordersJSON = `{
	"id": "orders",
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "Order",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"amount": {"type": "number", "minimum": 0},
		"status": {"type": "string", "enum": ["new", "paid"]},
		"note": {"type": ["string", "null"], "description": "free text"}
	},
	"required": ["id", "amount"],
	"additionalProperties": true,
	"arrow": {"fields": [{"name": "amount", "type": {"name": "float64"}}]},
	"version": "1.0.0",
	"x-owner": "billing"
}`

func TestDocumentUnmarshal(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))

	assert.Equal(t, "orders", doc.ID)
	assert.Equal(t, "1.0.0", doc.Version)
	assert.Equal(t, "Order", doc.Title)
	assert.Equal(t, RootTypeObject, doc.RootType)
	assert.True(t, doc.AllowAdditionalProperties)
	assert.Equal(t, []string{"id", "amount"}, doc.RequiredFields)
	assert.Equal(t, "number", doc.Properties["amount"].Type)
	require.NotNil(t, doc.Properties["amount"].Minimum)
	assert.Equal(t, 0.0, *doc.Properties["amount"].Minimum)
	assert.Equal(t, []any{"new", "paid"}, doc.Properties["status"].Enum)
	assert.Equal(t, "string|null", doc.Properties["note"].Type)
	assert.JSONEq(t, `"free text"`, string(doc.Properties["note"].Extra["description"]))
	require.NotNil(t, doc.ColumnarSchema)
	assert.Equal(t, "float64", doc.ColumnarSchema.Fields[0].Type.Name)
	assert.JSONEq(t, `"billing"`, string(doc.Extra["x-owner"]))
	assert.Equal(t, "orders@1.0.0", doc.Ref())
}

func TestDocumentDefaults(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","title":"A","properties":{},"version":"1.0.0"}`), &doc))

	assert.Equal(t, DefaultDialect, doc.Dialect)
	assert.Equal(t, RootTypeObject, doc.RootType)
	assert.False(t, doc.AllowAdditionalProperties)
	assert.Nil(t, doc.Extra)
}

func TestDocumentRoundTrip(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, ordersJSON, string(raw))

	var again Document
	require.NoError(t, json.Unmarshal(raw, &again))
	assert.Equal(t, doc, again)
}

func TestFieldSpecEqual(t *testing.T) {
	min := 1.0
	a := FieldSpec{Type: "integer", Minimum: &min}
	b := FieldSpec{Type: "integer", Minimum: &min}
	c := FieldSpec{Type: "integer"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestFieldSpecRejectsBadType(t *testing.T) {
	var f FieldSpec
	assert.Error(t, json.Unmarshal([]byte(`{"type": 5}`), &f))
}

func TestJSONSchemaDropsRegistryKeys(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))

	js, err := doc.JSONSchema()
	require.NoError(t, err)
	assert.NotContains(t, js, "id")
	assert.NotContains(t, js, "version")
	assert.NotContains(t, js, "arrow")
	assert.Contains(t, js, "properties")
	assert.Equal(t, "billing", js["x-owner"])
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	rec := NewRecord(Document{ID: "a"}, now)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
}

func TestClone(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))

	c, err := doc.Clone()
	require.NoError(t, err)
	if diff := cmp.Diff(doc, *c); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}

	c.Properties["extra"] = FieldSpec{Type: "string"}
	assert.False(t, doc.HasProperty("extra"))
}

func TestNormalizeMatchesStoredForm(t *testing.T) {
	doc := Document{
		ID:             "orders",
		Title:          "Order",
		Version:        "1.0.0",
		RequiredFields: []string{},
		Properties: map[string]FieldSpec{
			"priority": {
				Type:  "integer",
				Enum:  []any{1, int64(2), "x"},
				Extra: map[string]json.RawMessage{"examples": json.RawMessage("[ 1,\n 2 ]")},
			},
			"note": {Type: "string", Enum: []any{}},
		},
		Extra: map[string]json.RawMessage{"x-tags": json.RawMessage(`{ "a" : "<b>" }`)},
	}
	doc.Normalize()

	assert.Equal(t, DefaultDialect, doc.Dialect)
	assert.Equal(t, RootTypeObject, doc.RootType)
	assert.Nil(t, doc.RequiredFields)
	assert.Equal(t, []any{1.0, 2.0, "x"}, doc.Properties["priority"].Enum)
	assert.Nil(t, doc.Properties["note"].Enum)
	assert.Equal(t, `[1,2]`, string(doc.Properties["priority"].Extra["examples"]))

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded Document
	require.NoError(t, json.Unmarshal(raw, &decoded))
	if diff := cmp.Diff(doc, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Document {
		var doc Document
		require.NoError(t, json.Unmarshal([]byte(ordersJSON), &doc))
		return &doc
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("columnar tags in properties", func(t *testing.T) {
		doc := valid()
		doc.Properties["count"] = FieldSpec{Type: "int64"}
		assert.NoError(t, Validate(doc))
	})

	t.Run("nil", func(t *testing.T) {
		assert.True(t, errors.IsValidationFailed(Validate(nil)))
	})

	tests := []struct {
		name   string
		mutate func(d *Document)
		reason string
	}{
		{"missing id", func(d *Document) { d.ID = "" }, "id is required"},
		{"bad id", func(d *Document) { d.ID = "a/b" }, `id "a/b" must match`},
		{"missing title", func(d *Document) { d.Title = "" }, "title is required"},
		{"bad version", func(d *Document) { d.Version = "1.0" }, `version "1.0"`},
		{"root type", func(d *Document) { d.RootType = "array" }, "root type must be"},
		{"nil properties", func(d *Document) { d.Properties = nil; d.RequiredFields = nil }, "properties is required"},
		{"required not declared", func(d *Document) { d.RequiredFields = append(d.RequiredFields, "ghost") }, `required field "ghost"`},
		{"bounds", func(d *Document) {
			lo, hi := 5.0, 1.0
			d.Properties["amount"] = FieldSpec{Type: "number", Minimum: &lo, Maximum: &hi}
		}, `field "amount" has minimum greater than maximum`},
		{"arrow field", func(d *Document) {
			d.ColumnarSchema.Fields = append(d.ColumnarSchema.Fields, ColumnarField{Name: "x"})
		}, "invalid arrow field definition at index 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := valid()
			tt.mutate(doc)
			err := Validate(doc)
			require.Error(t, err)
			assert.True(t, errors.IsValidationFailed(err))
			assert.True(t, errors.IsInvalid(err))

			found := false
			for _, r := range errors.Reasons(err) {
				if strings.HasPrefix(r, tt.reason) {
					found = true
				}
			}
			assert.True(t, found, "reasons %v should contain %q", errors.Reasons(err), tt.reason)
		})
	}
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("orders_v2-eu"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("orders/1"))
	assert.False(t, ValidID("orders.1"))
}
