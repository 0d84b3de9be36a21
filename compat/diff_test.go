package compat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/schemaregistry/schema"
)

func TestDiffIdentical(t *testing.T) {
	doc := baseDoc()
	d := Diff(doc, doc)
	assert.True(t, d.Empty())
	assert.Nil(t, d.RequiredChanges)
}

func TestDiff(t *testing.T) {
	oldDoc := baseDoc()
	newDoc := clone(t, oldDoc)
	delete(newDoc.Properties, "note")
	newDoc.Properties["created"] = schema.FieldSpec{Type: "string", Format: "date-time"}
	newDoc.Properties["amount"] = schema.FieldSpec{Type: "number"}
	newDoc.Properties["status"] = schema.FieldSpec{Type: "string", Enum: []any{"new", "paid"}}
	newDoc.Properties["id"] = schema.FieldSpec{Type: "string", Format: "uuid"}
	newDoc.RequiredFields = []string{"id", "created"}

	d := Diff(oldDoc, newDoc)

	assert.False(t, d.Empty())
	assert.Equal(t, []string{"created"}, d.AddedFields)
	assert.Equal(t, []string{"note"}, d.RemovedFields)
	assert.Equal(t, []string{"amount", "id", "status"}, d.ModifiedFields)
	assert.Equal(t, []TypeChange{{Field: "amount", OldType: "integer", NewType: "number"}}, d.TypeChanges)
	assert.Equal(t, []EnumChange{{
		Field:   "status",
		OldEnum: []any{"new", "paid", "void"},
		NewEnum: []any{"new", "paid"},
	}}, d.EnumChanges)
	assert.Equal(t, &RequiredChanges{Added: []string{"created"}, Removed: []string{"amount"}}, d.RequiredChanges)
}

func TestDiffEnumAddedFromNothing(t *testing.T) {
	oldDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"s": {Type: "string"}}}
	newDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"s": {Type: "string", Enum: []any{"a"}}}}

	d := Diff(oldDoc, newDoc)
	assert.Equal(t, []EnumChange{{Field: "s", OldEnum: []any{}, NewEnum: []any{"a"}}}, d.EnumChanges)
	assert.Empty(t, d.TypeChanges)
}

func TestDiffJSONShape(t *testing.T) {
	raw, err := json.Marshal(Diff(nil, nil))
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"added_fields": [],
		"removed_fields": [],
		"modified_fields": [],
		"type_changes": [],
		"enum_changes": []
	}`, string(raw))
}
