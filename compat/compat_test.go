package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/schema"
)

func baseDoc() *schema.Document {
	return &schema.Document{
		ID:       "orders",
		Title:    "Order",
		RootType: schema.RootTypeObject,
		Version:  "1.0.0",
		Properties: map[string]schema.FieldSpec{
			"id":     {Type: "string"},
			"amount": {Type: "integer"},
			"status": {Type: "string", Enum: []any{"new", "paid", "void"}},
			"note":   {Type: "string"},
		},
		RequiredFields:            []string{"id", "amount"},
		AllowAdditionalProperties: true,
	}
}

func clone(t *testing.T, d *schema.Document) *schema.Document {
	t.Helper()
	c, err := d.Clone()
	require.NoError(t, err)
	return c
}

func TestCheckSelfCompatible(t *testing.T) {
	doc := baseDoc()
	report := Check(doc, doc)

	assert.True(t, report.Compatible)
	assert.False(t, report.HasBreakingChanges())
	assert.Equal(t, MessageCompatible, report.Message)
	assert.Nil(t, report.BreakingChanges)
}

func TestCheckDetectsEachRuleIndependently(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *schema.Document)
		want   []string
	}{
		{
			name:   "removed required field",
			mutate: func(d *schema.Document) { d.RequiredFields = []string{"id"} },
			want:   []string{"removed required field: amount"},
		},
		{
			name:   "removed property",
			mutate: func(d *schema.Document) { delete(d.Properties, "note") },
			want:   []string{"removed property: note"},
		},
		{
			name:   "narrowed type",
			mutate: func(d *schema.Document) { d.Properties["note"] = schema.FieldSpec{Type: "integer"} },
			want:   []string{"type change for field note: string -> integer"},
		},
		{
			name: "removed enum value",
			mutate: func(d *schema.Document) {
				d.Properties["status"] = schema.FieldSpec{Type: "string", Enum: []any{"new", "paid"}}
			},
			want: []string{"removed enum value: void for field status"},
		},
		{
			name:   "tightened additional properties",
			mutate: func(d *schema.Document) { d.AllowAdditionalProperties = false },
			want:   []string{"additionalProperties changed from true to false"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldDoc := baseDoc()
			newDoc := clone(t, oldDoc)
			tt.mutate(newDoc)

			report := Check(oldDoc, newDoc)
			assert.False(t, report.Compatible)
			assert.True(t, report.HasBreakingChanges())
			assert.Equal(t, MessageBreaking, report.Message)
			assert.Equal(t, tt.want, report.BreakingChanges)
		})
	}
}

func TestCheckReportsAllChanges(t *testing.T) {
	oldDoc := baseDoc()
	newDoc := clone(t, oldDoc)
	delete(newDoc.Properties, "id")
	newDoc.RequiredFields = []string{"amount"}
	newDoc.Properties["note"] = schema.FieldSpec{Type: "boolean"}
	newDoc.Properties["status"] = schema.FieldSpec{Type: "string", Enum: []any{"new"}}
	newDoc.AllowAdditionalProperties = false

	report := Check(oldDoc, newDoc)
	assert.Equal(t, []string{
		"removed required field: id",
		"removed property: id",
		"type change for field note: string -> boolean",
		"removed enum value: paid for field status",
		"removed enum value: void for field status",
		"additionalProperties changed from true to false",
	}, report.BreakingChanges)
}

func TestCheckCompatibleChanges(t *testing.T) {
	oldDoc := baseDoc()
	newDoc := clone(t, oldDoc)
	newDoc.Properties["created"] = schema.FieldSpec{Type: "string", Format: "date-time"}
	newDoc.Properties["status"] = schema.FieldSpec{Type: "string", Enum: []any{"new", "paid", "void", "refunded"}}
	newDoc.Properties["amount"] = schema.FieldSpec{Type: "number"}
	newDoc.RequiredFields = append(newDoc.RequiredFields, "created")

	report := Check(oldDoc, newDoc)
	assert.True(t, report.Compatible, "%v", report.BreakingChanges)
}

func TestSafeWidening(t *testing.T) {
	tests := []struct {
		from, to string
		safe     bool
	}{
		{"integer", "number", true},
		{"number", "integer", false},
		{"int32", "int64", true},
		{"int32", "float64", true},
		{"int64", "float64", true},
		{"float32", "float64", true},
		{"int64", "int32", false},
		{"float64", "float32", false},
		{"string", "number", false},
		{"boolean", "string", false},
		{"int32", "float32", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.safe, IsSafeWidening(tt.from, tt.to))

			oldDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"f": {Type: tt.from}}}
			newDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"f": {Type: tt.to}}}
			assert.Equal(t, tt.safe, Check(oldDoc, newDoc).Compatible)
		})
	}
}

func TestEnumGapRetainedByDefault(t *testing.T) {
	oldDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"s": {Type: "string"}}}
	newDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"s": {Type: "string", Enum: []any{"a"}}}}

	assert.True(t, Check(oldDoc, newDoc).Compatible)
	assert.True(t, Check(newDoc, oldDoc).Compatible)

	strict := NewChecker(WithStrictEnums())
	report := strict.Check(oldDoc, newDoc)
	assert.Equal(t, []string{"added enum restriction for field s"}, report.BreakingChanges)
	assert.True(t, strict.Check(newDoc, oldDoc).Compatible)
}

func TestEnumValuesCompareByEncoding(t *testing.T) {
	oldDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"n": {Enum: []any{float64(1), "1"}}}}
	newDoc := &schema.Document{Properties: map[string]schema.FieldSpec{"n": {Enum: []any{"1"}}}}

	report := Check(oldDoc, newDoc)
	assert.Equal(t, []string{"removed enum value: 1 for field n"}, report.BreakingChanges)
}

func TestCheckMalformedDocuments(t *testing.T) {
	assert.True(t, Check(nil, nil).Compatible)
	assert.True(t, Check(&schema.Document{}, &schema.Document{}).Compatible)

	report := Check(baseDoc(), &schema.Document{})
	assert.False(t, report.Compatible)
	assert.Contains(t, report.BreakingChanges, "removed property: id")
	assert.Contains(t, report.BreakingChanges, "removed required field: amount")

	assert.True(t, Check(&schema.Document{}, baseDoc()).Compatible)
}

func TestCheckOrdersScenario(t *testing.T) {
	v1 := &schema.Document{
		ID: "orders", Version: "1.0.0",
		Properties:     map[string]schema.FieldSpec{"id": {Type: "string"}},
		RequiredFields: []string{"id"},
	}
	v2 := &schema.Document{ID: "orders", Version: "1.1.0", Properties: map[string]schema.FieldSpec{}}

	report := Check(v1, v2)
	assert.Equal(t, []string{"removed required field: id", "removed property: id"}, report.BreakingChanges)
}
