package testutil

import (
	"encoding/json"

	"github.com/c360/schemaregistry/schema"
)

// OrdersV1 returns orders@1.0.0 with a required string id.
func OrdersV1() *schema.Document {
	return &schema.Document{
		ID:       "orders",
		Dialect:  schema.DefaultDialect,
		Title:    "Order",
		RootType: schema.RootTypeObject,
		Version:  "1.0.0",
		Properties: map[string]schema.FieldSpec{
			"id": {Type: "string"},
		},
		RequiredFields: []string{"id"},
	}
}

// OrdersV1_1 returns orders@1.1.0, which adds an optional numeric amount.
func OrdersV1_1() *schema.Document {
	doc := OrdersV1()
	doc.Version = "1.1.0"
	doc.Properties["amount"] = schema.FieldSpec{Type: "number"}
	return doc
}

// OrdersBreaking returns orders at version v with the id field removed.
func OrdersBreaking(v string) *schema.Document {
	doc := OrdersV1()
	doc.Version = v
	doc.Properties = map[string]schema.FieldSpec{}
	doc.RequiredFields = nil
	return doc
}

// Document returns a minimal valid document for id at version v.
func Document(id, v string) *schema.Document {
	return &schema.Document{
		ID:         id,
		Dialect:    schema.DefaultDialect,
		Title:      id,
		RootType:   schema.RootTypeObject,
		Version:    v,
		Properties: map[string]schema.FieldSpec{"id": {Type: "string"}},
	}
}

// MustJSON encodes v or panics.
func MustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
