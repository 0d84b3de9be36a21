package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/schemaregistry/schema"
)

var schemaExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

func isSchemaFile(name string) bool {
	return schemaExtensions[strings.ToLower(filepath.Ext(name))]
}

// expectedID derives the schema id from a file name: orders_v1.2.json -> orders.
func expectedID(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	id, _, _ := strings.Cut(stem, "_v")
	return id
}

// loadDocument reads a JSON or YAML schema file.
func loadDocument(path string) (*schema.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if raw, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

// loadPair loads the two documents compared by diff and check.
func loadPair(oldPath, newPath string) (*schema.Document, *schema.Document, error) {
	oldDoc, err := loadDocument(oldPath)
	if err != nil {
		return nil, nil, usageError(fmt.Errorf("load %s: %w", oldPath, err))
	}
	newDoc, err := loadDocument(newPath)
	if err != nil {
		return nil, nil, usageError(fmt.Errorf("load %s: %w", newPath, err))
	}
	return oldDoc, newDoc, nil
}
