// Package schema loads and validates the service's own OpenAPI document and
// serves it to clients that want to introspect the HTTP surface.
package schema

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Schema holds the validated OpenAPI document plus the raw bytes served at
// GET /openapi.yaml.
type Schema struct {
	doc *openapi3.T
	raw []byte
}

// Load parses and validates the OpenAPI document at path.
func Load(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: parsing %s: %w", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("schema: validating %s: %w", path, err)
	}

	return &Schema{doc: doc, raw: raw}, nil
}

// Raw returns the document bytes as loaded from disk.
func (s *Schema) Raw() []byte {
	return s.raw
}

// Title returns the API title from the info block.
func (s *Schema) Title() string {
	if s.doc.Info == nil {
		return ""
	}
	return s.doc.Info.Title
}

// OperationIDs returns every operationId in the document, sorted.
func (s *Schema) OperationIDs() []string {
	var ids []string
	for _, pathItem := range s.doc.Paths.Map() {
		for _, op := range pathItem.Operations() {
			if op.OperationID != "" {
				ids = append(ids, op.OperationID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// HasPath reports whether the document declares the given path.
func (s *Schema) HasPath(path string) bool {
	return s.doc.Paths.Find(path) != nil
}
