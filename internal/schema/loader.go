package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a schema document from path and builds the graph.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return g, nil
}

// Parse builds a graph from a YAML document. JSON is accepted as well since
// it is a subset of YAML.
func Parse(data []byte) (*Graph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("parse schema: no models declared")
	}
	return NewBuilder().Add(doc.Models...).Build()
}
