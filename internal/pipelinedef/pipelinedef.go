// Package pipelinedef loads the YAML pipeline definitions the embedder
// surface builds a running pipeline from: a named set of segments, each
// naming the registered factory that builds its Runnable and whether it
// starts enabled.
package pipelinedef

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// SegmentDef describes one segment within a pipeline definition file.
type SegmentDef struct {
	Name    string `yaml:"name"`
	Rank    uint16 `yaml:"rank"`
	Factory string `yaml:"factory"`
	Enabled bool   `yaml:"enabled"`
}

// ManifoldDef describes one manifold port a pipeline definition declares.
type ManifoldDef struct {
	PortName string `yaml:"port_name"`
}

// Definition is the full shape of one pipeline definition file.
type Definition struct {
	Name               string        `yaml:"name"`
	ExecutorID         uint16        `yaml:"executor_id"`
	PipelineInstanceID uint32        `yaml:"pipeline_instance_id"`
	Segments           []SegmentDef  `yaml:"segments"`
	Manifolds          []ManifoldDef `yaml:"manifolds"`
}

// Load reads and parses a pipeline definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipelinedef: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a pipeline definition from raw YAML bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("pipelinedef: parsing: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("pipelinedef: definition has no name")
	}
	seen := make(map[string]bool, len(def.Segments))
	for _, seg := range def.Segments {
		if seg.Name == "" {
			return nil, fmt.Errorf("pipelinedef: %s: segment with empty name", def.Name)
		}
		if seen[seg.Name] {
			return nil, fmt.Errorf("pipelinedef: %s: duplicate segment name %q", def.Name, seg.Name)
		}
		seen[seg.Name] = true
		if seg.Factory == "" {
			return nil, fmt.Errorf("pipelinedef: %s: segment %q has no factory", def.Name, seg.Name)
		}
	}
	return &def, nil
}

// EnabledSegments returns the names of every segment marked enabled in
// the definition.
func (d *Definition) EnabledSegments() []string {
	out := make([]string, 0, len(d.Segments))
	for _, seg := range d.Segments {
		if seg.Enabled {
			out = append(out, seg.Name)
		}
	}
	return out
}

// Segment looks up one segment definition by name.
func (d *Definition) Segment(name string) (SegmentDef, bool) {
	for _, seg := range d.Segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return SegmentDef{}, false
}
