package layer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source classifies where a leaf layer's data comes from. Only local
// data is write-capable.
type Source string

const (
	SourceLocal   Source = "local"
	SourceService Source = "service"
	SourceJoin    Source = "join"
)

// Node is one node of the layer tree: a group (Children, no Dataset) or
// a leaf (Dataset, no Children). Nesting depth is unbounded.
type Node struct {
	Name     string `yaml:"name"`
	Dataset  string `yaml:"dataset,omitempty"`
	Source   Source `yaml:"source,omitempty"`
	Children []Node `yaml:"layers,omitempty"`
}

// MapDoc is the parsed map document: the root layer list of the active
// map.
type MapDoc struct {
	Name   string `yaml:"name"`
	Layers []Node `yaml:"layers"`
}

// LoadMapDoc reads and validates a map document from a YAML file.
func LoadMapDoc(path string) (*MapDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map document: %w", err)
	}
	var doc MapDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse map document %s: %w", path, err)
	}
	for i := range doc.Layers {
		if err := validateNode(&doc.Layers[i], doc.Layers[i].Name); err != nil {
			return nil, fmt.Errorf("map document %s: %w", path, err)
		}
	}
	return &doc, nil
}

func validateNode(n *Node, path string) error {
	isGroup := len(n.Children) > 0
	isLeaf := n.Dataset != ""
	if isGroup && isLeaf {
		return fmt.Errorf("layer %q is both a group and a dataset reference", path)
	}
	if !isGroup && !isLeaf {
		return fmt.Errorf("layer %q references no dataset and has no sublayers", path)
	}
	if n.Source == "" {
		n.Source = SourceLocal
	}
	switch n.Source {
	case SourceLocal, SourceService, SourceJoin:
	default:
		return fmt.Errorf("layer %q has unknown source %q", path, n.Source)
	}
	for i := range n.Children {
		if err := validateNode(&n.Children[i], path+"/"+n.Children[i].Name); err != nil {
			return err
		}
	}
	return nil
}
