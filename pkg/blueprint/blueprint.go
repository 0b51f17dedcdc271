// Package blueprint carries desired-configuration source documents and
// a YAML codec for them. Parsing a richer blueprint grammar is the job
// of front-end tooling; the engine only requires documents of already
// structured elements, and this codec is the reference encoding used by
// the CLI, by discover output, and by tests.
package blueprint

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/loom-cfg/loom/pkg/element"
)

// Blueprint is one source document: a named collection of element
// fragments. Decoding stamps each fragment's provenance with the
// blueprint name.
type Blueprint struct {
	// Name identifies the document (usually a file path).
	Name string

	// Elements are the fragments the document contains.
	Elements []element.Element
}

// Flatten concatenates the elements of several blueprints.
func Flatten(bps []Blueprint) []element.Element {
	var out []element.Element
	for _, bp := range bps {
		out = append(out, bp.Elements...)
	}
	return out
}

// document is the on-disk YAML shape.
type document struct {
	Types     []*element.ObjectType `yaml:"types,omitempty"`
	Instances []*element.Instance   `yaml:"instances,omitempty"`
}

// Decode parses YAML data into a blueprint named name. Every decoded
// element's Path is set to name.
func Decode(name string, data []byte) (Blueprint, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Blueprint{}, fmt.Errorf("decoding blueprint %s: %w", name, err)
	}

	bp := Blueprint{Name: name}
	for _, t := range doc.Types {
		t.Path = name
		bp.Elements = append(bp.Elements, t)
	}
	for _, i := range doc.Instances {
		i.Path = name
		bp.Elements = append(bp.Elements, i)
	}
	return bp, nil
}

// Encode renders elements as a YAML document. Types come first, then
// instances, both in input order.
func Encode(elems []element.Element) ([]byte, error) {
	var doc document
	for _, e := range elems {
		switch el := e.(type) {
		case *element.ObjectType:
			doc.Types = append(doc.Types, el)
		case *element.Instance:
			doc.Instances = append(doc.Instances, el)
		default:
			return nil, fmt.Errorf("unknown element kind %T", e)
		}
	}
	return yaml.Marshal(doc)
}
