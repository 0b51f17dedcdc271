// Package element defines the canonical in-memory model for configuration
// objects: object types, instances of those types, and the identifiers
// that tie them together. Everything else in the engine (merge, validate,
// plan, apply, state) consumes this package; it depends on nothing but the
// standard library.
package element

// Value is an element field value: a scalar (string, int64, float64,
// bool, nil), a []Value, or a map[string]Value. Values arrive from
// blueprint decoding and from adapter discovery and are compared
// structurally, never by identity.
type Value = any

// Element is the closed sum of the two model variants, *ObjectType and
// *Instance. The unexported marker keeps the kind set sealed so every
// consumption site can switch exhaustively.
type Element interface {
	// EID returns the element's globally unique identifier.
	EID() ID

	// SourcePath returns the provenance of the element: the source
	// document it was read from. Provenance is used only for output
	// grouping and never participates in identity or equality.
	SourcePath() string

	isElement()
}

// FieldDef describes one field of an ObjectType.
type FieldDef struct {
	// Type references the field's type: another ObjectType in the model
	// or a builtin primitive.
	Type ID `yaml:"type" json:"type"`

	// Annotations carries field-level metadata (required, default, ...).
	Annotations map[string]Value `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ObjectType is a type definition: a named mapping from field name to
// field definition plus type-level annotations.
type ObjectType struct {
	ID          ID                  `yaml:"id" json:"id"`
	Path        string              `yaml:"path,omitempty" json:"path,omitempty"`
	Fields      map[string]FieldDef `yaml:"fields,omitempty" json:"fields,omitempty"`
	Annotations map[string]Value    `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Instance is a value of some ObjectType: a mapping from field name to
// concrete value plus a reference to its type.
type Instance struct {
	ID     ID               `yaml:"id" json:"id"`
	Path   string           `yaml:"path,omitempty" json:"path,omitempty"`
	Type   ID               `yaml:"type" json:"type"`
	Values map[string]Value `yaml:"values,omitempty" json:"values,omitempty"`
}

func (t *ObjectType) EID() ID            { return t.ID }
func (t *ObjectType) SourcePath() string { return t.Path }
func (t *ObjectType) isElement()         {}

func (i *Instance) EID() ID            { return i.ID }
func (i *Instance) SourcePath() string { return i.Path }
func (i *Instance) isElement()         {}

// Refs returns the element IDs the element's definition references:
// the field types of an ObjectType, or the type of an Instance.
// Builtin references are included; callers filter as needed.
func Refs(e Element) []ID {
	switch el := e.(type) {
	case *ObjectType:
		seen := make(map[ID]bool, len(el.Fields))
		refs := make([]ID, 0, len(el.Fields))
		for _, f := range el.Fields {
			if f.Type.IsZero() || seen[f.Type] {
				continue
			}
			seen[f.Type] = true
			refs = append(refs, f.Type)
		}
		return refs
	case *Instance:
		if el.Type.IsZero() {
			return nil
		}
		return []ID{el.Type}
	default:
		return nil
	}
}

// Clone returns a deep copy of the element. The copy shares no maps or
// slices with the original, so mutating one never aliases the other.
func Clone(e Element) Element {
	switch el := e.(type) {
	case *ObjectType:
		cp := &ObjectType{
			ID:          el.ID,
			Path:        el.Path,
			Annotations: cloneValueMap(el.Annotations),
		}
		if el.Fields != nil {
			cp.Fields = make(map[string]FieldDef, len(el.Fields))
			for name, f := range el.Fields {
				cp.Fields[name] = FieldDef{
					Type:        f.Type,
					Annotations: cloneValueMap(f.Annotations),
				}
			}
		}
		return cp
	case *Instance:
		return &Instance{
			ID:     el.ID,
			Path:   el.Path,
			Type:   el.Type,
			Values: cloneValueMap(el.Values),
		}
	default:
		return nil
	}
}

func cloneValueMap(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v Value) Value {
	switch vv := v.(type) {
	case map[string]Value:
		return cloneValueMap(vv)
	case []Value:
		cp := make([]Value, len(vv))
		for i, el := range vv {
			cp[i] = cloneValue(el)
		}
		return cp
	default:
		return v
	}
}
