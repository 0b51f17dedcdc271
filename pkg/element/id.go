package element

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// BuiltinNamespace is the reserved namespace for primitive types that
// require no adapter.
const BuiltinNamespace = "builtin"

// ID uniquely identifies an element across the whole model.
// The Adapter segment names the backend namespace that owns the element,
// Name is the element name within that namespace, and Sub optionally
// addresses a nested instance (dot-joined segments).
//
// ID is a value type with no reference fields so it can be used directly
// as a map key.
type ID struct {
	// Adapter is the owning backend namespace (e.g. "salesforce").
	Adapter string

	// Name is the element name within the namespace.
	Name string

	// Sub addresses a nested instance below Name. Empty for top-level
	// elements.
	Sub string
}

// NewID creates an ID from an adapter namespace, a name and optional
// nested segments.
func NewID(adapter, name string, sub ...string) ID {
	return ID{
		Adapter: adapter,
		Name:    name,
		Sub:     strings.Join(sub, "."),
	}
}

// String renders the ID as "adapter.name" or "adapter.name.sub".
func (id ID) String() string {
	if id.Sub == "" {
		return id.Adapter + "." + id.Name
	}
	return id.Adapter + "." + id.Name + "." + id.Sub
}

// IsZero reports whether the ID is the empty identifier.
func (id ID) IsZero() bool {
	return id.Adapter == "" && id.Name == "" && id.Sub == ""
}

// IsBuiltin reports whether the ID names a builtin primitive type.
func (id ID) IsBuiltin() bool {
	return id.Adapter == BuiltinNamespace
}

// ParseID parses the string form produced by String.
// The first segment is the adapter, the second the name, and any
// remaining segments form Sub.
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ID{}, fmt.Errorf("invalid element ID %q: want at least adapter.name", s)
	}
	return ID{
		Adapter: parts[0],
		Name:    parts[1],
		Sub:     strings.Join(parts[2:], "."),
	}, nil
}

// MarshalText renders the ID in its string form. Used by JSON encoding.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the string form.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalYAML renders the ID in its string form.
func (id ID) MarshalYAML() (any, error) {
	return id.String(), nil
}

// UnmarshalYAML parses the string form.
func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(s))
}

// Builtin primitive type IDs.
var (
	BuiltinString  = ID{Adapter: BuiltinNamespace, Name: "string"}
	BuiltinNumber  = ID{Adapter: BuiltinNamespace, Name: "number"}
	BuiltinBoolean = ID{Adapter: BuiltinNamespace, Name: "boolean"}
	BuiltinUnknown = ID{Adapter: BuiltinNamespace, Name: "unknown"}
)
