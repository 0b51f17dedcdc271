package element

// Equal reports deep structural equality of two elements. Provenance
// (SourcePath) is excluded: two elements that differ only in which source
// document they came from are equal. Elements of different kinds are
// never equal.
func Equal(a, b Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.EID() != b.EID() {
		return false
	}
	switch ae := a.(type) {
	case *ObjectType:
		be, ok := b.(*ObjectType)
		if !ok {
			return false
		}
		return fieldsEqual(ae.Fields, be.Fields) && valueMapEqual(ae.Annotations, be.Annotations)
	case *Instance:
		be, ok := b.(*Instance)
		if !ok {
			return false
		}
		return ae.Type == be.Type && valueMapEqual(ae.Values, be.Values)
	default:
		return false
	}
}

// FieldDefEqual reports whether two field definitions are identical.
func FieldDefEqual(a, b FieldDef) bool {
	return a.Type == b.Type && valueMapEqual(a.Annotations, b.Annotations)
}

// ValueEqual reports deep structural equality of two field values.
// Numeric values are compared by magnitude so an int64 decoded from one
// source equals the equivalent float64 decoded from another.
func ValueEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case map[string]Value:
		bv, ok := b.(map[string]Value)
		return ok && valueMapEqual(av, bv)
	case []Value:
		bv, ok := b.([]Value)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func fieldsEqual(a, b map[string]FieldDef) bool {
	if len(a) != len(b) {
		return false
	}
	for name, af := range a {
		bf, ok := b[name]
		if !ok || !FieldDefEqual(af, bf) {
			return false
		}
	}
	return true
}

func valueMapEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !ValueEqual(av, bv) {
			return false
		}
	}
	return true
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
