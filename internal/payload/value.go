package payload

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing decoded payload values.
// Only Null, String, Int, Float, Bool, List and Map implement this.
type Value interface {
	payloadValue() // Sealed - only these types implement it
}

// Null represents an explicit null field.
type Null struct{}

func (Null) payloadValue() {}

// String represents a string value.
type String string

func (String) payloadValue() {}

// Int represents an integer value.
type Int int64

func (Int) payloadValue() {}

// Float represents a floating point value.
// Kept separate from Int so 1 and 1.0 survive a round-trip unchanged.
type Float float64

func (Float) payloadValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) payloadValue() {}

// List is an ordered sequence whose entries are addressed by position.
type List []Value

func (List) payloadValue() {}

// Map is a mapping from field name to Value.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) payloadValue() {}

// SortedKeys returns keys in UTF-16 code unit order (RFC 8785).
// Go's sort.Strings uses UTF-8 byte order, which differs outside the BMP.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings by UTF-16 code units.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports whether a and b are structurally equal.
// Int(1) and Float(1) are different values.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		return val.Clone()
	case Map:
		return val.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of the list.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, v := range l {
		out[i] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}
