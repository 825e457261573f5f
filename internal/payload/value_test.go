package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = List{String("a"), Int(1)}
	var _ Value = Map{"key": String("value")}
}

func TestMapSortedKeys(t *testing.T) {
	m := Map{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, m.SortedKeys())
}

func TestMapSortedKeysUTF16Order(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 but after it in UTF-16
	// (the emoji becomes a surrogate pair starting at 0xD83D).
	m := Map{
		"\U0001F600": Int(1),
		"\uFF61":     Int(2),
	}

	assert.Equal(t, []string{"\U0001F600", "\uFF61"}, m.SortedKeys())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"different string", String("a"), String("b"), false},
		{"int vs float", Int(1), Float(1), false},
		{"null vs null", Null{}, Null{}, true},
		{"null vs nil", Null{}, nil, false},
		{"nil vs nil", nil, nil, true},
		{"bool", Bool(true), Bool(true), true},
		{"list same", List{Int(1), String("x")}, List{Int(1), String("x")}, true},
		{"list order", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"list length", List{Int(1)}, List{Int(1), Int(1)}, false},
		{"map same", Map{"a": Int(1), "b": List{}}, Map{"b": List{}, "a": Int(1)}, true},
		{"map missing key", Map{"a": Int(1)}, Map{"b": Int(1)}, false},
		{
			"nested maps compare structurally",
			Map{"user": Map{"id": Int(7), "roles": List{String("admin")}}},
			Map{"user": Map{"id": Int(7), "roles": List{String("admin")}}},
			true,
		},
		{"map vs list", Map{}, List{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "Equal must be symmetric")
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Map{
		"user": Map{"id": Int(1)},
		"tags": List{String("a"), Map{"x": Int(1)}},
	}

	cp := orig.Clone()
	cp["user"].(Map)["id"] = Int(2)
	cp["tags"].(List)[1].(Map)["x"] = Int(9)
	cp["new"] = Bool(true)

	assert.Equal(t, Int(1), orig["user"].(Map)["id"])
	assert.Equal(t, Int(1), orig["tags"].(List)[1].(Map)["x"])
	assert.NotContains(t, orig, "new")
}

func TestCloneNil(t *testing.T) {
	var m Map
	var l List
	assert.Nil(t, m.Clone())
	assert.Nil(t, l.Clone())
	assert.Equal(t, Int(3), Clone(Int(3)))
}
