package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Int(1)
	var _ Value = Str("a")
	var _ Value = Bool(true)
	var _ Value = Token{ID: "t"}
	var _ Value = List{Int(1)}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInt, KindOf(Int(3)))
	assert.Equal(t, KindString, KindOf(Str("x")))
	assert.Equal(t, KindBool, KindOf(Bool(false)))
	assert.Equal(t, KindToken, KindOf(Token{ID: "t"}))
	assert.Equal(t, KindList, KindOf(List{}))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Int(1)))
	assert.False(t, Equal(Int(1), Str("1")))
	assert.True(t, Equal(List{Int(1), Str("a")}, List{Int(1), Str("a")}))
	assert.False(t, Equal(List{Int(1)}, List{Int(1), Int(2)}))
	assert.True(t, Equal(
		Token{ID: "t", Type: "troop", Props: Object{"s": Int(2)}},
		Token{ID: "t", Type: "troop", Props: Object{"s": Int(2)}},
	))
	assert.False(t, Equal(
		Token{ID: "t", Props: Object{"s": Int(2)}},
		Token{ID: "t", Props: Object{"s": Int(3)}},
	))
}

func TestObjectWithDoesNotMutate(t *testing.T) {
	orig := Object{"a": Int(1)}
	next := orig.With("a", Int(2))

	assert.Equal(t, Int(1), orig["a"])
	assert.Equal(t, Int(2), next["a"])
}

func TestObjectSortedKeysUTF16(t *testing.T) {
	obj := Object{"b": Int(1), "A": Int(2), "a": Int(3), "\U00010000": Int(4), "": Int(5)}
	assert.Equal(t, []string{"A", "a", "b", "\U00010000", ""}, obj.SortedKeys())
}

func TestUnmarshalValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"int", `42`, Int(42)},
		{"negative", `-7`, Int(-7)},
		{"string", `"hi"`, Str("hi")},
		{"bool", `true`, Bool(true)},
		{"list", `[1,"a",false]`, List{Int(1), Str("a"), Bool(false)}},
		{"token", `{"id":"t1","type":"troop","props":{"s":2}}`, Token{ID: "t1", Type: "troop", Props: Object{"s": Int(2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalValue([]byte(tt.in))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", FormatValue(got))
		})
	}
}

func TestUnmarshalValueRejects(t *testing.T) {
	for _, in := range []string{`1.5`, `null`, `{"type":"no-id"}`, ``} {
		_, err := UnmarshalValue([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestObjectJSONKeyOrder(t *testing.T) {
	data, err := json.Marshal(Object{"z": Int(1), "a": List{Str("x")}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"z":1}`, string(data))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo([]any{json.Number("3"), "s", true, map[string]any{"id": "t", "type": "x"}})
	require.NoError(t, err)
	assert.True(t, Equal(List{Int(3), Str("s"), Bool(true), Token{ID: "t", Type: "x"}}, v))

	_, err = FromGo(2.5)
	assert.Error(t, err)
	_, err = FromGo(nil)
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "[1,a,true,token:t]", FormatValue(List{Int(1), Str("a"), Bool(true), Token{ID: "t"}}))
}
