package protocol

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	data, err := v.MarshalJSON()
	require.NoError(t, err)

	var out Value
	require.NoError(t, out.UnmarshalJSON(data), "literal: %s", data)
	return out
}

func TestValueRoundTripScalars(t *testing.T) {
	cases := []Value{
		String(""),
		String("plain ascii"),
		String("héllo — 日本語 🚀"),
		String("embedded \" quote and \\ backslash"),
		String("control \x00\x01\x1f chars"),
		String("separators , : { } [ ] \n\r\t"),
		Int(0),
		Int(-1),
		Int(1<<62 + 17),
		Float(0.5),
		Float(-273.15),
		Float(6.02e23),
		Bool(true),
		Bool(false),
		Value{}, // null
	}
	for _, v := range cases {
		require.Equal(t, v, roundTrip(t, v))
	}
}

func TestValueRoundTripVector(t *testing.T) {
	v := Vector([]float64{0, 1.5, -2.25, 1e-9, 12345678})
	require.Equal(t, v, roundTrip(t, v))

	empty := Vector([]float64{})
	got := roundTrip(t, empty)
	vec, ok := got.AsVector()
	require.True(t, ok)
	require.Empty(t, vec)
}

func TestValueRoundTripNestedMap(t *testing.T) {
	v := Map(map[string]Value{
		"name":   String("products"),
		"dim":    Int(128),
		"metric": String("L2"),
		"nested": Map(map[string]Value{
			"vec": Vector([]float64{1, 2, 3}),
		}),
	})
	require.Equal(t, v, roundTrip(t, v))
}

func TestValueMapEncodingIsDeterministic(t *testing.T) {
	v := Map(map[string]Value{"b": Int(2), "a": Int(1), "c": Int(3)})
	data, err := v.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":2,"c":3}`, string(data))
}

func TestValueNumberKinds(t *testing.T) {
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte("42")))
	require.Equal(t, KindInt, v.Kind())

	require.NoError(t, v.UnmarshalJSON([]byte("42.0")))
	require.Equal(t, KindFloat, v.Kind())

	require.NoError(t, v.UnmarshalJSON([]byte("1e3")))
	require.Equal(t, KindFloat, v.Kind())

	// Larger than int64: widened to float instead of failing.
	require.NoError(t, v.UnmarshalJSON([]byte("99999999999999999999")))
	require.Equal(t, KindFloat, v.Kind())
}

func TestValueAccessorKindMismatch(t *testing.T) {
	v := String("nope")
	_, ok := v.AsInt()
	require.False(t, ok)
	_, ok = v.AsVector()
	require.False(t, ok)

	// Ints widen to float, but not the reverse.
	f, ok := Int(7).AsFloat()
	require.True(t, ok)
	require.Equal(t, 7.0, f)
	_, ok = Float(7.5).AsInt()
	require.False(t, ok)
}

func TestValueUnmarshalRejectsMixedArray(t *testing.T) {
	var v Value
	err := v.UnmarshalJSON([]byte(`[1, "two", 3]`))
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestValueInsideStruct(t *testing.T) {
	// Values embed cleanly in larger JSON documents.
	var doc struct {
		Fields map[string]Value `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"fields":{"a":"x","b":[1,2],"c":{"d":true}}}`), &doc))

	s, ok := doc.Fields["a"].AsString()
	require.True(t, ok)
	require.Equal(t, "x", s)

	vec, ok := doc.Fields["b"].AsVector()
	require.True(t, ok)
	require.Equal(t, []float64{1, 2}, vec)

	m, ok := doc.Fields["c"].AsMap()
	require.True(t, ok)
	b, ok := m["d"].AsBool()
	require.True(t, ok)
	require.True(t, b)
}
