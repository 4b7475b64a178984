package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmeticIntStaysInt(t *testing.T) {
	r, err := Add(NewInt(2), NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, Int, r.Kind)
	assert.Equal(t, int64(5), r.AsInt())
}

func TestArithmeticFloatPromotion(t *testing.T) {
	r, err := Mul(NewInt(2), NewFloat(1.5))
	require.NoError(t, err)
	assert.Equal(t, Float, r.Kind)
	assert.InDelta(t, 3.0, r.AsFloat(), 1e-9)
}

func TestIntOverflowErrors(t *testing.T) {
	_, err := Add(NewInt(math.MaxInt64), NewInt(1))
	require.Error(t, err)
}

func TestDivisionByZeroAlwaysErrors(t *testing.T) {
	_, err := Div(NewInt(1), NewInt(0))
	require.Error(t, err)
	_, err = Div(NewFloat(1.0), NewFloat(0.0))
	require.Error(t, err)
	_, err = Div(NewBool(true), NewBool(false))
	require.Error(t, err)
}

func TestStringConcatenationFallback(t *testing.T) {
	r, err := Add(NewString("foo"), NewString("bar"))
	require.NoError(t, err)
	assert.Equal(t, "foobar", r.AsString())

	_, err = Sub(NewString("foo"), NewString("bar"))
	require.Error(t, err)
}

func TestStringNumericCoercion(t *testing.T) {
	r, err := Add(NewString("2"), NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.AsInt())

	r, err = Add(NewString("2.5"), NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, Float, r.Kind)
}

func TestEqualityNumericStringPromotion(t *testing.T) {
	assert.True(t, NewString("3").Equal(NewInt(3)))
	assert.True(t, NewInt(3).Equal(NewFloat(3.0)))
	assert.False(t, NewString("abc").Equal(NewInt(3)))
}

func TestBooleanCoercionEmptyStringIsTrue(t *testing.T) {
	assert.True(t, NewString("").Truthy())
	assert.False(t, NewNull().Truthy())
	assert.False(t, NewInt(0).Truthy())
	assert.True(t, NewInt(1).Truthy())
	assert.False(t, NewClosure(&ClosureValue{}).Truthy())
}

func TestOrderingIncomparable(t *testing.T) {
	_, ok := Compare(NewBool(true), NewInt(1))
	assert.False(t, ok)
	o, ok := Compare(NewInt(1), NewInt(2))
	require.True(t, ok)
	assert.Equal(t, Less, o)
}

func TestToStringFromJSONRoundTrip(t *testing.T) {
	cases := []Value{
		NewInt(42),
		NewFloat(3.5),
		NewBool(true),
		NewString("hello"),
		NewArray([]Value{NewInt(1), NewString("x")}),
		NewObject(map[string]Value{"a": NewInt(1), "b": NewString("y")}, []string{"a", "b"}),
	}
	for _, c := range cases {
		rt, err := FromJSON([]byte(c.String()))
		require.NoError(t, err)
		assert.True(t, c.Equal(rt), "round trip mismatch for %v", c)
	}
}

func TestSliceBounds(t *testing.T) {
	s := NewString("hello")

	r, err := s.Call("slice", []Value{NewInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "ello", r.AsString())

	r, err = s.Call("slice", []Value{NewInt(0), NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, "hello", r.AsString())

	_, err = s.Call("slice", []Value{NewInt(0), NewInt(6)})
	require.Error(t, err)

	_, err = s.Call("slice", []Value{NewInt(3), NewInt(1)})
	require.Error(t, err)

	r, err = s.Call("slice", []Value{NewInt(-2)})
	require.NoError(t, err)
	assert.Equal(t, "lo", r.AsString())
}

func TestStringIsEmptyRejectsArguments(t *testing.T) {
	s := NewString("")
	r, err := s.Call("is_empty", nil)
	require.NoError(t, err)
	assert.True(t, r.AsBool())

	_, err = s.Call("is_empty", []Value{NewInt(1)})
	require.Error(t, err)
}

func TestUnknownMethodErrors(t *testing.T) {
	_, err := NewInt(1).Call("push", nil)
	require.Error(t, err)
}

func TestSecureValueRedacted(t *testing.T) {
	v := NewString("topsecret")
	v.Secure = true
	assert.Equal(t, redactedMarker, v.Redacted())
}

func TestArrayMethods(t *testing.T) {
	a := NewArray([]Value{NewInt(1), NewInt(2), NewInt(3)})

	r, err := a.Call("push", []Value{NewInt(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, len(r.AsArray()))

	r, err = a.Call("pop", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, len(r.AsArray()))

	idx, err := a.Call("index_of", []Value{NewInt(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), idx.AsInt())
}

func TestObjectMethods(t *testing.T) {
	o := NewObject(map[string]Value{"a": NewInt(1)}, []string{"a"})

	r, err := o.Call("insert", []Value{NewString("b"), NewInt(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, r.ObjectLen())

	keys, err := r.Call("keys", nil)
	require.NoError(t, err)
	assert.Equal(t, []Value{NewString("a"), NewString("b")}, keys.AsArray())
}
