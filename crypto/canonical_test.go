package crypto

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONKeyOrderIsDeterministic(t *testing.T) {
	type sample struct {
		Zebra string
		Alpha string
	}
	a := map[string]any{"zebra": "z", "alpha": "a", "mid": 1}
	encoded, err := CanonicalJSON(a)
	require.NoError(t, err)
	require.JSONEq(t, `{"alpha":"a","mid":1,"zebra":"z"}`, string(encoded))
	require.Equal(t, `{"alpha":"a","mid":1,"zebra":"z"}`, string(encoded))

	_ = sample{}
}

func TestCanonicalJSONIntegersHaveNoFraction(t *testing.T) {
	encoded, err := CanonicalJSON(map[string]any{"n": float64(42)})
	require.NoError(t, err)
	require.Equal(t, `{"n":42}`, string(encoded))
}

func TestCanonicalJSONRejectsNonFiniteFloats(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"n": math.NaN()})
	require.Error(t, err)

	_, err = CanonicalJSON(map[string]any{"n": math.Inf(1)})
	require.Error(t, err)
}

type orderedPair struct {
	A string
	B int
}

func (p orderedPair) OrderedFields() []Field {
	return []Field{
		{Key: "b", Value: p.B},
		{Key: "a", Value: p.A},
	}
}

func TestCanonicalJSONRespectsOrderedFields(t *testing.T) {
	encoded, err := CanonicalJSON(orderedPair{A: "x", B: 1})
	require.NoError(t, err)
	require.Equal(t, `{"b":1,"a":"x"}`, string(encoded))
}

func TestCanonicalJSONIsStableAcrossCalls(t *testing.T) {
	v := orderedPair{A: "x", B: 2}
	first, err := CanonicalJSON(v)
	require.NoError(t, err)
	second, err := CanonicalJSON(v)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
