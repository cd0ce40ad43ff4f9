package grading

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func weightsOf(pairs ...string) Weights {
	var ws Weights
	for i := 0; i+1 < len(pairs); i += 2 {
		ws = append(ws, shared.SectionWeight{ComponentID: d(pairs[i]).IntPart(), Weight: d(pairs[i+1])})
	}
	return ws
}

func TestWeightedSum(t *testing.T) {
	t.Run("out of ten marks", func(t *testing.T) {
		ws := weightsOf("1", "40", "2", "60")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("8"), 2: d("7")})
		assert.True(t, raw.Equal(d("7.4")), raw.String())
		assert.Equal(t, "74", RoundHalfUp2(NormalizeScale(raw)).String())
		assert.Equal(t, shared.GradeC, LetterFor(RoundHalfUp2(NormalizeScale(raw))))
	})

	t.Run("percentage marks need no normalization", func(t *testing.T) {
		ws := weightsOf("1", "40", "2", "60")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("80"), 2: d("70")})
		assert.Equal(t, "74.00", RoundHalfUp2(raw).StringFixed(2))
		assert.True(t, NormalizeScale(raw).Equal(raw))
	})

	t.Run("missing marks count as zero", func(t *testing.T) {
		ws := weightsOf("1", "50", "2", "50")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("90")})
		assert.True(t, raw.Equal(d("45")))
	})

	t.Run("marks of unweighted components are ignored", func(t *testing.T) {
		ws := weightsOf("1", "100")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("50"), 9: d("100")})
		assert.True(t, raw.Equal(d("50")))
	})

	t.Run("each contribution keeps six digits", func(t *testing.T) {
		ws := weightsOf("1", "33.333333")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("1")})
		assert.Equal(t, "0.333333", raw.String())
	})

	t.Run("weights summing to seventy give a lower total", func(t *testing.T) {
		ws := weightsOf("1", "30", "2", "40")
		raw := WeightedSum(ws, map[int64]decimal.Decimal{1: d("100"), 2: d("100")})
		assert.Equal(t, "70.00", RoundHalfUp2(raw).StringFixed(2))
		assert.True(t, ws.Sum().Equal(d("70")))
	})
}

func TestTotalStaysWithinPercentRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		remaining := int64(100)
		var ws Weights
		marks := map[int64]decimal.Decimal{}
		for c := 1; c <= n; c++ {
			w := remaining
			if c < n {
				w = rng.Int63n(remaining + 1)
			}
			remaining -= w
			ws = append(ws, shared.SectionWeight{ComponentID: int64(c), Weight: decimal.NewFromInt(w)})
			if rng.Intn(5) > 0 {
				marks[int64(c)] = decimal.NewFromFloat(rng.Float64() * 100).Round(2)
			}
		}

		for _, total := range []decimal.Decimal{
			RoundHalfUp2(WeightedSum(ws, marks)),
			RoundHalfUp2(NormalizeScale(WeightedSum(ws, marks))),
		} {
			require.False(t, total.IsNegative(), "iteration %d: %s", i, total)
			require.True(t, total.LessThanOrEqual(hundred), "iteration %d: %s", i, total)
		}
	}
}

func TestNormalizeScale(t *testing.T) {
	cases := []struct{ in, want string }{
		{"0", "0"},
		{"0.74", "74"},
		{"1", "100"},
		{"1.5", "15"},
		{"10", "100"},
		{"10.01", "10.01"},
		{"74", "74"},
		{"150", "100"},
		{"-3", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := NormalizeScale(d(tc.in))
			assert.True(t, got.Equal(d(tc.want)), "got %s", got)
		})
	}
}

func TestRoundingAndLetters(t *testing.T) {
	assert.Equal(t, "89.99", RoundHalfUp2(d("89.994")).String())
	assert.Equal(t, "90", RoundHalfUp2(d("89.995")).String())
	assert.Equal(t, "0.01", RoundHalfUp2(d("0.005")).String())

	letters := map[string]string{
		"100": "A", "90": "A", "89.99": "B", "80": "B", "79.99": "C",
		"70": "C", "69.99": "D", "60": "D", "59.99": "F", "0": "F",
	}
	for percent, want := range letters {
		assert.Equal(t, want, LetterFor(d(percent)), percent)
	}

	assert.Equal(t, "7.4", CGPAFor(d("74")).String())
	assert.Equal(t, "8.77", CGPAFor(d("87.65")).String())
}

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal("marks", " 12.50 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(d("12.5")))

	_, err = ParseDecimal("marks", "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Contains(t, err.Error(), "invalid numeric 'abc'")

	_, err = ParseDecimal("weight", "  ")
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
