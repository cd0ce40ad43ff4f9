package grading

import (
	"strings"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
)

// contributionPrecision is the number of fractional digits kept for each
// mark*weight/100 term before summing.
const contributionPrecision = 6

var (
	one     = decimal.NewFromInt(1)
	ten     = decimal.NewFromInt(10)
	hundred = decimal.NewFromInt(100)
)

// Letter breakpoints, checked top down
var letterBreakpoints = []struct {
	min    decimal.Decimal
	letter string
}{
	{decimal.NewFromInt(90), shared.GradeA},
	{decimal.NewFromInt(80), shared.GradeB},
	{decimal.NewFromInt(70), shared.GradeC},
	{decimal.NewFromInt(60), shared.GradeD},
}

// Weights is one section's weight table ordered by component id.
// Components without a row weigh zero.
type Weights []shared.SectionWeight

// Lookup returns the weight of a component, zero when it has none
func (w Weights) Lookup(componentID int64) decimal.Decimal {
	for _, sw := range w {
		if sw.ComponentID == componentID {
			return sw.Weight
		}
	}
	return decimal.Zero
}

// Sum returns the total configured weight. It is expected, not required, to be 100.
func (w Weights) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, sw := range w {
		sum = sum.Add(sw.Weight)
	}
	return sum
}

// WeightedSum computes sum(mark * weight / 100). Missing marks count as zero.
func WeightedSum(weights Weights, marks map[int64]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		mark, ok := marks[w.ComponentID]
		if !ok {
			continue
		}
		total = total.Add(mark.Mul(w.Weight).DivRound(hundred, contributionPrecision))
	}
	return total
}

// NormalizeScale guesses the scale a raw total was entered on and lifts it to
// a percentage: totals up to 1 are fractions, totals up to 10 are out of ten.
// The result is clamped to [0, 100].
func NormalizeScale(total decimal.Decimal) decimal.Decimal {
	switch {
	case total.LessThanOrEqual(one):
		total = total.Mul(hundred)
	case total.LessThanOrEqual(ten):
		total = total.Mul(ten)
	}

	if total.IsNegative() {
		return decimal.Zero
	}
	if total.GreaterThan(hundred) {
		return hundred
	}
	return total
}

// RoundHalfUp2 rounds to two decimal places, halves away from zero
func RoundHalfUp2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LetterFor maps a percentage to a letter: >=90 A, >=80 B, >=70 C, >=60 D, else F
func LetterFor(percent decimal.Decimal) string {
	for _, bp := range letterBreakpoints {
		if percent.GreaterThanOrEqual(bp.min) {
			return bp.letter
		}
	}
	return shared.GradeF
}

// CGPAFor converts a percentage to the ten-point figure shown on grade sheets
func CGPAFor(percent decimal.Decimal) decimal.Decimal {
	return percent.DivRound(ten, 2)
}

// ParseDecimal parses a user supplied number for field. Blank input is a
// validation error; callers that allow blanks check before calling.
func ParseDecimal(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, shared.NewValidationError(field, "value is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, shared.NewValidationError(field, "invalid numeric '%s'", trimmed)
	}
	return d, nil
}
