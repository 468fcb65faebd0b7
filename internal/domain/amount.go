package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ─── Amount Parsing ─────────────────────────────────────────────────────────
// Stored amounts are untyped document fields. Every read goes through
// ParseAmount so that one malformed record can never break a balance.

// ParseAmount converts a stored amount to a decimal.
// Missing, non-numeric and non-finite values yield zero.
func ParseAmount(v any) decimal.Decimal {
	d, err := ParseAmountStrict(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmountStrict converts v to a decimal and reports why it could not.
// Used on input paths where a bad amount must be rejected, not zeroed.
func ParseAmountStrict(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrValidation)
	case decimal.Decimal:
		return x, nil
	case json.Number:
		return parseAmountString(x.String())
	case string:
		return parseAmountString(x)
	case float64:
		return fromFloat(x)
	case float32:
		return fromFloat(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	}
	return decimal.Zero, fmt.Errorf("%w: amount has type %T", ErrValidation, v)
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, s)
	}
	return d, nil
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: amount is not finite", ErrValidation)
	}
	return decimal.NewFromFloat(f), nil
}
