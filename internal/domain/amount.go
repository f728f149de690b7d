package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed scaling applied between human input and the
// on-chain integer representation of quantities, prices and amounts.
const TokenDecimals = 18

// maxUint256Digits is the number of decimal digits in 2^256-1.
const maxUint256Digits = 78

// ParseUnits converts a human decimal string such as "1.5" into its on-chain
// integer value scaled by 10^18. Negative values, values with more than 18
// fractional digits and values that do not fit a uint256 are rejected.
func ParseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount %q is negative", ErrInvalidInput, s)
	}

	// Work on coefficient and exponent so exponent notation never forces a
	// huge power of ten.
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return new(big.Int), nil
	}
	digits := int64(len(coef.String()))
	exp := int64(d.Exponent()) + TokenDecimals

	if exp < 0 {
		if -exp >= digits {
			return nil, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidInput, s, TokenDecimals)
		}
		q, r := new(big.Int).QuoRem(coef, pow10(-exp), new(big.Int))
		if r.Sign() != 0 {
			return nil, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidInput, s, TokenDecimals)
		}
		return q, nil
	}
	if digits+exp > maxUint256Digits {
		return nil, fmt.Errorf("%w: amount %q exceeds uint256", ErrInvalidInput, s)
	}
	v := coef.Mul(coef, pow10(exp))
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: amount %q exceeds uint256", ErrInvalidInput, s)
	}
	return v, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// FormatUnits renders an on-chain integer scaled by 10^18 as a human decimal
// string. A nil value formats as "0".
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}
