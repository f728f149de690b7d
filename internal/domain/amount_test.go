package domain

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "5", want: "5000000000000000000"},
		{in: "1.5", want: "1500000000000000000"},
		{in: "0", want: "0"},
		{in: " 0.000000000000000001 ", want: "1"},
		{in: "10", want: "10000000000000000000"},
		{in: "1.50", want: "1500000000000000000"},
		{in: "2e3", want: "2000000000000000000000"},
		{in: "15e-1", want: "1500000000000000000"},
		{in: "0e-999999999", want: "0"},
		{in: "0.000000000000000001000", want: "1"},
		{in: maxUint256Units(), want: maxUint256().String()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseUnits_Rejects(t *testing.T) {
	over := new(big.Int).Add(maxUint256(), big.NewInt(1))
	for _, in := range []string{
		"", "abc", "-1", "0.0000000000000000001",
		"1e300000000",
		"1e-300000000",
		"1e60",
		"1" + strings.Repeat("0", 61),
		FormatUnits(over),
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseUnits(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// maxUint256Units is 2^256-1 written with 18 decimals.
func maxUint256Units() string {
	return FormatUnits(maxUint256())
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatUnits(v))
	assert.Equal(t, "0", FormatUnits(nil))
	assert.Equal(t, "3", FormatUnits(new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))))
}
