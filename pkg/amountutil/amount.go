package amountutil

import (
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MaxPrecision is the highest number of decimal digits supported for
	// contract amounts.
	MaxPrecision = 18
)

var (
	// ErrMalformedAmount is returned when a string amount cannot be parsed
	// as an exact decimal number.
	ErrMalformedAmount = errors.New("malformed amount")
	// ErrPrecisionOutOfRange is returned when the given precision exceeds
	// MaxPrecision.
	ErrPrecisionOutOfRange = errors.New("precision out of range")
	// ErrTooManyDecimals is returned when a string amount carries more
	// decimal digits than the contract precision allows.
	ErrTooManyDecimals = errors.New("amount has more decimals than contract precision")
	// ErrAmountOverflow is returned when the parsed amount does not fit
	// into the 64-bit unsigned range of minimal units.
	ErrAmountOverflow = errors.New("amount overflows maximum supply")
)

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// Parse converts a string decimal amount into its integer value expressed in
// minimal indivisible units, ie. the amount scaled by 10^precision.
// The conversion is exact: any rounding, malformed input or overflow results
// in an error.
func Parse(amount string, precision uint8) (uint64, error) {
	if precision > MaxPrecision {
		return 0, ErrPrecisionOutOfRange
	}
	if len(amount) <= 0 {
		return 0, ErrMalformedAmount
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, ErrMalformedAmount
	}
	if dec.IsNegative() {
		return 0, ErrMalformedAmount
	}

	units := dec.Shift(int32(precision))
	if !units.IsInteger() {
		return 0, ErrTooManyDecimals
	}

	bigUnits := units.BigInt()
	if bigUnits.Cmp(maxUint64) > 0 {
		return 0, ErrAmountOverflow
	}
	return bigUnits.Uint64(), nil
}

// Format renders an integer amount of minimal units as a decimal string with
// the given contract precision. It is the exact inverse of Parse.
func Format(units uint64, precision uint8) string {
	dec := decimal.NewFromBigInt(new(big.Int).SetUint64(units), 0)
	return dec.Shift(-int32(precision)).String()
}

// CheckedSum adds a list of unit amounts, failing on 64-bit overflow. Used to
// validate that allocation sets never exceed the contract supply.
func CheckedSum(units []uint64) (uint64, error) {
	var total uint64
	for _, v := range units {
		if total > math.MaxUint64-v {
			return 0, ErrAmountOverflow
		}
		total += v
	}
	return total, nil
}
