package amountutil_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/bitmasklabs/rgbd/pkg/amountutil"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount    string
		precision uint8
		expected  uint64
	}{
		{"1.23", 2, 123},
		{"1000", 0, 1000},
		{"0.00000001", 8, 1},
		{"21000000", 8, 2100000000000000},
		{"0", 5, 0},
		{"1.5", 18, 1500000000000000000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%s_p%d", tt.amount, tt.precision), func(t *testing.T) {
			t.Parallel()

			units, err := amountutil.Parse(tt.amount, tt.precision)
			require.NoError(t, err)
			require.Equal(t, tt.expected, units)

			formatted := amountutil.Format(units, tt.precision)
			reparsed, err := amountutil.Parse(formatted, tt.precision)
			require.NoError(t, err)
			require.Equal(t, units, reparsed)
		})
	}
}

func TestParseAllPrecisions(t *testing.T) {
	t.Parallel()

	// For every supported precision, "1.5...5" with exactly `p` decimals must
	// round trip with no drift.
	for p := uint8(1); p <= amountutil.MaxPrecision; p++ {
		amount := "1." + strings.Repeat("5", int(p))
		units, err := amountutil.Parse(amount, p)
		require.NoError(t, err, "precision %d", p)
		require.Equal(t, amount, amountutil.Format(units, p), "precision %d", p)
	}

	// Precision 0 accepts integers only.
	units, err := amountutil.Parse("123", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(123), units)
	require.Equal(t, "123", amountutil.Format(units, 0))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amount    string
		precision uint8
		expected  error
	}{
		{"empty", "", 2, amountutil.ErrMalformedAmount},
		{"not_a_number", "12a.3", 2, amountutil.ErrMalformedAmount},
		{"negative", "-1", 2, amountutil.ErrMalformedAmount},
		{"too_many_decimals", "1.234", 2, amountutil.ErrTooManyDecimals},
		{"decimals_with_zero_precision", "1.1", 0, amountutil.ErrTooManyDecimals},
		{"precision_out_of_range", "1", 19, amountutil.ErrPrecisionOutOfRange},
		{"overflow", "18446744073709551616", 0, amountutil.ErrAmountOverflow},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := amountutil.Parse(tt.amount, tt.precision)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestCheckedSum(t *testing.T) {
	t.Parallel()

	total, err := amountutil.CheckedSum([]uint64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, uint64(6), total)

	_, err = amountutil.CheckedSum([]uint64{math.MaxUint64, 1})
	require.ErrorIs(t, err, amountutil.ErrAmountOverflow)
}
