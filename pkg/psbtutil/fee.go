package psbtutil

import (
	"github.com/shopspring/decimal"
)

// Virtual size weights for segwit v0 key-path spends, in vbytes. Close
// enough for fee estimation across the script types the daemon produces.
const (
	txBaseVSize  = 11
	inputVSize   = 68
	outputVSize  = 31
	minRelayFee  = 1.0
	dustSatoshis = 546
)

// EstimateVSize returns the approximate virtual size of a transaction with
// the given number of inputs and outputs.
func EstimateVSize(numInputs, numOutputs int) uint64 {
	return uint64(txBaseVSize + numInputs*inputVSize + numOutputs*outputVSize)
}

// FeeFromRate converts a sats/vbyte fee rate into an absolute fee for a
// transaction of the given shape. Rates below the minimum relay fee are
// bumped to it; the result is rounded up so the effective rate never falls
// below the requested one.
func FeeFromRate(satsPerVByte float64, numInputs, numOutputs int) uint64 {
	rate := decimal.NewFromFloat(satsPerVByte)
	if rate.LessThan(decimal.NewFromFloat(minRelayFee)) {
		rate = decimal.NewFromFloat(minRelayFee)
	}
	vsize := decimal.NewFromInt(int64(EstimateVSize(numInputs, numOutputs)))
	return uint64(rate.Mul(vsize).Ceil().IntPart())
}

// IsDust reports whether an output value is below the conventional dust
// threshold.
func IsDust(value uint64) bool {
	return value < dustSatoshis
}
