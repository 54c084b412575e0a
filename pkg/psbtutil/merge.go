package psbtutil

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrOverlappingInputs is returned when two packets to be merged spend
	// the same outpoint.
	ErrOverlappingInputs = errors.New("packets spend overlapping outpoints")
)

// Merge combines two partially built packets into a single one carrying the
// inputs and outputs of both, preserving per-input metadata and any partial
// signatures already applied. Input order is first packet then second, which
// keeps each party's sighash commitments stable. The two packets must not
// spend overlapping outpoints.
func Merge(first, second *psbt.Packet) (*psbt.Packet, error) {
	seen := make(map[wire.OutPoint]struct{})
	for _, txIn := range first.UnsignedTx.TxIn {
		seen[txIn.PreviousOutPoint] = struct{}{}
	}
	for _, txIn := range second.UnsignedTx.TxIn {
		if _, ok := seen[txIn.PreviousOutPoint]; ok {
			return nil, ErrOverlappingInputs
		}
	}

	mergedTx := wire.NewMsgTx(first.UnsignedTx.Version)
	mergedTx.LockTime = first.UnsignedTx.LockTime
	for _, src := range []*wire.MsgTx{first.UnsignedTx, second.UnsignedTx} {
		for _, txIn := range src.TxIn {
			in := wire.NewTxIn(&txIn.PreviousOutPoint, nil, nil)
			in.Sequence = txIn.Sequence
			mergedTx.AddTxIn(in)
		}
		for _, txOut := range src.TxOut {
			mergedTx.AddTxOut(wire.NewTxOut(txOut.Value, txOut.PkScript))
		}
	}

	merged, err := psbt.NewFromUnsignedTx(mergedTx)
	if err != nil {
		return nil, fmt.Errorf("building merged psbt: %w", err)
	}

	inputs := make([]psbt.PInput, 0, len(first.Inputs)+len(second.Inputs))
	inputs = append(inputs, first.Inputs...)
	inputs = append(inputs, second.Inputs...)
	merged.Inputs = inputs

	outputs := make([]psbt.POutput, 0, len(first.Outputs)+len(second.Outputs))
	outputs = append(outputs, first.Outputs...)
	outputs = append(outputs, second.Outputs...)
	merged.Outputs = outputs

	return merged, nil
}
