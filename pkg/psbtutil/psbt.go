package psbtutil

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Sequence numbers used to signal (or not) BIP125 replaceability.
const (
	rbfSequence   = wire.MaxTxInSequenceNum - 2
	finalSequence = wire.MaxTxInSequenceNum - 1
)

// Proprietary PSBT key namespaces (BIP174 type 0xFC) used to carry
// protocol metadata alongside each input/output.
var (
	terminalKey = []byte("\xfcrgbd/terminal")
	tweakKey    = []byte("\xfcrgbd/tapret")
)

var (
	// ErrNoInputs is returned when composing a transaction with no inputs.
	ErrNoInputs = errors.New("psbt must have at least one input")
	// ErrNoOutputs is returned when composing a transaction with no outputs.
	ErrNoOutputs = errors.New("psbt must have at least one output")
	// ErrDuplicateTerminal is returned when two inputs of the same packet
	// carry the same derivation terminal.
	ErrDuplicateTerminal = errors.New("duplicated input derivation terminal")
)

// Input describes a transaction input to be added to a packet: the outpoint
// being spent, the value and script of the spent output, the derivation
// terminal of its address and the optional tweak and sighash metadata.
type Input struct {
	OutPoint    wire.OutPoint
	Value       int64
	PkScript    []byte
	Terminal    string
	Tweak       string
	SighashType txscript.SigHashType
}

// Output is an address script and amount pair. An output carrying a
// derivation terminal is the asset change of the packet.
type Output struct {
	PkScript []byte
	Value    int64
	Terminal string
}

// Compose builds an unsigned packet spending the given inputs towards the
// given outputs. Each input embeds its witness utxo, sighash type and
// derivation terminal; asset input terminals must be unique within a packet.
func Compose(inputs []Input, outputs []Output, rbf bool) (*psbt.Packet, error) {
	if len(inputs) <= 0 {
		return nil, ErrNoInputs
	}
	if len(outputs) <= 0 {
		return nil, ErrNoOutputs
	}

	seenTerminals := make(map[string]struct{})
	outpoints := make([]*wire.OutPoint, 0, len(inputs))
	sequences := make([]uint32, 0, len(inputs))
	for _, in := range inputs {
		if len(in.Terminal) > 0 {
			if _, ok := seenTerminals[in.Terminal]; ok {
				return nil, ErrDuplicateTerminal
			}
			seenTerminals[in.Terminal] = struct{}{}
		}
		outpoint := in.OutPoint
		outpoints = append(outpoints, &outpoint)
		seq := uint32(finalSequence)
		if rbf {
			seq = rbfSequence
		}
		sequences = append(sequences, seq)
	}

	txOuts := make([]*wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		txOuts = append(txOuts, wire.NewTxOut(out.Value, out.PkScript))
	}

	packet, err := psbt.New(outpoints, txOuts, 2, 0, sequences)
	if err != nil {
		return nil, fmt.Errorf("creating psbt: %w", err)
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, fmt.Errorf("creating psbt updater: %w", err)
	}
	for i, in := range inputs {
		witnessUtxo := wire.NewTxOut(in.Value, in.PkScript)
		if err := updater.AddInWitnessUtxo(witnessUtxo, i); err != nil {
			return nil, fmt.Errorf("adding witness utxo: %w", err)
		}
		sighash := in.SighashType
		if sighash == 0 {
			sighash = txscript.SigHashAll
		}
		if err := updater.AddInSighashType(sighash, i); err != nil {
			return nil, fmt.Errorf("adding sighash type: %w", err)
		}
		if len(in.Terminal) > 0 {
			packet.Inputs[i].Unknowns = append(packet.Inputs[i].Unknowns, &psbt.Unknown{
				Key:   terminalKey,
				Value: []byte(in.Terminal),
			})
		}
		if len(in.Tweak) > 0 {
			packet.Inputs[i].Unknowns = append(packet.Inputs[i].Unknowns, &psbt.Unknown{
				Key:   tweakKey,
				Value: []byte(in.Tweak),
			})
		}
	}
	for i, out := range outputs {
		if len(out.Terminal) <= 0 {
			continue
		}
		packet.Outputs[i].Unknowns = append(packet.Outputs[i].Unknowns, &psbt.Unknown{
			Key:   terminalKey,
			Value: []byte(out.Terminal),
		})
	}

	return packet, nil
}

// Encode serializes a packet in base64.
func Encode(packet *psbt.Packet) (string, error) {
	return packet.B64Encode()
}

// Decode parses a base64 encoded packet.
func Decode(psbtBase64 string) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader([]byte(psbtBase64)), true)
	if err != nil {
		return nil, fmt.Errorf("decoding psbt: %w", err)
	}
	return packet, nil
}

// InputTerminal returns the derivation terminal embedded in the given input,
// if any.
func InputTerminal(packet *psbt.Packet, index int) string {
	if index < 0 || index >= len(packet.Inputs) {
		return ""
	}
	for _, unknown := range packet.Inputs[index].Unknowns {
		if bytes.Equal(unknown.Key, terminalKey) {
			return string(unknown.Value)
		}
	}
	return ""
}

// AssetChangeIndex returns the index of the output tagged with a derivation
// terminal. Packets built before output tagging carry no tag; for those the
// asset change is the last output by construction.
func AssetChangeIndex(packet *psbt.Packet) int {
	for i := range packet.Outputs {
		for _, unknown := range packet.Outputs[i].Unknowns {
			if bytes.Equal(unknown.Key, terminalKey) {
				return i
			}
		}
	}
	return len(packet.UnsignedTx.TxOut) - 1
}

// InputOutpoints lists the outpoints spent by the packet as "txid:vout"
// strings.
func InputOutpoints(packet *psbt.Packet) []string {
	outpoints := make([]string, 0, len(packet.UnsignedTx.TxIn))
	for _, txIn := range packet.UnsignedTx.TxIn {
		outpoints = append(outpoints, txIn.PreviousOutPoint.String())
	}
	return outpoints
}

// SerializedOutputs returns every output of the unsigned transaction in wire
// format, the canonical form the anchoring commitment is computed over.
func SerializedOutputs(packet *psbt.Packet) [][]byte {
	outs := make([][]byte, 0, len(packet.UnsignedTx.TxOut))
	for _, txOut := range packet.UnsignedTx.TxOut {
		var buf bytes.Buffer
		_ = wire.WriteTxOut(&buf, 0, 0, txOut)
		outs = append(outs, buf.Bytes())
	}
	return outs
}

// Finalize completes every input of a fully signed packet and extracts the
// raw transaction, returned in serialized form together with its txid.
func Finalize(packet *psbt.Packet) ([]byte, string, error) {
	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, "", fmt.Errorf("finalizing psbt: %w", err)
	}
	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return nil, "", fmt.Errorf("extracting tx: %w", err)
	}

	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return nil, "", fmt.Errorf("serializing tx: %w", err)
	}
	return buf.Bytes(), finalTx.TxHash().String(), nil
}

// ParseOutPoint converts a "txid:vout" string into a wire outpoint.
func ParseOutPoint(outpoint string) (*wire.OutPoint, error) {
	parts := strings.Split(outpoint, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed outpoint %q", outpoint)
	}
	// NewHashFromStr zero-pads short hex, so the length check cannot be
	// delegated to it.
	if len(parts[0]) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("malformed outpoint txid %q", parts[0])
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed outpoint txid %q: %w", parts[0], err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed outpoint vout %q: %w", parts[1], err)
	}
	return wire.NewOutPoint(hash, uint32(vout)), nil
}
