package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/amountutil"
	"github.com/bitmasklabs/rgbd/pkg/psbtutil"
)

// Fee is the fee policy of a packet: either a fixed absolute value in
// satoshis or a sats/vbyte rate resolved against the transaction size.
type Fee struct {
	value  uint64
	rate   float64
	isRate bool
}

// NewAbsoluteFee returns a fixed fee of the given satoshi value.
func NewAbsoluteFee(value uint64) Fee {
	return Fee{value: value}
}

// NewRateFee returns a fee computed from a sats/vbyte rate.
func NewRateFee(satsPerVByte float64) Fee {
	return Fee{rate: satsPerVByte, isRate: true}
}

// Absolute resolves the policy into a satoshi value for a transaction of the
// given shape.
func (f Fee) Absolute(numInputs, numOutputs int) uint64 {
	if f.isRate {
		return psbtutil.FeeFromRate(f.rate, numInputs, numOutputs)
	}
	return f.value
}

type feeJSON struct {
	Value   *uint64  `json:"value,omitempty"`
	FeeRate *float64 `json:"feeRate,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f Fee) MarshalJSON() ([]byte, error) {
	if f.isRate {
		rate := f.rate
		return json.Marshal(feeJSON{FeeRate: &rate})
	}
	value := f.value
	return json.Marshal(feeJSON{Value: &value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Fee) UnmarshalJSON(data []byte) error {
	var in feeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Value != nil && in.FeeRate != nil {
		return fmt.Errorf("fee cannot be both a value and a rate")
	}
	if in.FeeRate != nil {
		*f = NewRateFee(*in.FeeRate)
		return nil
	}
	if in.Value != nil {
		*f = NewAbsoluteFee(*in.Value)
		return nil
	}
	return fmt.Errorf("fee must be either a value or a rate")
}

// PsbtInput references an output to be spent: its outpoint, the value and
// script needed to sign it, the derivation terminal of its address and the
// optional tapret tweak placeholder.
type PsbtInput struct {
	Utxo     string `json:"utxo"`
	Value    uint64 `json:"value"`
	Script   string `json:"script"`
	Terminal string `json:"terminal"`
	Tweak    string `json:"tweak,omitempty"`
}

// PsbtOutput is an address and satoshi amount pair.
type PsbtOutput struct {
	Address string `json:"address"`
	Value   uint64 `json:"value"`
}

// PsbtRequest describes the packet to compose: asset-bearing inputs, plain
// bitcoin inputs, explicit bitcoin outputs and the destination of the asset
// change.
type PsbtRequest struct {
	AssetInputs         []PsbtInput  `json:"assetInputs"`
	AssetChangeAddress  string       `json:"assetChangeAddress"`
	AssetChangeTerminal string       `json:"assetChangeTerminal,omitempty"`
	BitcoinInputs       []PsbtInput  `json:"bitcoinInputs,omitempty"`
	BitcoinChanges      []PsbtOutput `json:"bitcoinChanges,omitempty"`
	Fee                 Fee          `json:"fee"`
	RBF                 bool         `json:"rbf,omitempty"`
}

// PsbtResponse is the composed packet and the terminal of its asset change
// output. The terminal must be reused unchanged when the transfer is
// anchored or the commitment becomes invalid.
type PsbtResponse struct {
	Psbt           string `json:"psbt"`
	ChangeTerminal string `json:"changeTerminal"`
}

// InvoiceResponse is a stored invoice together with its interchange string
// form.
type InvoiceResponse struct {
	Invoice domain.Invoice `json:"invoice"`
	Encoded string         `json:"encoded"`
}

// BuilderService turns contracts, seals and allocations into invoices and
// unsigned commitment-ready packets.
type BuilderService interface {
	CreateInvoice(
		ctx context.Context,
		contractID, iface, amount, seal string, params map[string]string,
	) (*InvoiceResponse, error)
	CreatePsbt(ctx context.Context, req PsbtRequest) (*PsbtResponse, error)
}

type builderService struct {
	repoManager ports.RepoManager
	net         *chaincfg.Params
}

// NewBuilderService returns a BuilderService backed by the given
// repositories.
func NewBuilderService(
	repoManager ports.RepoManager, net *chaincfg.Params,
) BuilderService {
	return &builderService{repoManager: repoManager, net: net}
}

func (s *builderService) CreateInvoice(
	ctx context.Context,
	contractID, iface, amount, seal string, params map[string]string,
) (*InvoiceResponse, error) {
	if len(seal) <= 0 {
		return nil, fmt.Errorf("%w: missing invoice seal", ErrInvalidRequest)
	}
	contract, err := s.repoManager.ContractRepository().GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Iface != iface {
		return nil, fmt.Errorf("%w: contract implements %s, not %s",
			ErrInvalidRequest, contract.Iface, iface)
	}

	units, err := amountutil.Parse(amount, contract.Precision)
	if err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	allocations, err := s.repoManager.ContractRepository().GetAllocations(
		ctx, contractID,
	)
	if err != nil {
		return nil, err
	}
	if contract.Balance(allocations) < units {
		return nil, domain.ErrInsufficientAllocation
	}

	// The id travels as a query param of the encoded form, which is what
	// lets the paying side consume the stored invoice exactly once.
	invoiceID := uuid.New().String()
	if params == nil {
		params = make(map[string]string)
	}
	params["id"] = invoiceID

	invoice := domain.Invoice{
		InvoiceID:  invoiceID,
		ContractID: contractID,
		Iface:      iface,
		Amount:     units,
		Seal:       seal,
		Params:     params,
	}
	if err := s.repoManager.InvoiceRepository().AddInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"contract": contractID,
		"amount":   units,
	}).Debug("invoice created")
	return &InvoiceResponse{Invoice: invoice, Encoded: invoice.Encode()}, nil
}

func (s *builderService) CreatePsbt(
	ctx context.Context, req PsbtRequest,
) (*PsbtResponse, error) {
	if len(req.AssetInputs) <= 0 {
		return nil, fmt.Errorf("%w: missing asset inputs", ErrInvalidRequest)
	}
	if len(req.AssetChangeAddress) <= 0 {
		return nil, fmt.Errorf("%w: missing asset change address", ErrInvalidRequest)
	}
	changeTerminal := req.AssetChangeTerminal
	if len(changeTerminal) <= 0 {
		changeTerminal = terminalPath(domain.AssetChain, 0)
	}

	inputs := make([]psbtutil.Input, 0, len(req.AssetInputs)+len(req.BitcoinInputs))
	var totalIn uint64
	for _, in := range append(req.AssetInputs, req.BitcoinInputs...) {
		parsed, err := s.parseInput(in)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, *parsed)
		totalIn += in.Value
	}

	outputs := make([]psbtutil.Output, 0, len(req.BitcoinChanges)+1)
	var totalOut uint64
	for _, out := range req.BitcoinChanges {
		script, err := s.addressScript(out.Address)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, psbtutil.Output{
			PkScript: script, Value: int64(out.Value),
		})
		totalOut += out.Value
	}

	// The asset change output always exists: it anchors the commitment of
	// the change allocation at the returned terminal.
	fee := req.Fee.Absolute(len(inputs), len(outputs)+1)
	if totalIn < totalOut+fee {
		return nil, ErrInsufficientFunds
	}
	change := totalIn - totalOut - fee
	if psbtutil.IsDust(change) {
		return nil, fmt.Errorf("%w: change %d below dust", ErrInsufficientFunds, change)
	}
	changeScript, err := s.addressScript(req.AssetChangeAddress)
	if err != nil {
		return nil, err
	}
	outputs = append(outputs, psbtutil.Output{
		PkScript: changeScript, Value: int64(change), Terminal: changeTerminal,
	})

	packet, err := psbtutil.Compose(inputs, outputs, req.RBF)
	if err != nil {
		return nil, err
	}
	encoded, err := psbtutil.Encode(packet)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"inputs": len(inputs),
		"fee":    fee,
	}).Debug("psbt composed")
	return &PsbtResponse{Psbt: encoded, ChangeTerminal: changeTerminal}, nil
}

func (s *builderService) parseInput(in PsbtInput) (*psbtutil.Input, error) {
	outpoint, err := psbtutil.ParseOutPoint(in.Utxo)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	script, err := hex.DecodeString(in.Script)
	if err != nil || len(script) <= 0 {
		return nil, fmt.Errorf("%w: malformed input script", ErrInvalidRequest)
	}
	return &psbtutil.Input{
		OutPoint: *outpoint,
		Value:    int64(in.Value),
		PkScript: script,
		Terminal: in.Terminal,
		Tweak:    in.Tweak,
	}, nil
}

func (s *builderService) addressScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, s.net)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed address %q", ErrInvalidRequest, address)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported address %q", ErrInvalidRequest, address)
	}
	return script, nil
}
