package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/amountutil"
	"github.com/bitmasklabs/rgbd/pkg/commitment"
	"github.com/bitmasklabs/rgbd/pkg/explorer"
	"github.com/bitmasklabs/rgbd/pkg/psbtutil"
)

// consignmentPayload is the serialized proof bundle moved between parties.
// Outputs carry the anchoring transaction outputs in wire form, the data the
// commitment is recomputed over on the receiving side.
type consignmentPayload struct {
	ConsigID    string   `json:"consigId"`
	ContractID  string   `json:"contractId"`
	Iface       string   `json:"iface"`
	Amount      uint64   `json:"amount"`
	TokenIndex  uint32   `json:"tokenIndex,omitempty"`
	Beneficiary string   `json:"beneficiary"`
	Terminal    string   `json:"terminal"`
	Commit      string   `json:"commit"`
	Txid        string   `json:"txid,omitempty"`
	Outputs     []string `json:"outputs"`
}

// TransferRequest anchors a signed packet to an invoice: the encoded invoice
// being paid, the fully signed psbt and the asset change terminal returned
// at composition time.
type TransferRequest struct {
	Invoice  string `json:"invoice"`
	Psbt     string `json:"psbt"`
	Terminal string `json:"terminal"`
}

// TransferResponse is the finalized consignment and its anchoring material.
type TransferResponse struct {
	ConsigID     string `json:"consigId"`
	Consig       string `json:"consig"`
	ConsigBlobID string `json:"consigBlobId"`
	Psbt         string `json:"psbt"`
	Commit       string `json:"commit"`
	Txid         string `json:"txid,omitempty"`
}

// PublishResponse is a signed packet together with the txid of its broadcast
// transaction.
type PublishResponse struct {
	Psbt string `json:"psbt"`
	Txid string `json:"txid"`
}

// AcceptResponse reports the outcome of validating an incoming consignment.
// A commitment mismatch surfaces as Valid=false, not as a hard failure.
type AcceptResponse struct {
	ConsigID   string `json:"consigId"`
	ContractID string `json:"contractId"`
	Valid      bool   `json:"valid"`
	Forced     bool   `json:"forced,omitempty"`
}

// TransferStatusUpdate is the outcome of one VerifyTransfers poll entry.
type TransferStatusUpdate struct {
	ConsigID string          `json:"consigId"`
	Txid     string          `json:"txid"`
	Status   domain.TxStatus `json:"status"`
}

// TransferService signs, finalizes, broadcasts and validates asset
// transfers, and keeps the local transfer ledger.
type TransferService interface {
	// SignPsbt applies partial signatures for each listed descriptor.
	SignPsbt(ctx context.Context, psbt string, descriptors []string) (string, error)
	// SignAndPublishPsbt signs, finalizes and broadcasts in one call.
	SignAndPublishPsbt(
		ctx context.Context, psbt string, descriptors []string,
	) (*PublishResponse, error)
	// TransferAsset finalizes a consignment locally without broadcasting.
	TransferAsset(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	// FullTransferAsset finalizes and broadcasts. Allocations are only
	// mutated once the broadcast unambiguously succeeded.
	FullTransferAsset(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	AcceptTransfer(ctx context.Context, consig string, force bool) (*AcceptResponse, error)
	SaveTransfer(ctx context.Context, transfer domain.Transfer) error
	RemoveTransfer(ctx context.Context, contractID string, consigIDs []string) error
	ListTransfers(ctx context.Context, contractID string) ([]domain.Transfer, error)
	// VerifyTransfers re-polls chain status for every pending transfer and
	// advances each status monotonically. Caller-driven, no internal timer.
	VerifyTransfers(ctx context.Context) ([]TransferStatusUpdate, error)
}

type transferService struct {
	repoManager ports.RepoManager
	signer      ports.Signer
	blobStore   ports.BlobStore
	explorer    explorer.Service

	// forceAcceptAdvancesState controls whether force-accepted invalid
	// consignments still advance allocation state or are only recorded for
	// audit.
	forceAcceptAdvancesState bool
}

// NewTransferService returns a TransferService backed by the given
// collaborators.
func NewTransferService(
	repoManager ports.RepoManager, signerSvc ports.Signer,
	blobStore ports.BlobStore, explorerSvc explorer.Service,
	forceAcceptAdvancesState bool,
) TransferService {
	return &transferService{
		repoManager:              repoManager,
		signer:                   signerSvc,
		blobStore:                blobStore,
		explorer:                 explorerSvc,
		forceAcceptAdvancesState: forceAcceptAdvancesState,
	}
}

func (s *transferService) SignPsbt(
	ctx context.Context, psbtBase64 string, descriptors []string,
) (string, error) {
	if len(descriptors) <= 0 {
		return "", fmt.Errorf("%w: missing descriptors", ErrInvalidRequest)
	}
	signed, err := s.signer.SignPsbt(ctx, psbtBase64, descriptors)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSignature, err)
	}
	return signed, nil
}

func (s *transferService) SignAndPublishPsbt(
	ctx context.Context, psbtBase64 string, descriptors []string,
) (*PublishResponse, error) {
	signed, err := s.SignPsbt(ctx, psbtBase64, descriptors)
	if err != nil {
		return nil, err
	}

	packet, err := psbtutil.Decode(signed)
	if err != nil {
		return nil, err
	}
	rawTx, _, err := psbtutil.Finalize(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignature, err)
	}
	txid, err := s.explorer.BroadcastTransaction(hex.EncodeToString(rawTx))
	if err != nil {
		return nil, fmt.Errorf("broadcasting tx: %w", err)
	}
	return &PublishResponse{Psbt: signed, Txid: txid}, nil
}

func (s *transferService) TransferAsset(
	ctx context.Context, req TransferRequest,
) (*TransferResponse, error) {
	return s.transfer(ctx, req, false)
}

func (s *transferService) FullTransferAsset(
	ctx context.Context, req TransferRequest,
) (*TransferResponse, error) {
	return s.transfer(ctx, req, true)
}

func (s *transferService) transfer(
	ctx context.Context, req TransferRequest, broadcast bool,
) (*TransferResponse, error) {
	invoice, err := domain.DecodeInvoice(req.Invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if len(req.Terminal) <= 0 {
		return nil, fmt.Errorf("%w: missing change terminal", ErrInvalidRequest)
	}
	contract, err := s.repoManager.ContractRepository().GetContract(
		ctx, invoice.ContractID,
	)
	if err != nil {
		return nil, err
	}

	packet, err := psbtutil.Decode(req.Psbt)
	if err != nil {
		return nil, err
	}

	// Finalizing is the unambiguous local success gate: nothing is
	// committed before the packet extracts into a broadcastable tx.
	rawTx, txid, err := psbtutil.Finalize(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignature, err)
	}

	consigID := uuid.New().String()
	serializedOuts := psbtutil.SerializedOutputs(packet)
	commit := commitment.Commit(consigID, req.Terminal, serializedOuts)
	spentUtxos := psbtutil.InputOutpoints(packet)

	var tokenIndex uint32
	if contract.IsUDA() {
		tokenIndex, err = s.spentTokenIndex(ctx, contract.ContractID, spentUtxos)
		if err != nil {
			return nil, err
		}
	}

	outputs := make([]string, 0, len(serializedOuts))
	for _, out := range serializedOuts {
		outputs = append(outputs, hex.EncodeToString(out))
	}
	payload := consignmentPayload{
		ConsigID:    consigID,
		ContractID:  contract.ContractID,
		Iface:       contract.Iface,
		Amount:      invoice.Amount,
		TokenIndex:  tokenIndex,
		Beneficiary: invoice.Seal,
		Terminal:    req.Terminal,
		Commit:      commit,
		Txid:        txid,
		Outputs:     outputs,
	}
	rawConsig, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding consignment: %w", err)
	}
	consig := encodeFormats(rawConsig).Armored

	transfer := domain.NewTransfer(contract.ContractID, contract.Iface)
	transfer.ConsigID = consigID
	transfer.Consig = consig
	transfer.Commit = commit
	transfer.Beneficiary = invoice.Seal
	transfer.Sender = true
	transfer.Utxos = spentUtxos
	if err := transfer.Sign(req.Psbt); err != nil {
		return nil, err
	}

	// The invoice is reserved up front so a replay fails before any
	// allocation is touched. The reservation is released again if the
	// transfer fails without settling or publishing anything.
	if err := s.consumeLocalInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	if broadcast {
		txid, err = s.explorer.BroadcastTransaction(hex.EncodeToString(rawTx))
		if err != nil {
			s.releaseLocalInvoice(ctx, invoice)
			// The signed packet is preserved in the ledger as a resumable
			// artifact; allocations stay untouched.
			if saveErr := s.repoManager.TransferRepository().AddTransfer(
				ctx, *transfer,
			); saveErr != nil {
				log.WithError(saveErr).Warn("failed to save unpublished transfer")
			}
			return nil, fmt.Errorf("broadcasting tx: %w", err)
		}
		if err := transfer.Publish(txid); err != nil {
			return nil, err
		}
	}

	if err := s.settleSenderAllocations(
		ctx, contract, invoice, transfer.Utxos, txid, req.Terminal,
		psbtutil.AssetChangeIndex(packet),
	); err != nil {
		if broadcast {
			// The tx is already in the mempool: record the failure instead
			// of pretending nothing happened.
			transfer.Fail(err.Error())
			if saveErr := s.repoManager.TransferRepository().AddTransfer(
				ctx, *transfer,
			); saveErr != nil {
				log.WithError(saveErr).Warn("failed to save failed transfer")
			}
		} else {
			s.releaseLocalInvoice(ctx, invoice)
		}
		return nil, err
	}
	if err := s.repoManager.TransferRepository().AddTransfer(ctx, *transfer); err != nil {
		return nil, err
	}

	blobID, err := s.blobStore.Put(ctx, rawConsig)
	if err != nil {
		log.WithError(err).Warn("failed to store consignment blob")
	}

	log.WithFields(log.Fields{
		"consig":   consigID,
		"contract": contract.ContractID,
		"txid":     txid,
	}).Debug("asset transfer finalized")
	return &TransferResponse{
		ConsigID:     consigID,
		Consig:       consig,
		ConsigBlobID: blobID,
		Psbt:         req.Psbt,
		Commit:       commit,
		Txid:         transfer.Txid,
	}, nil
}

// settleSenderAllocations atomically marks the spent inputs, credits the
// beneficiary seal and books the change at the reserved terminal.
func (s *transferService) settleSenderAllocations(
	ctx context.Context, contract *domain.Contract, invoice *domain.Invoice,
	spentUtxos []string, txid, changeTerminal string, changeVout int,
) error {
	spent := make(map[string]struct{}, len(spentUtxos))
	for _, utxo := range spentUtxos {
		spent[utxo] = struct{}{}
	}

	return s.repoManager.ContractRepository().UpdateAllocations(
		ctx, contract.ContractID,
		func(allocations []domain.Allocation) ([]domain.Allocation, error) {
			var spentSum uint64
			var tokenIndex uint32
			for i := range allocations {
				if _, ok := spent[allocations[i].Utxo]; !ok {
					continue
				}
				if !allocations[i].IsMine {
					return nil, domain.ErrAllocationNotFound
				}
				if err := allocations[i].Spend(); err != nil {
					return nil, err
				}
				if allocations[i].Value.IsUDA() {
					uda := allocations[i].Value.UDA()
					tokenIndex = uda.TokenIndex
					spentSum += uda.Fraction
				} else {
					spentSum += allocations[i].Value.Amount()
				}
			}
			if spentSum < invoice.Amount {
				return nil, domain.ErrInsufficientAllocation
			}

			recipientValue := domain.NewFungibleValue(invoice.Amount)
			if contract.IsUDA() {
				recipientValue = domain.NewUDAValue(tokenIndex, invoice.Amount)
			}
			allocations = append(allocations, domain.Allocation{
				ContractID: contract.ContractID,
				Utxo:       invoice.Seal,
				Value:      recipientValue,
				IsMine:     false,
			})

			if change := spentSum - invoice.Amount; change > 0 {
				changeValue := domain.NewFungibleValue(change)
				if contract.IsUDA() {
					changeValue = domain.NewUDAValue(tokenIndex, change)
				}
				allocations = append(allocations, domain.Allocation{
					ContractID: contract.ContractID,
					Utxo:       fmt.Sprintf("%s:%d", txid, changeVout),
					Value:      changeValue,
					Derivation: changeTerminal,
					IsMine:     true,
				})
			}

			return allocations, checkSupply(contract, allocations)
		},
	)
}

// spentTokenIndex resolves the token index carried by the UDA allocation
// being spent, so the consignment credits the beneficiary with the right
// token on the receiving side.
func (s *transferService) spentTokenIndex(
	ctx context.Context, contractID string, spentUtxos []string,
) (uint32, error) {
	allocations, err := s.repoManager.ContractRepository().GetAllocations(
		ctx, contractID,
	)
	if err != nil {
		return 0, err
	}
	spent := make(map[string]struct{}, len(spentUtxos))
	for _, utxo := range spentUtxos {
		spent[utxo] = struct{}{}
	}
	for _, a := range allocations {
		if _, ok := spent[a.Utxo]; !ok {
			continue
		}
		if a.Value.IsUDA() {
			return a.Value.UDA().TokenIndex, nil
		}
	}
	return 0, nil
}

// consumeLocalInvoice enforces single use for invoices issued by this
// daemon. Foreign invoices have no local record to consume.
func (s *transferService) consumeLocalInvoice(
	ctx context.Context, invoice *domain.Invoice,
) error {
	invoiceID := invoice.Params["id"]
	if len(invoiceID) <= 0 {
		return nil
	}
	err := s.repoManager.InvoiceRepository().UpdateInvoice(
		ctx, invoiceID,
		func(i *domain.Invoice) (*domain.Invoice, error) {
			if err := i.Consume(); err != nil {
				return nil, err
			}
			return i, nil
		},
	)
	if err != nil && !errors.Is(err, domain.ErrInvoiceNotFound) {
		return err
	}
	return nil
}

// releaseLocalInvoice undoes the single-use reservation of a local invoice.
func (s *transferService) releaseLocalInvoice(
	ctx context.Context, invoice *domain.Invoice,
) {
	invoiceID := invoice.Params["id"]
	if len(invoiceID) <= 0 {
		return
	}
	err := s.repoManager.InvoiceRepository().UpdateInvoice(
		ctx, invoiceID,
		func(i *domain.Invoice) (*domain.Invoice, error) {
			i.Release()
			return i, nil
		},
	)
	if err != nil && !errors.Is(err, domain.ErrInvoiceNotFound) {
		log.WithError(err).Warn("failed to release invoice reservation")
	}
}

func (s *transferService) AcceptTransfer(
	ctx context.Context, consig string, force bool,
) (*AcceptResponse, error) {
	raw, err := decodeAnyFormat(consig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	var payload consignmentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed consignment", ErrInvalidRequest)
	}
	if len(payload.ConsigID) <= 0 || len(payload.ContractID) <= 0 {
		return nil, fmt.Errorf("%w: consignment misses identity", ErrInvalidRequest)
	}

	contract, err := s.repoManager.ContractRepository().GetContract(
		ctx, payload.ContractID,
	)
	if err != nil {
		return nil, err
	}

	valid, err := s.verifyConsignment(payload)
	if err != nil {
		return nil, err
	}

	response := &AcceptResponse{
		ConsigID:   payload.ConsigID,
		ContractID: payload.ContractID,
		Valid:      valid,
	}
	if !valid && !force {
		return response, nil
	}
	if !valid {
		// Accepting invalid state is a deliberate trapdoor: it must be
		// explicit and auditable.
		response.Forced = true
		log.WithFields(log.Fields{
			"consig":   payload.ConsigID,
			"contract": payload.ContractID,
		}).Warn("consignment forcibly accepted despite failing validation")
		if !s.forceAcceptAdvancesState {
			if err := s.recordAcceptedTransfer(ctx, payload, false); err != nil {
				return nil, err
			}
			return response, nil
		}
	}

	if err := s.creditBeneficiary(ctx, contract, payload); err != nil {
		return nil, err
	}
	if err := s.recordAcceptedTransfer(ctx, payload, true); err != nil {
		return nil, err
	}

	if _, err := s.blobStore.Put(ctx, raw); err != nil {
		log.WithError(err).Warn("failed to store consignment blob")
	}
	return response, nil
}

// verifyConsignment independently re-derives the anchoring commitment.
func (s *transferService) verifyConsignment(payload consignmentPayload) (bool, error) {
	txOuts := make([][]byte, 0, len(payload.Outputs))
	for _, out := range payload.Outputs {
		raw, err := hex.DecodeString(out)
		if err != nil {
			return false, fmt.Errorf("%w: malformed consignment output", ErrInvalidRequest)
		}
		txOuts = append(txOuts, raw)
	}
	ok, err := commitment.Verify(
		payload.Commit, payload.ConsigID, payload.Terminal, txOuts,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	return ok, nil
}

// creditBeneficiary books the received allocation as owned. The allocation
// may already exist as foreign if this daemon also ran the sending side.
func (s *transferService) creditBeneficiary(
	ctx context.Context, contract *domain.Contract, payload consignmentPayload,
) error {
	return s.repoManager.ContractRepository().UpdateAllocations(
		ctx, contract.ContractID,
		func(allocations []domain.Allocation) ([]domain.Allocation, error) {
			for i := range allocations {
				if allocations[i].Utxo != payload.Beneficiary {
					continue
				}
				allocations[i].IsMine = true
				return allocations, checkSupply(contract, allocations)
			}

			value := domain.NewFungibleValue(payload.Amount)
			if contract.IsUDA() {
				value = domain.NewUDAValue(payload.TokenIndex, payload.Amount)
			}
			allocations = append(allocations, domain.Allocation{
				ContractID: contract.ContractID,
				Utxo:       payload.Beneficiary,
				Value:      value,
				IsMine:     true,
			})
			return allocations, checkSupply(contract, allocations)
		},
	)
}

func (s *transferService) recordAcceptedTransfer(
	ctx context.Context, payload consignmentPayload, accepted bool,
) error {
	transfer := domain.NewTransfer(payload.ContractID, payload.Iface)
	transfer.ConsigID = payload.ConsigID
	transfer.Commit = payload.Commit
	transfer.Txid = payload.Txid
	transfer.Beneficiary = payload.Beneficiary
	statusCode := domain.TransferStatusCodeRejected
	if accepted {
		statusCode = domain.TransferStatusCodeAccepted
	}
	transfer.Status = domain.TransferStatus{Code: statusCode}
	return s.repoManager.TransferRepository().AddTransfer(ctx, *transfer)
}

func (s *transferService) SaveTransfer(
	ctx context.Context, transfer domain.Transfer,
) error {
	if len(transfer.ConsigID) <= 0 {
		return fmt.Errorf("%w: missing consignment id", ErrInvalidRequest)
	}
	return s.repoManager.TransferRepository().AddTransfer(ctx, transfer)
}

func (s *transferService) RemoveTransfer(
	ctx context.Context, contractID string, consigIDs []string,
) error {
	return s.repoManager.TransferRepository().RemoveTransfers(
		ctx, contractID, consigIDs,
	)
}

func (s *transferService) ListTransfers(
	ctx context.Context, contractID string,
) ([]domain.Transfer, error) {
	return s.repoManager.TransferRepository().GetAllTransfers(ctx, contractID)
}

func (s *transferService) VerifyTransfers(
	ctx context.Context,
) ([]TransferStatusUpdate, error) {
	pending, err := s.repoManager.TransferRepository().GetPendingTransfers(ctx)
	if err != nil {
		return nil, err
	}

	updates := make([]TransferStatusUpdate, 0, len(pending))
	for _, transfer := range pending {
		observed, err := s.explorer.GetTransactionStatus(transfer.Txid)
		if err != nil {
			log.WithError(err).WithField("txid", transfer.Txid).
				Debug("failed to poll tx status")
			continue
		}
		next := chainStatus(observed)

		var updated *domain.Transfer
		if err := s.repoManager.TransferRepository().UpdateTransfer(
			ctx, transfer.ConsigID,
			func(t *domain.Transfer) (*domain.Transfer, error) {
				t.AdvanceChainStatus(next)
				updated = t
				return t, nil
			},
		); err != nil {
			return nil, err
		}
		updates = append(updates, TransferStatusUpdate{
			ConsigID: transfer.ConsigID,
			Txid:     transfer.Txid,
			Status:   updated.ChainStatus,
		})
	}
	return updates, nil
}

// checkSupply enforces balance conservation: the unspent allocations of a
// contract never exceed its issued supply.
func checkSupply(contract *domain.Contract, allocations []domain.Allocation) error {
	unspent := make([]uint64, 0, len(allocations))
	for _, allocation := range allocations {
		if allocation.IsSpent {
			continue
		}
		if allocation.Value.IsUDA() {
			unspent = append(unspent, allocation.Value.UDA().Fraction)
			continue
		}
		unspent = append(unspent, allocation.Value.Amount())
	}
	total, err := amountutil.CheckedSum(unspent)
	if err != nil {
		return domain.ErrSupplyMismatch
	}
	if total > contract.Supply {
		return domain.ErrSupplyMismatch
	}
	return nil
}
