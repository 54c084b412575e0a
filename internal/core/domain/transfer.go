package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer status codes, in the order they may be traversed.
const (
	TransferStatusCodeDraft = iota
	TransferStatusCodeSigned
	TransferStatusCodePublished
	TransferStatusCodeAccepted
	TransferStatusCodeRejected
	TransferStatusCodeError
)

// TransferStatus tracks the lifecycle position of a transfer.
type TransferStatus struct {
	Code int `json:"code"`
}

// Transfer is the local record of an asset movement: the off-chain
// consignment proof, the anchoring psbt and commitment, and the transaction
// id once broadcast. Contracts and allocations are referenced by id, never
// owned.
type Transfer struct {
	ID          string         `json:"id"`
	ConsigID    string         `json:"consigId"`
	ContractID  string         `json:"contractId"`
	Iface       string         `json:"iface"`
	Consig      string         `json:"consig"`
	Psbt        string         `json:"psbt"`
	Commit      string         `json:"commit"`
	Txid        string         `json:"txid"`
	Beneficiary string         `json:"beneficiary"`
	Sender      bool           `json:"sender"`
	Utxos       []string       `json:"utxos"`
	Status      TransferStatus `json:"status"`
	ChainStatus TxStatus       `json:"chainStatus"`
	CreatedAt   int64          `json:"createdAt"`
	UpdatedAt   int64          `json:"updatedAt"`
}

// NewTransfer returns a draft transfer for the given contract with a fresh
// ledger id.
func NewTransfer(contractID, iface string) *Transfer {
	now := time.Now().Unix()
	return &Transfer{
		ID:         uuid.New().String(),
		ContractID: contractID,
		Iface:      iface,
		Status:     TransferStatus{Code: TransferStatusCodeDraft},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Sign brings a draft transfer to the Signed status, recording the signed
// psbt. Signing is idempotent on an already signed transfer.
func (t *Transfer) Sign(signedPsbt string) error {
	if t.Status.Code == TransferStatusCodeSigned {
		return nil
	}
	if t.Status.Code != TransferStatusCodeDraft {
		return ErrTransferMustBeDraft
	}
	t.Psbt = signedPsbt
	t.Status.Code = TransferStatusCodeSigned
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Publish brings a signed transfer to the Published status, recording the
// broadcast transaction id. The chain status starts at not_found and is
// advanced by VerifyTransfers polls.
func (t *Transfer) Publish(txid string) error {
	if t.Status.Code == TransferStatusCodePublished {
		return nil
	}
	if t.Status.Code != TransferStatusCodeSigned {
		return ErrTransferMustBeSigned
	}
	t.Txid = txid
	t.Status.Code = TransferStatusCodePublished
	t.ChainStatus = NewTxStatusNotFound()
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Accept settles a published transfer as accepted by the counterparty.
func (t *Transfer) Accept() error {
	if t.Status.Code == TransferStatusCodeAccepted {
		return nil
	}
	if t.IsTerminal() {
		return ErrTransferTerminal
	}
	if t.Status.Code != TransferStatusCodePublished {
		return ErrTransferMustBePublished
	}
	t.Status.Code = TransferStatusCodeAccepted
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Reject settles a published transfer as rejected by validation.
func (t *Transfer) Reject() error {
	if t.Status.Code == TransferStatusCodeRejected {
		return nil
	}
	if t.IsTerminal() {
		return ErrTransferTerminal
	}
	t.Status.Code = TransferStatusCodeRejected
	t.UpdatedAt = time.Now().Unix()
	return nil
}

// Fail moves the transfer to the terminal Error status from any state,
// recording the reason in the chain status.
func (t *Transfer) Fail(reason string) {
	if t.Status.Code == TransferStatusCodeError {
		return
	}
	t.Status.Code = TransferStatusCodeError
	t.ChainStatus = NewTxStatusError(reason)
	t.UpdatedAt = time.Now().Unix()
}

// AdvanceChainStatus records a new chain observation, moving the
// confirmation status monotonically forward.
func (t *Transfer) AdvanceChainStatus(next TxStatus) {
	advanced := t.ChainStatus.Advance(next)
	if advanced != t.ChainStatus {
		t.ChainStatus = advanced
		t.UpdatedAt = time.Now().Unix()
	}
}

// IsDraft returns whether the transfer has not been signed yet.
func (t *Transfer) IsDraft() bool {
	return t.Status.Code == TransferStatusCodeDraft
}

// IsSigned returns whether the transfer is signed but not broadcast.
func (t *Transfer) IsSigned() bool {
	return t.Status.Code == TransferStatusCodeSigned
}

// IsPublished returns whether the transfer has been broadcast.
func (t *Transfer) IsPublished() bool {
	return t.Status.Code == TransferStatusCodePublished
}

// IsAccepted returns whether the counterparty accepted the transfer.
func (t *Transfer) IsAccepted() bool {
	return t.Status.Code == TransferStatusCodeAccepted
}

// IsTerminal returns whether the transfer reached a state it cannot leave.
func (t *Transfer) IsTerminal() bool {
	return t.Status.Code == TransferStatusCodeRejected ||
		t.Status.Code == TransferStatusCodeError
}
