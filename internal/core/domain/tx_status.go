package domain

import (
	"encoding/json"
	"fmt"
)

// Chain status codes, ordered. A status may only move forward along this
// ordering; Error is terminal and reachable from any state.
const (
	TxStatusCodeNotFound = iota
	TxStatusCodeMempool
	TxStatusCodeBlock
	TxStatusCodeError
)

// TxStatus is the confirmation state of a transaction: one of not_found,
// mempool, block(height) or error(message). The zero value is not_found.
type TxStatus struct {
	code   int
	height uint32
	reason string
}

// NewTxStatusNotFound ...
func NewTxStatusNotFound() TxStatus {
	return TxStatus{code: TxStatusCodeNotFound}
}

// NewTxStatusMempool ...
func NewTxStatusMempool() TxStatus {
	return TxStatus{code: TxStatusCodeMempool}
}

// NewTxStatusBlock returns a status for a tx confirmed at the given height.
func NewTxStatusBlock(height uint32) TxStatus {
	return TxStatus{code: TxStatusCodeBlock, height: height}
}

// NewTxStatusError returns the terminal error status with its reason.
func NewTxStatusError(reason string) TxStatus {
	return TxStatus{code: TxStatusCodeError, reason: reason}
}

// IsNotFound returns whether the tx is unknown to the chain.
func (s TxStatus) IsNotFound() bool {
	return s.code == TxStatusCodeNotFound
}

// IsMempool returns whether the tx sits unconfirmed in the mempool.
func (s TxStatus) IsMempool() bool {
	return s.code == TxStatusCodeMempool
}

// IsConfirmed returns whether the tx is included in a block.
func (s TxStatus) IsConfirmed() bool {
	return s.code == TxStatusCodeBlock
}

// IsError returns whether the status is the terminal error state.
func (s TxStatus) IsError() bool {
	return s.code == TxStatusCodeError
}

// BlockHeight returns the confirmation height, valid only if IsConfirmed.
func (s TxStatus) BlockHeight() uint32 {
	return s.height
}

// Reason returns the error message, valid only if IsError.
func (s TxStatus) Reason() string {
	return s.reason
}

// Advance returns the status resulting from observing next after the current
// one. Statuses only move forward: a confirmed tx never regresses to mempool
// or not_found, while an error observation is terminal from any state.
func (s TxStatus) Advance(next TxStatus) TxStatus {
	if s.code == TxStatusCodeError {
		return s
	}
	if next.code == TxStatusCodeError {
		return next
	}
	if next.code < s.code {
		return s
	}
	// Re-orgs may move a confirmed tx to a different height, never below
	// the recorded one.
	if next.code == TxStatusCodeBlock && s.code == TxStatusCodeBlock &&
		next.height < s.height {
		return s
	}
	return next
}

func (s TxStatus) String() string {
	switch s.code {
	case TxStatusCodeMempool:
		return "mempool"
	case TxStatusCodeBlock:
		return fmt.Sprintf("block(%d)", s.height)
	case TxStatusCodeError:
		return fmt.Sprintf("error(%s)", s.reason)
	default:
		return "not_found"
	}
}

type txStatusJSON struct {
	Status string `json:"status"`
	Height uint32 `json:"height,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s TxStatus) MarshalJSON() ([]byte, error) {
	out := txStatusJSON{Height: s.height, Reason: s.reason}
	switch s.code {
	case TxStatusCodeMempool:
		out.Status = "mempool"
	case TxStatusCodeBlock:
		out.Status = "block"
	case TxStatusCodeError:
		out.Status = "error"
	default:
		out.Status = "not_found"
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TxStatus) UnmarshalJSON(data []byte) error {
	var in txStatusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case "not_found":
		*s = NewTxStatusNotFound()
	case "mempool":
		*s = NewTxStatusMempool()
	case "block":
		*s = NewTxStatusBlock(in.Height)
	case "error":
		*s = NewTxStatusError(in.Reason)
	default:
		return fmt.Errorf("unknown tx status %q", in.Status)
	}
	return nil
}
