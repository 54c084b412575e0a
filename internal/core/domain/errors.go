package domain

import "errors"

var (
	// ErrDuplicateWatcher is thrown when registering a watcher whose name is
	// already taken and force recreation was not requested.
	ErrDuplicateWatcher = errors.New("watcher with the same name already exists")
	// ErrWatcherNotFound ...
	ErrWatcherNotFound = errors.New("watcher not found")
	// ErrInvalidXpub is thrown when a watcher is bound to a key that is not a
	// valid extended public key.
	ErrInvalidXpub = errors.New("invalid extended public key")

	// ErrContractNotFound ...
	ErrContractNotFound = errors.New("contract not found")
	// ErrInvalidContractData is thrown when an imported payload cannot be
	// decoded or revalidated against its schema and interface.
	ErrInvalidContractData = errors.New("invalid contract data")
	// ErrSupplyMismatch is thrown when the allocation set of a contract would
	// exceed its issued supply.
	ErrSupplyMismatch = errors.New("allocations exceed contract supply")

	// ErrAllocationExists is thrown when binding a second allocation value to
	// the same (contract, utxo) pair.
	ErrAllocationExists = errors.New("allocation already exists for utxo")
	// ErrAllocationSpent is thrown when spending an allocation already marked
	// as spent.
	ErrAllocationSpent = errors.New("allocation is already spent")
	// ErrAllocationNotFound ...
	ErrAllocationNotFound = errors.New("allocation not found")
	// ErrInsufficientAllocation is thrown when the unspent allocations of a
	// contract do not cover a requested amount.
	ErrInsufficientAllocation = errors.New("insufficient unspent allocation")

	// ErrInvoiceNotFound ...
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceConsumed is thrown when consuming a single-use invoice twice.
	ErrInvoiceConsumed = errors.New("invoice already consumed")

	// ErrTransferNotFound ...
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrTransferMustBeDraft is thrown when signing a transfer that already
	// moved past the draft state.
	ErrTransferMustBeDraft = errors.New("transfer must be in draft state")
	// ErrTransferMustBeSigned is thrown when publishing a transfer whose psbt
	// was never signed.
	ErrTransferMustBeSigned = errors.New("transfer must be in signed state")
	// ErrTransferMustBePublished is thrown when settling the acceptance of a
	// transfer never anchored on chain.
	ErrTransferMustBePublished = errors.New("transfer must be in published state")
	// ErrTransferTerminal is thrown when mutating a transfer that reached a
	// terminal state.
	ErrTransferTerminal = errors.New("transfer reached a terminal state")

	// ErrOfferNotFound ...
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOfferExpired is thrown when bidding on an offer past its expiry.
	ErrOfferExpired = errors.New("offer is expired")
	// ErrOfferConsumed is thrown when bidding on, or swapping against, an
	// offer already matched by another bid.
	ErrOfferConsumed = errors.New("offer already consumed")
	// ErrBidNotFound ...
	ErrBidNotFound = errors.New("bid not found")
	// ErrBidMismatch is thrown when pairing a bid with an offer it was not
	// made for.
	ErrBidMismatch = errors.New("bid does not reference this offer")
)
