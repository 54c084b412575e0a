package domain

import "context"

// TransferRepository is the local transfer ledger.
type TransferRepository interface {
	AddTransfer(ctx context.Context, transfer Transfer) error
	GetTransfer(ctx context.Context, consigID string) (*Transfer, error)
	GetAllTransfers(ctx context.Context, contractID string) ([]Transfer, error)
	// GetPendingTransfers returns the published transfers whose chain status
	// is not yet final, the working set of a VerifyTransfers poll.
	GetPendingTransfers(ctx context.Context) ([]Transfer, error)
	// UpdateTransfer atomically applies updateFn to the stored transfer.
	UpdateTransfer(
		ctx context.Context, consigID string,
		updateFn func(*Transfer) (*Transfer, error),
	) error
	RemoveTransfers(ctx context.Context, contractID string, consigIDs []string) error
}
