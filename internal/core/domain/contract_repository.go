package domain

import "context"

// ContractRepository is the persistent registry of contracts and of the
// allocation sets they own.
type ContractRepository interface {
	AddContract(ctx context.Context, contract Contract) error
	GetContract(ctx context.Context, contractID string) (*Contract, error)
	GetAllContracts(ctx context.Context, includeHidden bool) ([]Contract, error)
	// UpdateContract atomically applies updateFn to the stored contract.
	UpdateContract(
		ctx context.Context, contractID string,
		updateFn func(*Contract) (*Contract, error),
	) error

	AddAllocation(ctx context.Context, allocation Allocation) error
	GetAllocations(ctx context.Context, contractID string) ([]Allocation, error)
	GetAllAllocations(ctx context.Context) ([]Allocation, error)
	// UpdateAllocations atomically applies updateFn to the full allocation
	// set of a contract. This is the single write path for allocation
	// mutations: marking spent, adding the recipient allocation of an
	// accepted transfer, or both at once for a local transfer. Concurrent
	// updates for the same contract are serialized.
	UpdateAllocations(
		ctx context.Context, contractID string,
		updateFn func([]Allocation) ([]Allocation, error),
	) error
}

// InvoiceRepository stores single-use invoices.
type InvoiceRepository interface {
	AddInvoice(ctx context.Context, invoice Invoice) error
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	// UpdateInvoice atomically applies updateFn to the stored invoice; used
	// to consume it exactly once.
	UpdateInvoice(
		ctx context.Context, invoiceID string,
		updateFn func(*Invoice) (*Invoice, error),
	) error
}
