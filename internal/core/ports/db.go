package ports

import (
	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

// RepoManager gives access to every repository of the daemon and manages
// their lifecycle.
type RepoManager interface {
	ContractRepository() domain.ContractRepository
	InvoiceRepository() domain.InvoiceRepository
	WatcherRepository() domain.WatcherRepository
	TransferRepository() domain.TransferRepository
	OrderbookRepository() domain.OrderbookRepository
	Close()
}
