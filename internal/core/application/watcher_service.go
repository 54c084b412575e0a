package application

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

// maxDerivationScan bounds the number of consecutive used addresses skipped
// while looking for the next unused one.
const maxDerivationScan = 100

// AddressInfo is an address along the watcher derivation sequence and the
// terminal it was derived at.
type AddressInfo struct {
	Address  string `json:"address"`
	Terminal string `json:"terminal"`
}

// AllocationDetail is an allocation annotated with the chain status of its
// funding transaction.
type AllocationDetail struct {
	ContractID string                 `json:"contractId"`
	Utxo       string                 `json:"utxo"`
	Value      domain.AllocationValue `json:"value"`
	Derivation string                 `json:"derivation"`
	IsMine     bool                   `json:"isMine"`
	IsSpent    bool                   `json:"isSpent"`
	Status     domain.TxStatus        `json:"status"`
}

// ContractAllocations groups the allocations a watcher sees for one
// contract.
type ContractAllocations struct {
	ContractID  string             `json:"contractId"`
	Iface       string             `json:"iface"`
	Balance     uint64             `json:"balance"`
	Allocations []AllocationDetail `json:"allocations"`
}

// WatcherDetail is the full view of a watcher: its identity and, per
// contract, the allocation list visible to it.
type WatcherDetail struct {
	Name      string                `json:"name"`
	Xpub      string                `json:"xpub"`
	CreatedAt int64                 `json:"createdAt"`
	Contracts []ContractAllocations `json:"contracts"`
}

// WatcherService tracks derivation sequences and the asset-bearing utxos
// they discover. Calls touching chain state may refresh cached statuses but
// never mutate allocation ownership.
type WatcherService interface {
	CreateWatcher(ctx context.Context, name, xpub string, force bool) (*domain.Watcher, error)
	NextAddress(ctx context.Context, name, iface string) (*AddressInfo, error)
	NextUtxo(ctx context.Context, name, iface string) (*AllocationDetail, error)
	UnspentUtxos(ctx context.Context, name, iface string) ([]AllocationDetail, error)
	WatcherDetails(ctx context.Context, name string) (*WatcherDetail, error)
	WatcherAddress(ctx context.Context, name, address string) ([]AllocationDetail, error)
	WatcherUtxo(ctx context.Context, name, utxo string) ([]AllocationDetail, error)
}

type watcherService struct {
	repoManager ports.RepoManager
	explorer    explorer.Service
	net         *chaincfg.Params
}

// NewWatcherService returns a WatcherService backed by the given
// repositories and chain indexer.
func NewWatcherService(
	repoManager ports.RepoManager, explorerSvc explorer.Service,
	net *chaincfg.Params,
) WatcherService {
	return &watcherService{
		repoManager: repoManager,
		explorer:    explorerSvc,
		net:         net,
	}
}

func (s *watcherService) CreateWatcher(
	ctx context.Context, name, xpub string, force bool,
) (*domain.Watcher, error) {
	if len(name) <= 0 {
		return nil, fmt.Errorf("%w: missing watcher name", ErrInvalidRequest)
	}
	if err := validateXpub(xpub, s.net); err != nil {
		return nil, err
	}

	watcher := domain.NewWatcher(name, xpub)
	if err := s.repoManager.WatcherRepository().AddWatcher(
		ctx, *watcher, force,
	); err != nil {
		return nil, err
	}
	log.WithField("watcher", name).Debug("watcher created")
	return watcher, nil
}

// NextAddress returns the next never-used address of the external chain.
// Without an intervening allocation the same address is returned on every
// call; once it shows history the cursor advances past it.
func (s *watcherService) NextAddress(
	ctx context.Context, name, iface string,
) (*AddressInfo, error) {
	watcher, err := s.repoManager.WatcherRepository().GetWatcher(ctx, name)
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxDerivationScan; i++ {
		index := watcher.NextIndex(iface)
		addr, _, err := deriveAddress(
			watcher.Xpub, domain.ExternalChain, index, s.net,
		)
		if err != nil {
			return nil, err
		}

		used, err := s.explorer.HasAddressHistory(addr)
		if err != nil {
			return nil, fmt.Errorf("querying address history: %w", err)
		}
		if !used {
			return &AddressInfo{
				Address:  addr,
				Terminal: terminalPath(domain.ExternalChain, index),
			}, nil
		}

		if err := s.repoManager.WatcherRepository().UpdateWatcher(
			ctx, name,
			func(w *domain.Watcher) (*domain.Watcher, error) {
				w.AdvanceCursor(iface)
				return w, nil
			},
		); err != nil {
			return nil, err
		}
		watcher, err = s.repoManager.WatcherRepository().GetWatcher(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no unused address within %d derivations", maxDerivationScan)
}

// NextUtxo returns the next unspent asset-bearing utxo for the interface, or
// nil if the interface has no further allocations.
func (s *watcherService) NextUtxo(
	ctx context.Context, name, iface string,
) (*AllocationDetail, error) {
	unspents, err := s.UnspentUtxos(ctx, name, iface)
	if err != nil {
		return nil, err
	}
	if len(unspents) <= 0 {
		return nil, nil
	}
	return &unspents[0], nil
}

func (s *watcherService) UnspentUtxos(
	ctx context.Context, name, iface string,
) ([]AllocationDetail, error) {
	if _, err := s.repoManager.WatcherRepository().GetWatcher(ctx, name); err != nil {
		return nil, err
	}

	contracts, err := s.repoManager.ContractRepository().GetAllContracts(ctx, true)
	if err != nil {
		return nil, err
	}

	details := make([]AllocationDetail, 0)
	for _, contract := range contracts {
		if contract.Iface != iface {
			continue
		}
		allocations, err := s.repoManager.ContractRepository().GetAllocations(
			ctx, contract.ContractID,
		)
		if err != nil {
			return nil, err
		}
		for _, allocation := range allocations {
			if !allocation.IsMine || allocation.IsSpent {
				continue
			}
			details = append(details, s.annotate(allocation))
		}
	}
	return details, nil
}

func (s *watcherService) WatcherDetails(
	ctx context.Context, name string,
) (*WatcherDetail, error) {
	watcher, err := s.repoManager.WatcherRepository().GetWatcher(ctx, name)
	if err != nil {
		return nil, err
	}

	contracts, err := s.repoManager.ContractRepository().GetAllContracts(ctx, true)
	if err != nil {
		return nil, err
	}

	detail := &WatcherDetail{
		Name:      watcher.Name,
		Xpub:      watcher.Xpub,
		CreatedAt: watcher.CreatedAt,
		Contracts: make([]ContractAllocations, 0, len(contracts)),
	}
	for _, contract := range contracts {
		allocations, err := s.repoManager.ContractRepository().GetAllocations(
			ctx, contract.ContractID,
		)
		if err != nil {
			return nil, err
		}
		annotated := make([]AllocationDetail, 0, len(allocations))
		for _, allocation := range allocations {
			annotated = append(annotated, s.annotate(allocation))
		}
		detail.Contracts = append(detail.Contracts, ContractAllocations{
			ContractID:  contract.ContractID,
			Iface:       contract.Iface,
			Balance:     contract.Balance(allocations),
			Allocations: annotated,
		})
	}
	return detail, nil
}

// WatcherAddress lists the allocations bound to scripts derived at the given
// address.
func (s *watcherService) WatcherAddress(
	ctx context.Context, name, address string,
) ([]AllocationDetail, error) {
	watcher, err := s.repoManager.WatcherRepository().GetWatcher(ctx, name)
	if err != nil {
		return nil, err
	}

	allocations, err := s.repoManager.ContractRepository().GetAllAllocations(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]AllocationDetail, 0)
	for _, allocation := range allocations {
		chain, index, err := parseTerminal(allocation.Derivation)
		if err != nil {
			continue
		}
		derived, _, err := deriveAddress(watcher.Xpub, chain, index, s.net)
		if err != nil {
			continue
		}
		if derived != address {
			continue
		}
		details = append(details, s.annotate(allocation))
	}
	return details, nil
}

// WatcherUtxo lists the allocations bound to the given utxo across every
// contract.
func (s *watcherService) WatcherUtxo(
	ctx context.Context, name, utxo string,
) ([]AllocationDetail, error) {
	if _, err := s.repoManager.WatcherRepository().GetWatcher(ctx, name); err != nil {
		return nil, err
	}

	allocations, err := s.repoManager.ContractRepository().GetAllAllocations(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]AllocationDetail, 0)
	for _, allocation := range allocations {
		if allocation.Utxo != utxo {
			continue
		}
		details = append(details, s.annotate(allocation))
	}
	return details, nil
}

// annotate tags an allocation with the live chain status of its funding tx.
// Indexer failures degrade to not_found rather than failing the read.
func (s *watcherService) annotate(allocation domain.Allocation) AllocationDetail {
	status := domain.NewTxStatusNotFound()
	observed, err := s.explorer.GetTransactionStatus(utxoTxid(allocation.Utxo))
	if err != nil {
		log.WithError(err).WithField("utxo", allocation.Utxo).
			Debug("failed to refresh utxo status")
	} else {
		status = chainStatus(observed)
	}
	return AllocationDetail{
		ContractID: allocation.ContractID,
		Utxo:       allocation.Utxo,
		Value:      allocation.Value,
		Derivation: allocation.Derivation,
		IsMine:     allocation.IsMine,
		IsSpent:    allocation.IsSpent,
		Status:     status,
	}
}
