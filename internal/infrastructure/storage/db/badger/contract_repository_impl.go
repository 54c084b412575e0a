package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

type contractRepositoryImpl struct {
	store *badgerhold.Store
	locks *keyedMutex
}

func newContractRepositoryImpl(store *badgerhold.Store) domain.ContractRepository {
	return &contractRepositoryImpl{store: store, locks: newKeyedMutex()}
}

func (r *contractRepositoryImpl) AddContract(
	ctx context.Context, contract domain.Contract,
) error {
	if err := r.store.Insert(contract.ContractID, &contract); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrInvalidContractData
		}
		return err
	}
	return nil
}

func (r *contractRepositoryImpl) GetContract(
	ctx context.Context, contractID string,
) (*domain.Contract, error) {
	var contract domain.Contract
	if err := r.store.Get(contractID, &contract); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	return &contract, nil
}

func (r *contractRepositoryImpl) GetAllContracts(
	ctx context.Context, includeHidden bool,
) ([]domain.Contract, error) {
	var contracts []domain.Contract
	var query *badgerhold.Query
	if !includeHidden {
		query = badgerhold.Where("Hidden").Eq(false)
	}
	if err := r.store.Find(&contracts, query); err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *contractRepositoryImpl) UpdateContract(
	ctx context.Context, contractID string,
	updateFn func(*domain.Contract) (*domain.Contract, error),
) error {
	unlock := r.locks.lock(contractID)
	defer unlock()

	contract, err := r.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	updated, err := updateFn(contract)
	if err != nil {
		return err
	}
	return r.store.Update(contractID, updated)
}

func (r *contractRepositoryImpl) AddAllocation(
	ctx context.Context, allocation domain.Allocation,
) error {
	unlock := r.locks.lock(allocKey(allocation.ContractID))
	defer unlock()

	key := allocationKey(allocation.ContractID, allocation.Utxo)
	if err := r.store.Insert(key, &allocation); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrAllocationExists
		}
		return err
	}
	return nil
}

func (r *contractRepositoryImpl) GetAllocations(
	ctx context.Context, contractID string,
) ([]domain.Allocation, error) {
	var allocations []domain.Allocation
	query := badgerhold.Where("ContractID").Eq(contractID)
	if err := r.store.Find(&allocations, query); err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *contractRepositoryImpl) GetAllAllocations(
	ctx context.Context,
) ([]domain.Allocation, error) {
	var allocations []domain.Allocation
	if err := r.store.Find(&allocations, nil); err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *contractRepositoryImpl) UpdateAllocations(
	ctx context.Context, contractID string,
	updateFn func([]domain.Allocation) ([]domain.Allocation, error),
) error {
	unlock := r.locks.lock(allocKey(contractID))
	defer unlock()

	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var allocations []domain.Allocation
		query := badgerhold.Where("ContractID").Eq(contractID)
		if err := r.store.TxFind(tx, &allocations, query); err != nil {
			return err
		}

		updated, err := updateFn(allocations)
		if err != nil {
			return err
		}

		for _, allocation := range updated {
			if allocation.ContractID != contractID {
				return fmt.Errorf(
					"allocation update for %s returned foreign contract %s",
					contractID, allocation.ContractID,
				)
			}
			key := allocationKey(allocation.ContractID, allocation.Utxo)
			alloc := allocation
			if err := r.store.TxUpsert(tx, key, &alloc); err != nil {
				return err
			}
		}
		return nil
	})
}

func allocationKey(contractID, utxo string) string {
	return contractID + "/" + utxo
}

func allocKey(contractID string) string {
	return "alloc/" + contractID
}
