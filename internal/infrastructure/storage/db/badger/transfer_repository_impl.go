package dbbadger

import (
	"context"
	"errors"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

type transferRepositoryImpl struct {
	store *badgerhold.Store
	locks *keyedMutex
}

func newTransferRepositoryImpl(store *badgerhold.Store) domain.TransferRepository {
	return &transferRepositoryImpl{store: store, locks: newKeyedMutex()}
}

func (r *transferRepositoryImpl) AddTransfer(
	ctx context.Context, transfer domain.Transfer,
) error {
	return r.store.Upsert(transfer.ConsigID, &transfer)
}

func (r *transferRepositoryImpl) GetTransfer(
	ctx context.Context, consigID string,
) (*domain.Transfer, error) {
	var transfer domain.Transfer
	if err := r.store.Get(consigID, &transfer); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, err
	}
	return &transfer, nil
}

func (r *transferRepositoryImpl) GetAllTransfers(
	ctx context.Context, contractID string,
) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	var query *badgerhold.Query
	if len(contractID) > 0 {
		query = badgerhold.Where("ContractID").Eq(contractID)
	}
	if err := r.store.Find(&transfers, query); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (r *transferRepositoryImpl) GetPendingTransfers(
	ctx context.Context,
) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	if err := r.store.Find(&transfers, nil); err != nil {
		return nil, err
	}

	pending := make([]domain.Transfer, 0, len(transfers))
	for _, transfer := range transfers {
		if !transfer.IsPublished() {
			continue
		}
		if transfer.ChainStatus.IsConfirmed() || transfer.ChainStatus.IsError() {
			continue
		}
		pending = append(pending, transfer)
	}
	return pending, nil
}

func (r *transferRepositoryImpl) UpdateTransfer(
	ctx context.Context, consigID string,
	updateFn func(*domain.Transfer) (*domain.Transfer, error),
) error {
	unlock := r.locks.lock(consigID)
	defer unlock()

	transfer, err := r.GetTransfer(ctx, consigID)
	if err != nil {
		return err
	}
	updated, err := updateFn(transfer)
	if err != nil {
		return err
	}
	return r.store.Update(consigID, updated)
}

func (r *transferRepositoryImpl) RemoveTransfers(
	ctx context.Context, contractID string, consigIDs []string,
) error {
	for _, consigID := range consigIDs {
		transfer, err := r.GetTransfer(ctx, consigID)
		if err != nil {
			if errors.Is(err, domain.ErrTransferNotFound) {
				continue
			}
			return err
		}
		if len(contractID) > 0 && transfer.ContractID != contractID {
			continue
		}
		if err := r.store.Delete(consigID, domain.Transfer{}); err != nil &&
			!errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
	}
	return nil
}
