package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

type invoiceRepositoryImpl struct {
	store *badgerhold.Store
	locks *keyedMutex
}

func newInvoiceRepositoryImpl(store *badgerhold.Store) domain.InvoiceRepository {
	return &invoiceRepositoryImpl{store: store, locks: newKeyedMutex()}
}

func (r *invoiceRepositoryImpl) AddInvoice(
	ctx context.Context, invoice domain.Invoice,
) error {
	if err := r.store.Insert(invoice.InvoiceID, &invoice); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("invoice %s already exists", invoice.InvoiceID)
		}
		return err
	}
	return nil
}

func (r *invoiceRepositoryImpl) GetInvoice(
	ctx context.Context, invoiceID string,
) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := r.store.Get(invoiceID, &invoice); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepositoryImpl) UpdateInvoice(
	ctx context.Context, invoiceID string,
	updateFn func(*domain.Invoice) (*domain.Invoice, error),
) error {
	unlock := r.locks.lock(invoiceID)
	defer unlock()

	invoice, err := r.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	updated, err := updateFn(invoice)
	if err != nil {
		return err
	}
	return r.store.Update(invoiceID, updated)
}
