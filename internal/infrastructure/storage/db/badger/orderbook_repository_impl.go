package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

type orderbookRepositoryImpl struct {
	store *badgerhold.Store
	locks *keyedMutex
}

func newOrderbookRepositoryImpl(store *badgerhold.Store) domain.OrderbookRepository {
	return &orderbookRepositoryImpl{store: store, locks: newKeyedMutex()}
}

func (r *orderbookRepositoryImpl) AddOffer(
	ctx context.Context, offer domain.Offer,
) error {
	if err := r.store.Insert(offer.OfferID, &offer); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("offer %s already exists", offer.OfferID)
		}
		return err
	}
	return nil
}

func (r *orderbookRepositoryImpl) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	var offer domain.Offer
	if err := r.store.Get(offerID, &offer); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (r *orderbookRepositoryImpl) GetPublicOffers(
	ctx context.Context,
) ([]domain.Offer, error) {
	offers, err := r.GetAllOffers(ctx)
	if err != nil {
		return nil, err
	}
	public := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.Status != domain.OrderStatusOpen || !offer.Strategy.IsPublic() {
			continue
		}
		public = append(public, offer)
	}
	return public, nil
}

func (r *orderbookRepositoryImpl) GetAllOffers(
	ctx context.Context,
) ([]domain.Offer, error) {
	var offers []domain.Offer
	if err := r.store.Find(&offers, nil); err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *orderbookRepositoryImpl) UpdateOffer(
	ctx context.Context, offerID string,
	updateFn func(*domain.Offer) (*domain.Offer, error),
) error {
	unlock := r.locks.lock(offerID)
	defer unlock()

	offer, err := r.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	updated, err := updateFn(offer)
	if err != nil {
		return err
	}
	return r.store.Update(offerID, updated)
}

func (r *orderbookRepositoryImpl) AddBid(ctx context.Context, bid domain.Bid) error {
	if err := r.store.Insert(bid.BidID, &bid); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("bid %s already exists", bid.BidID)
		}
		return err
	}
	return nil
}

func (r *orderbookRepositoryImpl) GetBid(
	ctx context.Context, bidID string,
) (*domain.Bid, error) {
	var bid domain.Bid
	if err := r.store.Get(bidID, &bid); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrBidNotFound
		}
		return nil, err
	}
	return &bid, nil
}

func (r *orderbookRepositoryImpl) GetBidsByOffer(
	ctx context.Context, offerID string,
) ([]domain.Bid, error) {
	var bids []domain.Bid
	query := badgerhold.Where("OfferID").Eq(offerID)
	if err := r.store.Find(&bids, query); err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *orderbookRepositoryImpl) GetAllBids(
	ctx context.Context,
) ([]domain.Bid, error) {
	var bids []domain.Bid
	if err := r.store.Find(&bids, nil); err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *orderbookRepositoryImpl) UpdateBid(
	ctx context.Context, bidID string,
	updateFn func(*domain.Bid) (*domain.Bid, error),
) error {
	unlock := r.locks.lock(bidID)
	defer unlock()

	bid, err := r.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	updated, err := updateFn(bid)
	if err != nil {
		return err
	}
	return r.store.Update(bidID, updated)
}
