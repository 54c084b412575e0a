package domain

import "context"

// OrderbookRepository stores offers and bids of the swap protocol.
type OrderbookRepository interface {
	AddOffer(ctx context.Context, offer Offer) error
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	// GetPublicOffers lists the open offers with a public strategy.
	GetPublicOffers(ctx context.Context) ([]Offer, error)
	GetAllOffers(ctx context.Context) ([]Offer, error)
	// UpdateOffer atomically applies updateFn to the stored offer.
	// Concurrent updates for the same offer are serialized, which is what
	// guarantees a single winning bid.
	UpdateOffer(
		ctx context.Context, offerID string,
		updateFn func(*Offer) (*Offer, error),
	) error

	AddBid(ctx context.Context, bid Bid) error
	GetBid(ctx context.Context, bidID string) (*Bid, error)
	GetBidsByOffer(ctx context.Context, offerID string) ([]Bid, error)
	GetAllBids(ctx context.Context) ([]Bid, error)
	// UpdateBid atomically applies updateFn to the stored bid.
	UpdateBid(
		ctx context.Context, bidID string,
		updateFn func(*Bid) (*Bid, error),
	) error
}
