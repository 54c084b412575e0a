package application

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/amountutil"
	"github.com/bitmasklabs/rgbd/pkg/psbtutil"
)

// OfferRequest lists an asset amount for sale at a satoshi price. The seller
// psbt comes pre-built with its asset-side inputs fixed and bitcoin-side
// inputs left open for the winning bid.
type OfferRequest struct {
	ContractID     string `json:"contractId"`
	Iface          string `json:"iface"`
	ContractAmount string `json:"contractAmount"`
	BitcoinPrice   uint64 `json:"bitcoinPrice"`
	SellerPsbt     string `json:"sellerPsbt"`
	SellerAddress  string `json:"sellerAddress"`
	ChangeTerminal string `json:"changeTerminal"`
	Strategy       string `json:"strategy"`
	ExpireAt       int64  `json:"expireAt,omitempty"`
}

// BidRequest answers an offer with the requested asset amount, the buyer
// psbt funding the bitcoin leg and the invoice the asset leg pays to.
type BidRequest struct {
	OfferID      string `json:"offerId"`
	AssetAmount  string `json:"assetAmount"`
	BuyerPsbt    string `json:"buyerPsbt"`
	BuyerInvoice string `json:"buyerInvoice"`
	Fee          Fee    `json:"fee"`
}

// DirectSwapRequest performs the single-round swap variant of the p2p and
// hotswap strategies: bid and swap in one call against a private offer.
type DirectSwapRequest struct {
	BidRequest
	SwapPsbt string `json:"swapPsbt"`
}

// SwapResponse reports a finalized swap: the matched pair and the transfer
// that settled it.
type SwapResponse struct {
	OfferID    string `json:"offerId"`
	BidID      string `json:"bidId"`
	ConsigID   string `json:"consigId"`
	TransferID string `json:"transferId"`
	Txid       string `json:"txid"`
	Psbt       string `json:"psbt"`
}

// Orders groups a party's offers and bids.
type Orders struct {
	Offers []domain.Offer `json:"offers"`
	Bids   []domain.Bid   `json:"bids"`
}

// SwapService matches offers to bids and settles the atomic two-leg
// exchange through the transfer engine.
type SwapService interface {
	CreateOffer(ctx context.Context, req OfferRequest) (*domain.Offer, error)
	// UpdateOffer lets the seller refresh the psbt of a still-open offer.
	UpdateOffer(ctx context.Context, offerID, sellerPsbt string) (*domain.Offer, error)
	CreateBid(ctx context.Context, req BidRequest) (*domain.Bid, error)
	// CreateSwap pairs exactly one bid with one offer. Concurrent bids are
	// serialized per offer: the losers observe ErrOfferConsumed. Either
	// both legs finalize or neither does.
	CreateSwap(ctx context.Context, offerID, bidID, swapPsbt string) (*SwapResponse, error)
	DirectSwap(ctx context.Context, req DirectSwapRequest) (*SwapResponse, error)
	PublicOffers(ctx context.Context) ([]domain.Offer, error)
	MyOrders(ctx context.Context) (*Orders, error)
	MyOffers(ctx context.Context) ([]domain.Offer, error)
	MyBids(ctx context.Context) ([]domain.Bid, error)
}

type swapService struct {
	repoManager ports.RepoManager
	transferSvc TransferService
}

// NewSwapService returns a SwapService settling swaps through the given
// transfer engine.
func NewSwapService(
	repoManager ports.RepoManager, transferSvc TransferService,
) SwapService {
	return &swapService{repoManager: repoManager, transferSvc: transferSvc}
}

func (s *swapService) CreateOffer(
	ctx context.Context, req OfferRequest,
) (*domain.Offer, error) {
	strategy, err := domain.ParseSwapStrategy(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if req.BitcoinPrice <= 0 {
		return nil, fmt.Errorf("%w: missing bitcoin price", ErrInvalidRequest)
	}
	contract, err := s.repoManager.ContractRepository().GetContract(
		ctx, req.ContractID,
	)
	if err != nil {
		return nil, err
	}
	if contract.Iface != req.Iface {
		return nil, fmt.Errorf("%w: contract implements %s, not %s",
			ErrInvalidRequest, contract.Iface, req.Iface)
	}

	units, err := amountutil.Parse(req.ContractAmount, contract.Precision)
	if err != nil {
		return nil, err
	}
	allocations, err := s.repoManager.ContractRepository().GetAllocations(
		ctx, req.ContractID,
	)
	if err != nil {
		return nil, err
	}
	if contract.Balance(allocations) < units {
		return nil, domain.ErrInsufficientAllocation
	}

	packet, err := psbtutil.Decode(req.SellerPsbt)
	if err != nil {
		return nil, err
	}
	assetUtxos := psbtutil.InputOutpoints(packet)

	offer := domain.Offer{
		OfferID:        domain.NewOfferID(req.ContractID, assetUtxos),
		Status:         domain.OrderStatusOpen,
		ContractID:     req.ContractID,
		Iface:          req.Iface,
		AssetAmount:    units,
		AssetPrecision: contract.Precision,
		BitcoinPrice:   req.BitcoinPrice,
		SellerPsbt:     req.SellerPsbt,
		SellerAddress:  req.SellerAddress,
		Terminal:       req.ChangeTerminal,
		Strategy:       strategy,
		ExpireAt:       req.ExpireAt,
		CreatedAt:      time.Now().Unix(),
	}
	if err := s.repoManager.OrderbookRepository().AddOffer(ctx, offer); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer":    offer.OfferID,
		"strategy": strategy.String(),
	}).Debug("offer listed")
	return &offer, nil
}

func (s *swapService) UpdateOffer(
	ctx context.Context, offerID, sellerPsbt string,
) (*domain.Offer, error) {
	if _, err := psbtutil.Decode(sellerPsbt); err != nil {
		return nil, err
	}
	var updated *domain.Offer
	err := s.repoManager.OrderbookRepository().UpdateOffer(
		ctx, offerID,
		func(o *domain.Offer) (*domain.Offer, error) {
			if o.Status != domain.OrderStatusOpen {
				return nil, domain.ErrOfferConsumed
			}
			o.SellerPsbt = sellerPsbt
			updated = o
			return o, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *swapService) CreateBid(
	ctx context.Context, req BidRequest,
) (*domain.Bid, error) {
	offer, err := s.repoManager.OrderbookRepository().GetOffer(ctx, req.OfferID)
	if err != nil {
		return nil, err
	}
	if offer.IsExpired(time.Now()) {
		return nil, domain.ErrOfferExpired
	}
	if offer.Status != domain.OrderStatusOpen {
		return nil, domain.ErrOfferConsumed
	}

	units, err := amountutil.Parse(req.AssetAmount, offer.AssetPrecision)
	if err != nil {
		return nil, err
	}
	if units != offer.AssetAmount {
		return nil, fmt.Errorf("%w: offer sells %d units, bid asks %d",
			ErrInvalidRequest, offer.AssetAmount, units)
	}

	packet, err := psbtutil.Decode(req.BuyerPsbt)
	if err != nil {
		return nil, err
	}
	bitcoinUtxos := psbtutil.InputOutpoints(packet)

	bid := domain.Bid{
		BidID:        domain.NewBidID(req.OfferID, bitcoinUtxos),
		Status:       domain.OrderStatusOpen,
		OfferID:      req.OfferID,
		ContractID:   offer.ContractID,
		Iface:        offer.Iface,
		AssetAmount:  units,
		BitcoinPrice: offer.BitcoinPrice,
		BuyerPsbt:    req.BuyerPsbt,
		BuyerInvoice: req.BuyerInvoice,
		FeeValue:     req.Fee.Absolute(len(packet.Inputs), 2),
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.repoManager.OrderbookRepository().AddBid(ctx, bid); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer": req.OfferID,
		"bid":   bid.BidID,
	}).Debug("bid placed")
	return &bid, nil
}

func (s *swapService) CreateSwap(
	ctx context.Context, offerID, bidID, swapPsbt string,
) (*SwapResponse, error) {
	bid, err := s.repoManager.OrderbookRepository().GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.OfferID != offerID {
		return nil, domain.ErrBidMismatch
	}

	// Consuming the offer under its per-offer lock is what decides the
	// single winner; settlement happens outside the lock.
	var offer *domain.Offer
	if err := s.repoManager.OrderbookRepository().UpdateOffer(
		ctx, offerID,
		func(o *domain.Offer) (*domain.Offer, error) {
			if o.IsExpired(time.Now()) {
				return nil, domain.ErrOfferExpired
			}
			if err := o.Consume(bidID); err != nil {
				return nil, err
			}
			offer = o
			return o, nil
		},
	); err != nil {
		return nil, err
	}

	if len(swapPsbt) <= 0 {
		swapPsbt, err = s.mergeLegs(offer.SellerPsbt, bid.BuyerPsbt)
		if err != nil {
			return nil, s.reopenOffer(ctx, offerID, err)
		}
	}

	transfer, err := s.transferSvc.FullTransferAsset(ctx, TransferRequest{
		Invoice:  bid.BuyerInvoice,
		Psbt:     swapPsbt,
		Terminal: offer.Terminal,
	})
	if err != nil {
		return nil, s.reopenOffer(ctx, offerID, err)
	}

	if err := s.repoManager.OrderbookRepository().UpdateOffer(
		ctx, offerID,
		func(o *domain.Offer) (*domain.Offer, error) {
			o.TransferID = transfer.ConsigID
			return o, nil
		},
	); err != nil {
		return nil, err
	}
	if err := s.repoManager.OrderbookRepository().UpdateBid(
		ctx, bidID,
		func(b *domain.Bid) (*domain.Bid, error) {
			b.Fill()
			b.TransferID = transfer.ConsigID
			return b, nil
		},
	); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer": offerID,
		"bid":   bidID,
		"txid":  transfer.Txid,
	}).Debug("swap finalized")
	return &SwapResponse{
		OfferID:    offerID,
		BidID:      bidID,
		ConsigID:   transfer.ConsigID,
		TransferID: transfer.ConsigID,
		Txid:       transfer.Txid,
		Psbt:       transfer.Psbt,
	}, nil
}

func (s *swapService) DirectSwap(
	ctx context.Context, req DirectSwapRequest,
) (*SwapResponse, error) {
	offer, err := s.repoManager.OrderbookRepository().GetOffer(ctx, req.OfferID)
	if err != nil {
		return nil, err
	}
	if offer.Strategy.IsPublic() {
		return nil, fmt.Errorf("%w: public offers settle through createSwap",
			ErrInvalidRequest)
	}

	bid, err := s.CreateBid(ctx, req.BidRequest)
	if err != nil {
		return nil, err
	}
	return s.CreateSwap(ctx, req.OfferID, bid.BidID, req.SwapPsbt)
}

func (s *swapService) PublicOffers(ctx context.Context) ([]domain.Offer, error) {
	offers, err := s.repoManager.OrderbookRepository().GetPublicOffers(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	listable := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.IsExpired(now) {
			continue
		}
		listable = append(listable, offer)
	}
	return listable, nil
}

func (s *swapService) MyOrders(ctx context.Context) (*Orders, error) {
	offers, err := s.MyOffers(ctx)
	if err != nil {
		return nil, err
	}
	bids, err := s.MyBids(ctx)
	if err != nil {
		return nil, err
	}
	return &Orders{Offers: offers, Bids: bids}, nil
}

func (s *swapService) MyOffers(ctx context.Context) ([]domain.Offer, error) {
	return s.repoManager.OrderbookRepository().GetAllOffers(ctx)
}

func (s *swapService) MyBids(ctx context.Context) ([]domain.Bid, error) {
	return s.repoManager.OrderbookRepository().GetAllBids(ctx)
}

func (s *swapService) mergeLegs(sellerPsbt, buyerPsbt string) (string, error) {
	seller, err := psbtutil.Decode(sellerPsbt)
	if err != nil {
		return "", err
	}
	buyer, err := psbtutil.Decode(buyerPsbt)
	if err != nil {
		return "", err
	}
	merged, err := psbtutil.Merge(seller, buyer)
	if err != nil {
		return "", err
	}
	return psbtutil.Encode(merged)
}

// reopenOffer rolls the offer back to open after a failed settlement, so a
// partial swap is never observable. The settlement error is what surfaces.
func (s *swapService) reopenOffer(
	ctx context.Context, offerID string, cause error,
) error {
	if err := s.repoManager.OrderbookRepository().UpdateOffer(
		ctx, offerID,
		func(o *domain.Offer) (*domain.Offer, error) {
			o.Status = domain.OrderStatusOpen
			o.BidID = ""
			return o, nil
		},
	); err != nil {
		log.WithError(err).WithField("offer", offerID).
			Warn("failed to reopen offer after settlement failure")
	}
	return cause
}
