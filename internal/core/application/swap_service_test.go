package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/core/application"
	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/pkg/psbtutil"
)

// swapFixture holds the two sides of a swap: the seller funded with the
// issued asset and the buyer funding the bitcoin leg.
type swapFixture struct {
	seller       *fundedKey
	buyer        *fundedKey
	contractID   string
	sellerPsbt   *application.PsbtResponse
	buyerPsbt    *application.PsbtResponse
	buyerInvoice *application.InvoiceResponse
}

func newSwapFixture(
	t *testing.T, svc *testServices, sellerSeed, buyerSeed byte,
) *swapFixture {
	t.Helper()

	seller := newFundedKey(t, sellerSeed, 0, 100000)
	buyer := newFundedKey(t, buyerSeed, 1, 80000)

	contract, err := svc.registry.IssueContract(ctx, application.IssueRequest{
		Ticker: "DIBA", Name: "Diba token", Supply: "1000", Precision: 0,
		Seal: seller.utxo, Iface: domain.IfaceRGB20,
	})
	require.NoError(t, err)

	sellerPsbt, err := svc.builder.CreatePsbt(ctx, application.PsbtRequest{
		AssetInputs: []application.PsbtInput{{
			Utxo: seller.utxo, Value: seller.value, Script: seller.script,
			Terminal: "/0/0",
		}},
		AssetChangeAddress: seller.address,
		Fee:                application.NewAbsoluteFee(1000),
	})
	require.NoError(t, err)

	// The buyer leg pays the asking price to the seller and keeps the rest.
	buyerPsbt, err := svc.builder.CreatePsbt(ctx, application.PsbtRequest{
		AssetInputs: []application.PsbtInput{{
			Utxo: buyer.utxo, Value: buyer.value, Script: buyer.script,
			Terminal: "/0/1",
		}},
		AssetChangeAddress: buyer.address,
		BitcoinChanges: []application.PsbtOutput{
			{Address: seller.address, Value: 50000},
		},
		Fee: application.NewAbsoluteFee(1000),
	})
	require.NoError(t, err)

	buyerInvoice, err := svc.builder.CreateInvoice(
		ctx, contract.ContractID, domain.IfaceRGB20, "1000", "cc:0", nil,
	)
	require.NoError(t, err)

	return &swapFixture{
		seller:       seller,
		buyer:        buyer,
		contractID:   contract.ContractID,
		sellerPsbt:   sellerPsbt,
		buyerPsbt:    buyerPsbt,
		buyerInvoice: buyerInvoice,
	}
}

// mergedSwapPsbt combines both legs into a single packet, optionally signed
// by the given descriptors.
func mergedSwapPsbt(
	t *testing.T, svc *testServices, fx *swapFixture, descriptors []string,
) string {
	t.Helper()

	seller, err := psbtutil.Decode(fx.sellerPsbt.Psbt)
	require.NoError(t, err)
	buyer, err := psbtutil.Decode(fx.buyerPsbt.Psbt)
	require.NoError(t, err)
	merged, err := psbtutil.Merge(seller, buyer)
	require.NoError(t, err)
	encoded, err := psbtutil.Encode(merged)
	require.NoError(t, err)

	if len(descriptors) <= 0 {
		return encoded
	}
	signed, err := svc.transfer.SignPsbt(ctx, encoded, descriptors)
	require.NoError(t, err)
	return signed
}

func finalizedTxid(t *testing.T, encoded string) string {
	t.Helper()
	packet, err := psbtutil.Decode(encoded)
	require.NoError(t, err)
	_, txid, err := psbtutil.Finalize(packet)
	require.NoError(t, err)
	return txid
}

func TestCreateOffer(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x31, 0x32)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		SellerAddress:  fx.seller.address,
		ChangeTerminal: fx.sellerPsbt.ChangeTerminal,
		Strategy:       "auction",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, offer.Status)
	assert.Equal(t, uint64(1000), offer.AssetAmount)
	// Offer ids derive from the backing utxos, so re-listing the same
	// allocations is idempotent in identity.
	assert.Equal(
		t,
		domain.NewOfferID(fx.contractID, []string{fx.seller.utxo}),
		offer.OfferID,
	)

	_, err = svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "dutch",
	})
	assert.ErrorIs(t, err, application.ErrInvalidRequest)

	_, err = svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "2000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAllocation)
}

func TestSwapHappyPath(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x33, 0x34)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		SellerAddress:  fx.seller.address,
		ChangeTerminal: fx.sellerPsbt.ChangeTerminal,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	bid, err := svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
		Fee:          application.NewAbsoluteFee(500),
	})
	require.NoError(t, err)
	assert.Equal(t, offer.OfferID, bid.OfferID)
	assert.Equal(
		t,
		domain.NewBidID(offer.OfferID, []string{fx.buyer.utxo}),
		bid.BidID,
	)

	// Both parties sign the merged packet, each leg signing its own input.
	swapPsbt := mergedSwapPsbt(t, svc, fx, []string{
		fx.seller.descriptor, fx.buyer.descriptor,
	})
	txid := finalizedTxid(t, swapPsbt)
	svc.explorer.On("BroadcastTransaction", mock.Anything).
		Return(txid, nil).Once()

	resp, err := svc.swap.CreateSwap(ctx, offer.OfferID, bid.BidID, swapPsbt)
	require.NoError(t, err)
	assert.Equal(t, txid, resp.Txid)
	assert.NotEmpty(t, resp.ConsigID)
	svc.explorer.AssertExpectations(t)

	filled, err := svc.repoManager.OrderbookRepository().GetOffer(
		ctx, offer.OfferID,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFill, filled.Status)
	assert.Equal(t, bid.BidID, filled.BidID)
	assert.Equal(t, resp.ConsigID, filled.TransferID)

	filledBid, err := svc.repoManager.OrderbookRepository().GetBid(ctx, bid.BidID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFill, filledBid.Status)
	assert.Equal(t, resp.ConsigID, filledBid.TransferID)

	// The whole supply moved to the beneficiary seal.
	contract, err := svc.repoManager.ContractRepository().GetContract(
		ctx, fx.contractID,
	)
	require.NoError(t, err)
	allocations, err := svc.repoManager.ContractRepository().GetAllocations(
		ctx, fx.contractID,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), contract.Balance(allocations))
	recipient := allocationByUtxo(t, allocations, "cc:0")
	assert.Equal(t, uint64(1000), recipient.Value.Amount())

	// The consumed offer rejects any further matching.
	_, err = svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
	})
	assert.ErrorIs(t, err, domain.ErrOfferConsumed)
	_, err = svc.swap.CreateSwap(ctx, offer.OfferID, bid.BidID, swapPsbt)
	assert.ErrorIs(t, err, domain.ErrOfferConsumed)
}

func TestCreateSwapFailedSettlementReopensOffer(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x35, 0x36)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		SellerAddress:  fx.seller.address,
		ChangeTerminal: fx.sellerPsbt.ChangeTerminal,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	bid, err := svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
		Fee:          application.NewAbsoluteFee(500),
	})
	require.NoError(t, err)

	// An unsigned packet cannot settle, so the offer rolls back to open
	// with nothing spent.
	unsigned := mergedSwapPsbt(t, svc, fx, nil)
	_, err = svc.swap.CreateSwap(ctx, offer.OfferID, bid.BidID, unsigned)
	assert.ErrorIs(t, err, application.ErrSignature)

	reopened, err := svc.repoManager.OrderbookRepository().GetOffer(
		ctx, offer.OfferID,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, reopened.Status)
	assert.Empty(t, reopened.BidID)

	allocations, err := svc.repoManager.ContractRepository().GetAllocations(
		ctx, fx.contractID,
	)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.False(t, allocations[0].IsSpent)

	// The reopened offer settles on retry with a signed packet.
	swapPsbt := mergedSwapPsbt(t, svc, fx, []string{
		fx.seller.descriptor, fx.buyer.descriptor,
	})
	svc.explorer.On("BroadcastTransaction", mock.Anything).
		Return(finalizedTxid(t, swapPsbt), nil).Once()
	_, err = svc.swap.CreateSwap(ctx, offer.OfferID, bid.BidID, swapPsbt)
	require.NoError(t, err)
	svc.explorer.AssertExpectations(t)
}

func TestCreateSwapBidMismatch(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x37, 0x38)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	bid, err := svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
	})
	require.NoError(t, err)

	_, err = svc.swap.CreateSwap(ctx, "other-offer", bid.BidID, "")
	assert.ErrorIs(t, err, domain.ErrBidMismatch)
	_, err = svc.swap.CreateSwap(ctx, offer.OfferID, "missing-bid", "")
	assert.ErrorIs(t, err, domain.ErrBidNotFound)

	// A bid for a different amount than listed never enters the book.
	_, err = svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "999",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
	})
	assert.ErrorIs(t, err, application.ErrInvalidRequest)
}

func TestExpiredOffer(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x39, 0x3a)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
		ExpireAt:       time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
	})
	assert.ErrorIs(t, err, domain.ErrOfferExpired)

	// Expired listings are filtered out of the public book.
	offers, err := svc.swap.PublicOffers(ctx)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestDirectSwap(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x3b, 0x3c)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		SellerAddress:  fx.seller.address,
		ChangeTerminal: fx.sellerPsbt.ChangeTerminal,
		Strategy:       "p2p",
	})
	require.NoError(t, err)

	// Private offers never show up in the public book.
	offers, err := svc.swap.PublicOffers(ctx)
	require.NoError(t, err)
	assert.Empty(t, offers)

	swapPsbt := mergedSwapPsbt(t, svc, fx, []string{
		fx.seller.descriptor, fx.buyer.descriptor,
	})
	svc.explorer.On("BroadcastTransaction", mock.Anything).
		Return(finalizedTxid(t, swapPsbt), nil).Once()

	resp, err := svc.swap.DirectSwap(ctx, application.DirectSwapRequest{
		BidRequest: application.BidRequest{
			OfferID:      offer.OfferID,
			AssetAmount:  "1000",
			BuyerPsbt:    fx.buyerPsbt.Psbt,
			BuyerInvoice: fx.buyerInvoice.Encoded,
			Fee:          application.NewAbsoluteFee(500),
		},
		SwapPsbt: swapPsbt,
	})
	require.NoError(t, err)
	assert.Equal(t, offer.OfferID, resp.OfferID)
	svc.explorer.AssertExpectations(t)
}

func TestDirectSwapRejectsPublicOffer(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x3d, 0x3e)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	_, err = svc.swap.DirectSwap(ctx, application.DirectSwapRequest{
		BidRequest: application.BidRequest{
			OfferID:      offer.OfferID,
			AssetAmount:  "1000",
			BuyerPsbt:    fx.buyerPsbt.Psbt,
			BuyerInvoice: fx.buyerInvoice.Encoded,
		},
	})
	assert.ErrorIs(t, err, application.ErrInvalidRequest)
}

func TestUpdateOffer(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x3f, 0x40)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	refreshed := mergedSwapPsbt(t, svc, fx, nil)
	updated, err := svc.swap.UpdateOffer(ctx, offer.OfferID, refreshed)
	require.NoError(t, err)
	assert.Equal(t, refreshed, updated.SellerPsbt)

	_, err = svc.swap.UpdateOffer(ctx, offer.OfferID, "not a psbt")
	assert.Error(t, err)
	_, err = svc.swap.UpdateOffer(ctx, "missing", refreshed)
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestMyOrders(t *testing.T) {
	svc := newTestServices(t)
	fx := newSwapFixture(t, svc, 0x41, 0x42)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     fx.contractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "1000",
		BitcoinPrice:   50000,
		SellerPsbt:     fx.sellerPsbt.Psbt,
		Strategy:       "auction",
	})
	require.NoError(t, err)
	_, err = svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "1000",
		BuyerPsbt:    fx.buyerPsbt.Psbt,
		BuyerInvoice: fx.buyerInvoice.Encoded,
	})
	require.NoError(t, err)

	orders, err := svc.swap.MyOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders.Offers, 1)
	assert.Len(t, orders.Bids, 1)

	offers, err := svc.swap.PublicOffers(ctx)
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestPartialSwapBooksSellerChange(t *testing.T) {
	svc := newTestServices(t)
	seller := newFundedKey(t, 0x43, 0, 100000)
	buyer := newFundedKey(t, 0x44, 1, 80000)

	contract, err := svc.registry.IssueContract(ctx, application.IssueRequest{
		Ticker: "DIBA", Name: "Diba token", Supply: "1000", Precision: 0,
		Seal: seller.utxo, Iface: domain.IfaceRGB20,
	})
	require.NoError(t, err)

	sellerPsbt, err := svc.builder.CreatePsbt(ctx, application.PsbtRequest{
		AssetInputs: []application.PsbtInput{{
			Utxo: seller.utxo, Value: seller.value, Script: seller.script,
			Terminal: "/0/0",
		}},
		AssetChangeAddress: seller.address,
		Fee:                application.NewAbsoluteFee(1000),
	})
	require.NoError(t, err)

	buyerPsbt, err := svc.builder.CreatePsbt(ctx, application.PsbtRequest{
		AssetInputs: []application.PsbtInput{{
			Utxo: buyer.utxo, Value: buyer.value, Script: buyer.script,
			Terminal: "/0/1",
		}},
		AssetChangeAddress: buyer.address,
		BitcoinChanges: []application.PsbtOutput{
			{Address: seller.address, Value: 50000},
		},
		Fee: application.NewAbsoluteFee(1000),
	})
	require.NoError(t, err)

	buyerInvoice, err := svc.builder.CreateInvoice(
		ctx, contract.ContractID, domain.IfaceRGB20, "400", "cc:1", nil,
	)
	require.NoError(t, err)

	offer, err := svc.swap.CreateOffer(ctx, application.OfferRequest{
		ContractID:     contract.ContractID,
		Iface:          domain.IfaceRGB20,
		ContractAmount: "400",
		BitcoinPrice:   50000,
		SellerPsbt:     sellerPsbt.Psbt,
		SellerAddress:  seller.address,
		ChangeTerminal: sellerPsbt.ChangeTerminal,
		Strategy:       "auction",
	})
	require.NoError(t, err)

	bid, err := svc.swap.CreateBid(ctx, application.BidRequest{
		OfferID:      offer.OfferID,
		AssetAmount:  "400",
		BuyerPsbt:    buyerPsbt.Psbt,
		BuyerInvoice: buyerInvoice.Encoded,
		Fee:          application.NewAbsoluteFee(500),
	})
	require.NoError(t, err)

	fx := &swapFixture{
		seller:       seller,
		buyer:        buyer,
		contractID:   contract.ContractID,
		sellerPsbt:   sellerPsbt,
		buyerPsbt:    buyerPsbt,
		buyerInvoice: buyerInvoice,
	}
	swapPsbt := mergedSwapPsbt(t, svc, fx, []string{
		seller.descriptor, buyer.descriptor,
	})
	txid := finalizedTxid(t, swapPsbt)
	svc.explorer.On("BroadcastTransaction", mock.Anything).
		Return(txid, nil).Once()

	_, err = svc.swap.CreateSwap(ctx, offer.OfferID, bid.BidID, swapPsbt)
	require.NoError(t, err)
	svc.explorer.AssertExpectations(t)

	// The seller's asset change anchors to the seller's own change output,
	// the first of the merged packet, not to the buyer's trailing one.
	allocations, err := svc.repoManager.ContractRepository().GetAllocations(
		ctx, contract.ContractID,
	)
	require.NoError(t, err)
	change := allocationByUtxo(t, allocations, txid+":0")
	assert.Equal(t, uint64(600), change.Value.Amount())
	assert.True(t, change.IsMine)
	assert.Equal(t, sellerPsbt.ChangeTerminal, change.Derivation)

	recipient := allocationByUtxo(t, allocations, "cc:1")
	assert.Equal(t, uint64(400), recipient.Value.Amount())
	assert.False(t, recipient.IsMine)
	assert.Equal(t, uint64(600), contract.Balance(allocations))
}
