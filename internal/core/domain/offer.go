package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SwapStrategy selects how an offer gets matched: through a public auction,
// a direct peer-to-peer round, or an immediate hotswap.
type SwapStrategy struct {
	value string
}

// The closed set of swap strategies.
var (
	StrategyAuction = SwapStrategy{"auction"}
	StrategyP2P     = SwapStrategy{"p2p"}
	StrategyHotSwap = SwapStrategy{"hotswap"}
)

// ParseSwapStrategy maps the wire name of a strategy to its value.
func ParseSwapStrategy(value string) (SwapStrategy, error) {
	switch value {
	case StrategyAuction.value:
		return StrategyAuction, nil
	case StrategyP2P.value:
		return StrategyP2P, nil
	case StrategyHotSwap.value:
		return StrategyHotSwap, nil
	default:
		return SwapStrategy{}, fmt.Errorf("unknown swap strategy %q", value)
	}
}

// IsPublic returns whether offers with this strategy appear in the public
// order book. P2P and hotswap offers are negotiated directly.
func (s SwapStrategy) IsPublic() bool {
	return s == StrategyAuction
}

func (s SwapStrategy) String() string {
	return s.value
}

// MarshalJSON implements json.Marshaler.
func (s SwapStrategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SwapStrategy) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseSwapStrategy(value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Order statuses: an order is open until matched, then filled.
const (
	OrderStatusOpen = "open"
	OrderStatusFill = "fill"
)

// Offer is a public listing selling an asset amount priced in satoshis. The
// seller psbt has its asset-side inputs fixed; bitcoin-side inputs are left
// open for the winning bid.
type Offer struct {
	OfferID        string       `json:"offerId"`
	Status         string       `json:"status"`
	ContractID     string       `json:"contractId"`
	Iface          string       `json:"iface"`
	AssetAmount    uint64       `json:"assetAmount"`
	AssetPrecision uint8        `json:"assetPrecision"`
	BitcoinPrice   uint64       `json:"bitcoinPrice"`
	SellerPsbt     string       `json:"sellerPsbt"`
	SellerAddress  string       `json:"sellerAddress"`
	Terminal       string       `json:"terminal"`
	Strategy       SwapStrategy `json:"strategy"`
	ExpireAt       int64        `json:"expireAt,omitempty"`
	BidID          string       `json:"bidId,omitempty"`
	TransferID     string       `json:"transferId,omitempty"`
	CreatedAt      int64        `json:"createdAt"`
}

// offerIDTag namespaces offer id hashes.
var offerIDTag = []byte("rgbd/offer/v1")

// NewOfferID derives the deterministic id of an offer from its contract and
// the sorted set of asset utxos backing it, so re-listing the same
// allocations yields the same id.
func NewOfferID(contractID string, assetUtxos []string) string {
	utxos := make([]string, len(assetUtxos))
	copy(utxos, assetUtxos)
	sort.Strings(utxos)

	msgs := make([][]byte, 0, len(utxos)+1)
	msgs = append(msgs, []byte(contractID))
	for _, utxo := range utxos {
		msgs = append(msgs, []byte(utxo))
	}
	hash := chainhash.TaggedHash(offerIDTag, msgs...)
	return hex.EncodeToString(hash[:])
}

// IsExpired returns whether the offer expiry has passed at the given time.
// Offers without expiry never expire.
func (o *Offer) IsExpired(now time.Time) bool {
	return o.ExpireAt > 0 && now.Unix() >= o.ExpireAt
}

// Consume matches the offer with the winning bid. Exactly one bid can
// consume an offer: concurrent losers observe ErrOfferConsumed.
func (o *Offer) Consume(bidID string) error {
	if o.Status != OrderStatusOpen {
		return ErrOfferConsumed
	}
	o.Status = OrderStatusFill
	o.BidID = bidID
	return nil
}

// Bid is a buyer response to an offer: the requested asset amount and the
// buyer-side psbt material funding the bitcoin leg.
type Bid struct {
	BidID        string `json:"bidId"`
	Status       string `json:"status"`
	OfferID      string `json:"offerId"`
	ContractID   string `json:"contractId"`
	Iface        string `json:"iface"`
	AssetAmount  uint64 `json:"assetAmount"`
	BitcoinPrice uint64 `json:"bitcoinPrice"`
	BuyerPsbt    string `json:"buyerPsbt"`
	BuyerInvoice string `json:"buyerInvoice"`
	FeeValue     uint64 `json:"feeValue"`
	TransferID   string `json:"transferId,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// bidIDTag namespaces bid id hashes.
var bidIDTag = []byte("rgbd/bid/v1")

// NewBidID derives the deterministic id of a bid from the offer it answers
// and the bitcoin utxos funding it.
func NewBidID(offerID string, bitcoinUtxos []string) string {
	utxos := make([]string, len(bitcoinUtxos))
	copy(utxos, bitcoinUtxos)
	sort.Strings(utxos)

	msgs := make([][]byte, 0, len(utxos)+1)
	msgs = append(msgs, []byte(offerID))
	for _, utxo := range utxos {
		msgs = append(msgs, []byte(utxo))
	}
	hash := chainhash.TaggedHash(bidIDTag, msgs...)
	return hex.EncodeToString(hash[:])
}

// Fill marks the bid as matched.
func (b *Bid) Fill() {
	b.Status = OrderStatusFill
}
