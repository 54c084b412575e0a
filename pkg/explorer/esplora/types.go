package esplora

import (
	"fmt"

	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
}

// witnessUtxo is the utxo JSON shape of the /address/:addr/utxo endpoint.
type witnessUtxo struct {
	Txid     string   `json:"txid"`
	Vout     uint32   `json:"vout"`
	Amount   uint64   `json:"value"`
	UtxoStat txStatus `json:"status"`
}

func (u witnessUtxo) Hash() string {
	return u.Txid
}

func (u witnessUtxo) Index() uint32 {
	return u.Vout
}

func (u witnessUtxo) Value() uint64 {
	return u.Amount
}

func (u witnessUtxo) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.Txid, u.Vout)
}

func (u witnessUtxo) IsConfirmed() bool {
	return u.UtxoStat.Confirmed
}

func (u witnessUtxo) BlockHeight() uint32 {
	return u.UtxoStat.BlockHeight
}

var _ explorer.Utxo = (*witnessUtxo)(nil)

type outspend struct {
	Spent  bool     `json:"spent"`
	Txid   string   `json:"txid"`
	Status txStatus `json:"status"`
}

type addressStats struct {
	ChainStats struct {
		TxCount int `json:"tx_count"`
	} `json:"chain_stats"`
	MempoolStats struct {
		TxCount int `json:"tx_count"`
	} `json:"mempool_stats"`
}
