package application

import (
	"strings"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

// chainStatus maps an indexer observation to the domain confirmation status.
func chainStatus(status explorer.TxStatus) domain.TxStatus {
	if !status.Found {
		return domain.NewTxStatusNotFound()
	}
	if status.Confirmed {
		return domain.NewTxStatusBlock(status.BlockHeight)
	}
	return domain.NewTxStatusMempool()
}

// utxoTxid extracts the funding txid out of a "txid:vout" outpoint string.
func utxoTxid(outpoint string) string {
	if idx := strings.IndexByte(outpoint, ':'); idx >= 0 {
		return outpoint[:idx]
	}
	return outpoint
}
