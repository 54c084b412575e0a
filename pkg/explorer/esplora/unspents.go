package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

func (e *esplora) GetUnspents(addr string) ([]explorer.Utxo, error) {
	url := fmt.Sprintf("%s/address/%s/utxo", e.apiURL, addr)
	status, resp, err := e.get(url)
	if err != nil {
		return nil, fmt.Errorf("retrieving utxos: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("esplora: %s", resp)
	}

	var witnessOuts []witnessUtxo
	if err := json.Unmarshal([]byte(resp), &witnessOuts); err != nil {
		return nil, fmt.Errorf("esplora: malformed utxo list: %w", err)
	}

	unspents := make([]explorer.Utxo, 0, len(witnessOuts))
	for _, out := range witnessOuts {
		unspents = append(unspents, out)
	}
	return unspents, nil
}

func (e *esplora) HasAddressHistory(addr string) (bool, error) {
	url := fmt.Sprintf("%s/address/%s", e.apiURL, addr)
	status, resp, err := e.get(url)
	if err != nil {
		return false, fmt.Errorf("retrieving address stats: %w", err)
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("esplora: %s", resp)
	}

	var stats addressStats
	if err := json.Unmarshal([]byte(resp), &stats); err != nil {
		return false, fmt.Errorf("esplora: malformed address stats: %w", err)
	}
	return stats.ChainStats.TxCount > 0 || stats.MempoolStats.TxCount > 0, nil
}
