package esplora

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

func (e *esplora) GetTransactionStatus(txid string) (explorer.TxStatus, error) {
	url := fmt.Sprintf("%s/tx/%s/status", e.apiURL, txid)
	status, resp, err := e.get(url)
	if err != nil {
		return explorer.TxStatus{}, err
	}
	if status == http.StatusNotFound {
		return explorer.TxStatus{Found: false}, nil
	}
	if status != http.StatusOK {
		return explorer.TxStatus{}, fmt.Errorf("esplora: %s", resp)
	}

	var parsed txStatus
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return explorer.TxStatus{}, fmt.Errorf("esplora: malformed tx status: %w", err)
	}
	return explorer.TxStatus{
		Found:       true,
		Confirmed:   parsed.Confirmed,
		BlockHeight: parsed.BlockHeight,
	}, nil
}

func (e *esplora) GetOutspend(txid string, vout uint32) (explorer.Outspend, error) {
	url := fmt.Sprintf("%s/tx/%s/outspend/%d", e.apiURL, txid, vout)
	status, resp, err := e.get(url)
	if err != nil {
		return explorer.Outspend{}, err
	}
	if status != http.StatusOK {
		return explorer.Outspend{}, fmt.Errorf("esplora: %s", resp)
	}

	var parsed outspend
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		return explorer.Outspend{}, fmt.Errorf("esplora: malformed outspend: %w", err)
	}
	return explorer.Outspend{
		Spent: parsed.Spent,
		Txid:  parsed.Txid,
		Status: explorer.TxStatus{
			Found:       parsed.Spent,
			Confirmed:   parsed.Status.Confirmed,
			BlockHeight: parsed.Status.BlockHeight,
		},
	}, nil
}

func (e *esplora) BroadcastTransaction(txhex string) (string, error) {
	url := fmt.Sprintf("%s/tx", e.apiURL)
	status, resp, err := e.post(url, txhex)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("esplora: broadcast rejected: %s", resp)
	}
	return resp, nil
}
