package application_test

import (
	"github.com/stretchr/testify/mock"

	"github.com/bitmasklabs/rgbd/pkg/explorer"
)

// **** Explorer ****

type mockExplorer struct {
	mock.Mock
}

func (m *mockExplorer) GetUnspents(addr string) ([]explorer.Utxo, error) {
	args := m.Called(addr)

	var res []explorer.Utxo
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Utxo)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) HasAddressHistory(addr string) (bool, error) {
	args := m.Called(addr)
	return args.Bool(0), args.Error(1)
}

func (m *mockExplorer) GetTransactionStatus(txid string) (explorer.TxStatus, error) {
	args := m.Called(txid)

	var res explorer.TxStatus
	if a := args.Get(0); a != nil {
		res = a.(explorer.TxStatus)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) GetOutspend(txid string, vout uint32) (explorer.Outspend, error) {
	args := m.Called(txid, vout)

	var res explorer.Outspend
	if a := args.Get(0); a != nil {
		res = a.(explorer.Outspend)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) BroadcastTransaction(txhex string) (string, error) {
	args := m.Called(txhex)
	return args.String(0), args.Error(1)
}

func (m *mockExplorer) GetBlockHeight() (uint32, error) {
	args := m.Called()
	return args.Get(0).(uint32), args.Error(1)
}
