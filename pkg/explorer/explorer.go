package explorer

// Utxo represents an unspent transaction output as seen by the chain
// indexer.
type Utxo interface {
	Hash() string
	Index() uint32
	Value() uint64
	// Outpoint returns the canonical "txid:vout" form.
	Outpoint() string
	IsConfirmed() bool
	BlockHeight() uint32
}

// TxStatus is the chain status of a transaction as reported by the indexer.
type TxStatus struct {
	Found       bool
	Confirmed   bool
	BlockHeight uint32
}

// Outspend reports whether a specific output has been spent and, if so, by
// which transaction and with what confirmation status.
type Outspend struct {
	Spent  bool
	Txid   string
	Status TxStatus
}

// Service is the representation of a chain indexer that allows to fetch
// address and transaction data from the blockchain and to broadcast raw
// transactions.
type Service interface {
	// GetUnspents fetches the utxo set of the given address.
	GetUnspents(addr string) ([]Utxo, error)
	// HasAddressHistory returns whether the given address appears in any
	// transaction, confirmed or not.
	HasAddressHistory(addr string) (bool, error)
	// GetTransactionStatus returns the chain status of the tx identified by
	// its hash.
	GetTransactionStatus(txid string) (TxStatus, error)
	// GetOutspend returns the spend status of a specific output.
	GetOutspend(txid string, vout uint32) (Outspend, error)
	// BroadcastTransaction attempts to add the given tx in hex format to the
	// mempool and returns its tx hash.
	BroadcastTransaction(txhex string) (txid string, err error)
	// GetBlockHeight returns the tip height of the blockchain.
	GetBlockHeight() (uint32, error)
}
