package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
)

// repoManager holds one badgerhold store per aggregate in a single data
// structure and exposes them through the repository interfaces.
type repoManager struct {
	registryStore  *badgerhold.Store
	watcherStore   *badgerhold.Store
	transferStore  *badgerhold.Store
	orderbookStore *badgerhold.Store

	contractRepo  domain.ContractRepository
	invoiceRepo   domain.InvoiceRepository
	watcherRepo   domain.WatcherRepository
	transferRepo  domain.TransferRepository
	orderbookRepo domain.OrderbookRepository
}

// NewRepoManager opens (or creates if missing) the badger stores on disk and
// returns them behind the ports.RepoManager interface. An empty base dir
// opens volatile in-memory stores, used by tests.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	registryDb, err := createDb(dbDir(baseDbDir, "registry"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}
	watcherDb, err := createDb(dbDir(baseDbDir, "watcher"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening watcher db: %w", err)
	}
	transferDb, err := createDb(dbDir(baseDbDir, "transfer"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening transfer db: %w", err)
	}
	orderbookDb, err := createDb(dbDir(baseDbDir, "orderbook"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening orderbook db: %w", err)
	}

	manager := &repoManager{
		registryStore:  registryDb,
		watcherStore:   watcherDb,
		transferStore:  transferDb,
		orderbookStore: orderbookDb,
	}
	manager.contractRepo = newContractRepositoryImpl(registryDb)
	manager.invoiceRepo = newInvoiceRepositoryImpl(registryDb)
	manager.watcherRepo = newWatcherRepositoryImpl(watcherDb)
	manager.transferRepo = newTransferRepositoryImpl(transferDb)
	manager.orderbookRepo = newOrderbookRepositoryImpl(orderbookDb)
	return manager, nil
}

func (d *repoManager) ContractRepository() domain.ContractRepository {
	return d.contractRepo
}

func (d *repoManager) InvoiceRepository() domain.InvoiceRepository {
	return d.invoiceRepo
}

func (d *repoManager) WatcherRepository() domain.WatcherRepository {
	return d.watcherRepo
}

func (d *repoManager) TransferRepository() domain.TransferRepository {
	return d.transferRepo
}

func (d *repoManager) OrderbookRepository() domain.OrderbookRepository {
	return d.orderbookRepo
}

func (d *repoManager) Close() {
	d.registryStore.Close()
	d.watcherStore.Close()
	d.transferStore.Close()
	d.orderbookStore.Close()
}

func dbDir(base, name string) string {
	if len(base) <= 0 {
		return ""
	}
	return filepath.Join(base, name)
}

// JSONEncode is a custom JSON based encoder for badger.
func JSONEncode(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger.
func JSONDecode(data []byte, value interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0
	opts := badger.DefaultOptions(dbDir).WithInMemory(isInMemory)
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
