package application_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/core/application"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/internal/infrastructure/blobstore"
	"github.com/bitmasklabs/rgbd/internal/infrastructure/signer"
	dbbadger "github.com/bitmasklabs/rgbd/internal/infrastructure/storage/db/badger"
)

var (
	ctx     = context.Background()
	testNet = &chaincfg.RegressionNetParams
)

type testServices struct {
	repoManager ports.RepoManager
	explorer    *mockExplorer
	watcher     application.WatcherService
	registry    application.RegistryService
	builder     application.BuilderService
	transfer    application.TransferService
	swap        application.SwapService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	repoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	blobs, err := blobstore.NewBlobStore("", nil)
	require.NoError(t, err)

	explorerSvc := &mockExplorer{}
	signerSvc := signer.NewService(testNet)
	transferSvc := application.NewTransferService(
		repoManager, signerSvc, blobs, explorerSvc, false,
	)

	return &testServices{
		repoManager: repoManager,
		explorer:    explorerSvc,
		watcher:     application.NewWatcherService(repoManager, explorerSvc, testNet),
		registry:    application.NewRegistryService(repoManager),
		builder:     application.NewBuilderService(repoManager, testNet),
		transfer:    transferSvc,
		swap:        application.NewSwapService(repoManager, transferSvc),
	}
}

// fundedKey is a throwaway key with a fake funding outpoint, enough to build
// and sign packets without a chain.
type fundedKey struct {
	descriptor string
	address    string
	script     string
	utxo       string
	value      uint64
}

func newFundedKey(t *testing.T, seed byte, vout uint32, value uint64) *fundedKey {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(privKey, testNet, true)
	require.NoError(t, err)

	keyHash := btcutil.Hash160(privKey.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, testNet)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	fundingTxid := fmt.Sprintf("%064x", int(seed))
	return &fundedKey{
		descriptor: fmt.Sprintf("wpkh(%s)", wif.String()),
		address:    addr.EncodeAddress(),
		script:     hex.EncodeToString(script),
		utxo:       fmt.Sprintf("%s:%d", fundingTxid, vout),
		value:      value,
	}
}

func contractHex(t *testing.T, payload string) string {
	t.Helper()
	return hex.EncodeToString([]byte(payload))
}

func newTestXpub(t *testing.T) string {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	master, err := hdkeychain.NewMaster(seed, testNet)
	require.NoError(t, err)
	xpub, err := master.Neuter()
	require.NoError(t, err)
	return xpub.String()
}
