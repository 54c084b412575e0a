package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/config"
	"github.com/bitmasklabs/rgbd/internal/core/application"
	"github.com/bitmasklabs/rgbd/internal/infrastructure/blobstore"
	"github.com/bitmasklabs/rgbd/internal/infrastructure/signer"
	dbbadger "github.com/bitmasklabs/rgbd/internal/infrastructure/storage/db/badger"
	"github.com/bitmasklabs/rgbd/pkg/explorer/esplora"
	"github.com/bitmasklabs/rgbd/pkg/stats"
)

// verifyInterval is how often pending transfers are re-polled against the
// chain indexer.
const verifyInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log.SetLevel(log.Level(cfg.LogLevel()))

	explorerSvc, err := esplora.NewService(
		cfg.ExplorerEndpoint(), cfg.ExplorerTimeout(),
	)
	if err != nil {
		log.WithError(err).Fatal("cannot reach chain indexer")
	}

	repoManager, err := dbbadger.NewRepoManager(cfg.DBDir(), log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("cannot open datadir stores")
	}
	defer repoManager.Close()

	blobStore, err := blobstore.NewBlobStore(cfg.BlobDir(), log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("cannot open blob store")
	}
	defer blobStore.Close()

	signerSvc := signer.NewService(cfg.Network())
	transferSvc := application.NewTransferService(
		repoManager, signerSvc, blobStore, explorerSvc,
		cfg.ForceAcceptAdvancesState(),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats.EnableMemoryStatistics(ctx, cfg.StatsInterval())
	go verifyPendingTransfers(ctx, transferSvc)

	log.WithFields(log.Fields{
		"network": cfg.NetworkName(),
		"datadir": cfg.Datadir(),
	}).Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
}

// verifyPendingTransfers advances the chain status of pending transfers on
// a fixed schedule. The service itself owns no timers.
func verifyPendingTransfers(ctx context.Context, svc application.TransferService) {
	ticker := time.NewTicker(verifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updates, err := svc.VerifyTransfers(ctx)
			if err != nil {
				log.WithError(err).Warn("failed to verify pending transfers")
				continue
			}
			for _, update := range updates {
				log.WithFields(log.Fields{
					"consig": update.ConsigID,
					"txid":   update.Txid,
					"status": update.Status.String(),
				}).Info("transfer status advanced")
			}
		case <-ctx.Done():
			return
		}
	}
}
