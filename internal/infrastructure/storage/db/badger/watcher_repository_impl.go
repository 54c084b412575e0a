package dbbadger

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

type watcherRepositoryImpl struct {
	store *badgerhold.Store
	locks *keyedMutex
}

func newWatcherRepositoryImpl(store *badgerhold.Store) domain.WatcherRepository {
	return &watcherRepositoryImpl{store: store, locks: newKeyedMutex()}
}

func (r *watcherRepositoryImpl) AddWatcher(
	ctx context.Context, watcher domain.Watcher, force bool,
) error {
	unlock := r.locks.lock(watcher.Name)
	defer unlock()

	if force {
		// Deliberate trapdoor: recreation drops the stored cursors. Kept as
		// an explicit path so it stays auditable in the logs.
		if err := r.store.Delete(watcher.Name, domain.Watcher{}); err != nil &&
			!errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		log.WithField("watcher", watcher.Name).Warn("watcher forcibly recreated")
	}

	if err := r.store.Insert(watcher.Name, &watcher); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrDuplicateWatcher
		}
		return err
	}
	return nil
}

func (r *watcherRepositoryImpl) GetWatcher(
	ctx context.Context, name string,
) (*domain.Watcher, error) {
	var watcher domain.Watcher
	if err := r.store.Get(name, &watcher); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrWatcherNotFound
		}
		return nil, err
	}
	return &watcher, nil
}

func (r *watcherRepositoryImpl) GetAllWatchers(
	ctx context.Context,
) ([]domain.Watcher, error) {
	var watchers []domain.Watcher
	if err := r.store.Find(&watchers, nil); err != nil {
		return nil, err
	}
	return watchers, nil
}

func (r *watcherRepositoryImpl) UpdateWatcher(
	ctx context.Context, name string,
	updateFn func(*domain.Watcher) (*domain.Watcher, error),
) error {
	unlock := r.locks.lock(name)
	defer unlock()

	watcher, err := r.GetWatcher(ctx, name)
	if err != nil {
		return err
	}
	updated, err := updateFn(watcher)
	if err != nil {
		return err
	}
	return r.store.Update(name, updated)
}

func (r *watcherRepositoryImpl) DeleteWatcher(
	ctx context.Context, name string,
) error {
	if err := r.store.Delete(name, domain.Watcher{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrWatcherNotFound
		}
		return err
	}
	return nil
}
