package domain

import "context"

// WatcherRepository stores the named derivation trackers.
type WatcherRepository interface {
	// AddWatcher registers a new watcher. If force is set an existing
	// watcher with the same name is dropped and recreated, otherwise the
	// call fails with ErrDuplicateWatcher.
	AddWatcher(ctx context.Context, watcher Watcher, force bool) error
	GetWatcher(ctx context.Context, name string) (*Watcher, error)
	GetAllWatchers(ctx context.Context) ([]Watcher, error)
	// UpdateWatcher atomically applies updateFn to the stored watcher; used
	// to advance derivation cursors.
	UpdateWatcher(
		ctx context.Context, name string,
		updateFn func(*Watcher) (*Watcher, error),
	) error
	DeleteWatcher(ctx context.Context, name string) error
}
