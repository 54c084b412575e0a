package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/bitmasklabs/rgbd/internal/core/ports"
)

var (
	// ErrBlobNotFound is returned when no blob exists for a content hash.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrEmptyBlob is returned when storing a zero-length blob.
	ErrEmptyBlob = errors.New("blob must not be empty")
)

// blobStore keeps opaque consignment and media payloads in a dedicated
// badger db, keyed by the sha256 of their content. Payloads are never
// interpreted, only moved.
type blobStore struct {
	db *badger.DB
}

// NewBlobStore opens (or creates if missing) the blob db at the given dir.
// An empty dir opens a volatile in-memory store, used by tests.
func NewBlobStore(dbDir string, logger badger.Logger) (ports.BlobStore, error) {
	isInMemory := len(dbDir) <= 0
	opts := badger.DefaultOptions(dbDir).WithInMemory(isInMemory)
	opts.Logger = logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blob db: %w", err)
	}
	return &blobStore{db: db}, nil
}

func (s *blobStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) <= 0 {
		return "", ErrEmptyBlob
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(hash), data)
	})
	if err != nil {
		return "", fmt.Errorf("storing blob: %w", err)
	}
	return hash, nil
}

func (s *blobStore) Get(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBlobNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *blobStore) Del(ctx context.Context, hash string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(hash))
	})
}

// Close releases the underlying db.
func (s *blobStore) Close() error {
	return s.db.Close()
}
