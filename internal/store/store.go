// Package store defines the bid storage contract: a polymorphic persistence
// interface with a precisely specified concurrency/idempotence contract,
// and two reference implementations — memstore (in-memory) and sqlstore
// (SQL-backed) — plus a third, kvstore, backed by an embedded KV store.
package store

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

// ErrBagAlreadyExists is returned by InsertBid when a record for the bag
// already exists.
var ErrBagAlreadyExists = errors.New("bag already exists")

// ErrBagDoesNotExist is returned by UpdateBid and RemoveBag when no record
// for the bag exists.
var ErrBagDoesNotExist = errors.New("bag does not exist")

// ErrWrongFormat indicates a persisted row could not be decoded — data
// corruption in the backing store.
var ErrWrongFormat = errors.New("storage: wrong record format")

// BidStore is the bid/bag persistence contract. Every operation is total
// over its documented precondition and atomic from the caller's
// perspective: a concurrent observer sees either the pre- or post-image,
// never a torn intermediate state.
type BidStore interface {
	// InsertUnconfirmed records an Unconfirmed(bag). If a confirmed or
	// unconfirmed record for this bag id already exists, this is a no-op
	// on the existing state — the operation is idempotent.
	InsertUnconfirmed(ctx context.Context, bag bagtypes.BagID) error

	// InsertBid creates a new Confirmed(entry). Fails with
	// ErrBagAlreadyExists if an entry for this bag id already exists.
	InsertBid(ctx context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error

	// UpdateBid promotes an existing (unconfirmed or confirmed) entry for
	// bag to Confirmed(entry). Fails with ErrBagDoesNotExist if no entry
	// for this bag id exists.
	UpdateBid(ctx context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error

	// RemoveBag deletes the entry entirely. Fails with ErrBagDoesNotExist
	// if none exists.
	RemoveBag(ctx context.Context, bag bagtypes.BagID) error

	// RemoveConfirmationWithBlockHash demotes every Confirmed entry whose
	// proof block hash equals hash back to Unconfirmed(bag id). Never
	// fails on zero matches.
	RemoveConfirmationWithBlockHash(ctx context.Context, hash chainhash.Hash) error

	// IsBagExists is a membership test over either state.
	IsBagExists(ctx context.Context, bag bagtypes.BagID) (bool, error)

	// GetRecordsByBlockHash enumerates confirmed entries witnessed in the
	// given block. Testing and inspection only.
	GetRecordsByBlockHash(ctx context.Context, hash chainhash.Hash) ([]bagtypes.BagRecord, error)

	// GetBlocksCount returns the count of distinct block hashes appearing
	// in any confirmed entry. Testing only.
	GetBlocksCount(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
