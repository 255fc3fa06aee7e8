// Package kvstore implements store.BidStore on top of an embedded
// Badger key/value database, generalizing the node's BadgerDB wrapper to
// the bag domain's two-state record instead of arbitrary byte blobs.
package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"

	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

// Key layout: a single-byte state tag ('u' or 'c') followed by the raw
// 32-byte bag id. Unconfirmed values are empty; confirmed values are the
// fixed-width encoding produced by encodeEntry.
const (
	tagUnconfirmed = 'u'
	tagConfirmed   = 'c'
)

const entryEncodedLen = chainhash.HashSize + chainhash.HashSize + 4 + 8

// Store is a Badger-backed store.BidStore.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("kvstore: database at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

var _ store.BidStore = (*Store)(nil)

func keyFor(tag byte, bag bagtypes.BagID) []byte {
	key := make([]byte, 1+bagtypes.BagIDSize)
	key[0] = tag
	copy(key[1:], bag.Bytes())
	return key
}

func bagFromKey(key []byte) (bagtypes.BagID, error) {
	return bagtypes.BagIDFromBytes(key[1:])
}

func encodeEntry(entry bagtypes.BidEntry) []byte {
	buf := make([]byte, entryEncodedLen)
	offset := 0
	copy(buf[offset:], entry.Proof.Block[:])
	offset += chainhash.HashSize
	copy(buf[offset:], entry.Proof.Tx.Outpoint.TxID[:])
	offset += chainhash.HashSize
	binary.BigEndian.PutUint32(buf[offset:], entry.Proof.Tx.Outpoint.Index)
	offset += 4
	binary.BigEndian.PutUint64(buf[offset:], entry.Amount)
	return buf
}

func decodeEntry(bag bagtypes.BagID, raw []byte) (bagtypes.BidEntry, error) {
	if len(raw) != entryEncodedLen {
		return bagtypes.BidEntry{}, fmt.Errorf("%w: confirmed value has length %d, want %d", store.ErrWrongFormat, len(raw), entryEncodedLen)
	}
	offset := 0
	var block, txid chainhash.Hash
	copy(block[:], raw[offset:offset+chainhash.HashSize])
	offset += chainhash.HashSize
	copy(txid[:], raw[offset:offset+chainhash.HashSize])
	offset += chainhash.HashSize
	index := binary.BigEndian.Uint32(raw[offset : offset+4])
	offset += 4
	amount := binary.BigEndian.Uint64(raw[offset : offset+8])

	return bagtypes.BidEntry{
		Amount: amount,
		Proof: bagtypes.BidProof{
			Block: block,
			Tx: bagtypes.BidTx{
				Outpoint: bagtypes.Outpoint{TxID: txid, Index: index},
				BagID:    bag,
			},
		},
	}, nil
}

func (s *Store) InsertUnconfirmed(_ context.Context, bag bagtypes.BagID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFor(tagConfirmed, bag)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyFor(tagUnconfirmed, bag), nil)
	})
}

func (s *Store) InsertBid(_ context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFor(tagConfirmed, bag)); err == nil {
			return store.ErrBagAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(keyFor(tagUnconfirmed, bag)); err == nil {
			return store.ErrBagAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyFor(tagConfirmed, bag), encodeEntry(entry))
	})
	if err != nil && !errors.Is(err, store.ErrBagAlreadyExists) {
		return fmt.Errorf("kvstore: insert bid: %w", err)
	}
	return err
}

func (s *Store) UpdateBid(_ context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, errC := txn.Get(keyFor(tagConfirmed, bag))
		_, errU := txn.Get(keyFor(tagUnconfirmed, bag))
		hasConfirmed := errC == nil
		hasUnconfirmed := errU == nil
		if !hasConfirmed && !hasUnconfirmed {
			return store.ErrBagDoesNotExist
		}
		if hasUnconfirmed {
			if err := txn.Delete(keyFor(tagUnconfirmed, bag)); err != nil {
				return err
			}
		}
		return txn.Set(keyFor(tagConfirmed, bag), encodeEntry(entry))
	})
	if err != nil && !errors.Is(err, store.ErrBagDoesNotExist) {
		return fmt.Errorf("kvstore: update bid: %w", err)
	}
	return err
}

func (s *Store) RemoveBag(_ context.Context, bag bagtypes.BagID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, errC := txn.Get(keyFor(tagConfirmed, bag))
		_, errU := txn.Get(keyFor(tagUnconfirmed, bag))
		hasConfirmed := errC == nil
		hasUnconfirmed := errU == nil
		if !hasConfirmed && !hasUnconfirmed {
			return store.ErrBagDoesNotExist
		}
		if hasConfirmed {
			if err := txn.Delete(keyFor(tagConfirmed, bag)); err != nil {
				return err
			}
		}
		if hasUnconfirmed {
			if err := txn.Delete(keyFor(tagUnconfirmed, bag)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrBagDoesNotExist) {
		return fmt.Errorf("kvstore: remove bag: %w", err)
	}
	return err
}

func (s *Store) RemoveConfirmationWithBlockHash(_ context.Context, hash chainhash.Hash) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{tagConfirmed}
		it := txn.NewIterator(opts)
		defer it.Close()

		var toDemote []bagtypes.BagID
		for it.Seek([]byte{tagConfirmed}); it.ValidForPrefix([]byte{tagConfirmed}); it.Next() {
			item := it.Item()
			bag, err := bagFromKey(item.KeyCopy(nil))
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrWrongFormat, err)
			}
			err = item.Value(func(raw []byte) error {
				entry, err := decodeEntry(bag, raw)
				if err != nil {
					return err
				}
				if entry.Proof.Block == hash {
					toDemote = append(toDemote, bag)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, bag := range toDemote {
			if err := txn.Delete(keyFor(tagConfirmed, bag)); err != nil {
				return err
			}
			if err := txn.Set(keyFor(tagUnconfirmed, bag), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: remove confirmation: %w", err)
	}
	return nil
}

func (s *Store) IsBagExists(_ context.Context, bag bagtypes.BagID) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		for _, tag := range []byte{tagConfirmed, tagUnconfirmed} {
			if _, err := txn.Get(keyFor(tag, bag)); err == nil {
				exists = true
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("kvstore: is bag exists: %w", err)
	}
	return exists, nil
}

func (s *Store) GetRecordsByBlockHash(_ context.Context, hash chainhash.Hash) ([]bagtypes.BagRecord, error) {
	var out []bagtypes.BagRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{tagConfirmed}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte{tagConfirmed}); it.ValidForPrefix([]byte{tagConfirmed}); it.Next() {
			item := it.Item()
			bag, err := bagFromKey(item.KeyCopy(nil))
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrWrongFormat, err)
			}
			valErr := item.Value(func(raw []byte) error {
				entry, err := decodeEntry(bag, raw)
				if err != nil {
					return err
				}
				if entry.Proof.Block == hash {
					out = append(out, bagtypes.Confirmed(bag, entry))
				}
				return nil
			})
			if valErr != nil {
				return valErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: get records by block hash: %w", err)
	}
	return out, nil
}

func (s *Store) GetBlocksCount(_ context.Context) (int, error) {
	seen := make(map[chainhash.Hash]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{tagConfirmed}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte{tagConfirmed}); it.ValidForPrefix([]byte{tagConfirmed}); it.Next() {
			item := it.Item()
			bag, err := bagFromKey(item.KeyCopy(nil))
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrWrongFormat, err)
			}
			err = item.Value(func(raw []byte) error {
				entry, err := decodeEntry(bag, raw)
				if err != nil {
					return err
				}
				seen[entry.Proof.Block] = struct{}{}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("kvstore: get blocks count: %w", err)
	}
	return len(seen), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
