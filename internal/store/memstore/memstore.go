// Package memstore implements store.BidStore with two in-memory maps,
// generalizing the node's own single-struct-with-map key/value store to
// the bag domain's sum-typed record.
package memstore

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

// Store is an in-memory store.BidStore. All operations hold a single mutex
// for the duration of the call, so an observer sees whole operations only.
type Store struct {
	mu          sync.Mutex
	unconfirmed map[bagtypes.BagID]struct{}
	confirmed   map[bagtypes.BagID]bagtypes.BidEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		unconfirmed: make(map[bagtypes.BagID]struct{}),
		confirmed:   make(map[bagtypes.BagID]bagtypes.BidEntry),
	}
}

var _ store.BidStore = (*Store)(nil)

func (s *Store) InsertUnconfirmed(_ context.Context, bag bagtypes.BagID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[bag]; ok {
		return nil
	}
	s.unconfirmed[bag] = struct{}{}
	return nil
}

func (s *Store) InsertBid(_ context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[bag]; ok {
		return store.ErrBagAlreadyExists
	}
	if _, ok := s.unconfirmed[bag]; ok {
		return store.ErrBagAlreadyExists
	}
	s.confirmed[bag] = entry
	return nil
}

func (s *Store) UpdateBid(_ context.Context, bag bagtypes.BagID, entry bagtypes.BidEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasConfirmed := s.confirmed[bag]
	_, hasUnconfirmed := s.unconfirmed[bag]
	if !hasConfirmed && !hasUnconfirmed {
		return store.ErrBagDoesNotExist
	}
	delete(s.unconfirmed, bag)
	s.confirmed[bag] = entry
	return nil
}

func (s *Store) RemoveBag(_ context.Context, bag bagtypes.BagID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasConfirmed := s.confirmed[bag]
	_, hasUnconfirmed := s.unconfirmed[bag]
	if !hasConfirmed && !hasUnconfirmed {
		return store.ErrBagDoesNotExist
	}
	delete(s.confirmed, bag)
	delete(s.unconfirmed, bag)
	return nil
}

func (s *Store) RemoveConfirmationWithBlockHash(_ context.Context, hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for bag, entry := range s.confirmed {
		if entry.Proof.Block == hash {
			delete(s.confirmed, bag)
			s.unconfirmed[bag] = struct{}{}
		}
	}
	return nil
}

func (s *Store) IsBagExists(_ context.Context, bag bagtypes.BagID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[bag]; ok {
		return true, nil
	}
	_, ok := s.unconfirmed[bag]
	return ok, nil
}

func (s *Store) GetRecordsByBlockHash(_ context.Context, hash chainhash.Hash) ([]bagtypes.BagRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bagtypes.BagRecord
	for bag, entry := range s.confirmed {
		if entry.Proof.Block == hash {
			out = append(out, bagtypes.Confirmed(bag, entry))
		}
	}
	return out, nil
}

func (s *Store) GetBlocksCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[chainhash.Hash]struct{})
	for _, entry := range s.confirmed {
		seen[entry.Proof.Block] = struct{}{}
	}
	return len(seen), nil
}

func (s *Store) Close() error {
	return nil
}
