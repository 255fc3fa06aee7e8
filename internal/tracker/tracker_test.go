package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/bagtracker/internal/fakechain"
	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/internal/store/memstore"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

func bag(b byte) bagtypes.BagID {
	var id bagtypes.BagID
	id[0] = b
	return id
}

// TestCheckReorgs_SingleConfirmation covers scenario S1: a single block
// containing one mint output is scanned and the bag is promoted to
// Confirmed with the right amount.
func TestCheckReorgs_SingleConfirmation(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1 := bag(1)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.AddBag(ctx, b1); err != nil {
		t.Fatalf("AddBag: %v", err)
	}

	tx := fakechain.NewMintTx(b1, 10)
	blockHash := chain.AppendBlock(tx)

	if _, err := tr.CheckReorgs(ctx); err != nil {
		t.Fatalf("CheckReorgs: %v", err)
	}

	if tr.CurrentHeight() != 1 {
		t.Fatalf("CurrentHeight = %d, want 1", tr.CurrentHeight())
	}

	exists, err := st.IsBagExists(ctx, b1)
	if err != nil || !exists {
		t.Fatalf("IsBagExists = %v, %v; want true, nil", exists, err)
	}

	count, err := st.GetBlocksCount(ctx)
	if err != nil || count != 1 {
		t.Fatalf("GetBlocksCount = %d, %v; want 1, nil", count, err)
	}

	recs, err := st.GetRecordsByBlockHash(ctx, blockHash)
	if err != nil || len(recs) != 1 || recs[0].Entry.Amount != 10 {
		t.Fatalf("GetRecordsByBlockHash = %+v, %v; want one record with amount 10", recs, err)
	}
}

// TestCheckReorgs_LongerChainReorg covers scenario S3: a reorg replaces the
// suffix from height 2 onward with a longer branch; bags confirmed only in
// the discarded block demote, bags in the new branch confirm.
func TestCheckReorgs_LongerChainReorg(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1, b2, b3, b4 := bag(1), bag(2), bag(3), bag(4)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, b := range []bagtypes.BagID{b1, b2, b3, b4} {
		if err := tr.AddBag(ctx, b); err != nil {
			t.Fatalf("AddBag: %v", err)
		}
	}

	hashB1 := chain.AppendBlock(fakechain.NewMintTx(b1, 1))
	hashB2 := chain.AppendBlock(fakechain.NewMintTx(b2, 2))
	if _, err := tr.CheckReorgs(ctx); err != nil {
		t.Fatalf("initial CheckReorgs: %v", err)
	}
	if tr.CurrentHeight() != 2 {
		t.Fatalf("CurrentHeight after initial scan = %d, want 2", tr.CurrentHeight())
	}

	chain.ForkAt(1)
	hashB2Prime := chain.AppendBlock(fakechain.NewMintTx(b3, 3))
	hashB3Prime := chain.AppendBlock(fakechain.NewMintTx(b4, 4))

	info, err := tr.CheckReorgs(ctx)
	if err != nil {
		t.Fatalf("reorg CheckReorgs: %v", err)
	}
	if info == nil {
		t.Fatal("expected a non-nil ReorgInfo")
	}
	if tr.CurrentHeight() != 3 {
		t.Fatalf("CurrentHeight after reorg = %d, want 3", tr.CurrentHeight())
	}

	for _, tc := range []struct {
		bag         bagtypes.BagID
		wantExist   bool
		wantConfirm bool
	}{
		{b1, true, true},
		{b2, true, false},
		{b3, true, true},
		{b4, true, true},
	} {
		exists, err := st.IsBagExists(ctx, tc.bag)
		if err != nil || exists != tc.wantExist {
			t.Fatalf("IsBagExists(%s) = %v, %v; want %v", tc.bag, exists, err, tc.wantExist)
		}

		confirmed := false
		for _, h := range []chainhash.Hash{hashB1, hashB2, hashB2Prime, hashB3Prime} {
			recs, err := st.GetRecordsByBlockHash(ctx, h)
			if err != nil {
				t.Fatalf("GetRecordsByBlockHash(%s): %v", h, err)
			}
			for _, r := range recs {
				if r.BagID == tc.bag {
					confirmed = true
				}
			}
		}
		if confirmed != tc.wantConfirm {
			t.Fatalf("bag %s confirmed = %v, want %v", tc.bag, confirmed, tc.wantConfirm)
		}
	}
}

// TestCheckReorgs_ShorterChainReorg covers scenario S4: the new canonical
// chain is shorter than the old one, and current_height decreases.
func TestCheckReorgs_ShorterChainReorg(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1, b2, b3 := bag(1), bag(2), bag(3)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, b := range []bagtypes.BagID{b1, b2, b3} {
		if err := tr.AddBag(ctx, b); err != nil {
			t.Fatalf("AddBag: %v", err)
		}
	}

	chain.AppendBlock(fakechain.NewMintTx(b1, 1))
	chain.AppendBlock(fakechain.NewMintTx(b2, 2))
	if _, err := tr.CheckReorgs(ctx); err != nil {
		t.Fatalf("initial CheckReorgs: %v", err)
	}

	chain.ForkAt(0)
	newB1Hash := chain.AppendBlock(fakechain.NewMintTx(b3, 3))

	if _, err := tr.CheckReorgs(ctx); err != nil {
		t.Fatalf("reorg CheckReorgs: %v", err)
	}

	if tr.CurrentHeight() != 1 {
		t.Fatalf("CurrentHeight after shorter-chain reorg = %d, want 1", tr.CurrentHeight())
	}

	recs, err := st.GetRecordsByBlockHash(ctx, newB1Hash)
	if err != nil {
		t.Fatalf("GetRecordsByBlockHash: %v", err)
	}
	for _, tc := range []struct {
		bag       bagtypes.BagID
		confirmed bool
	}{
		{b1, false},
		{b2, false},
		{b3, true},
	} {
		found := false
		for _, r := range recs {
			if r.BagID == tc.bag {
				found = true
			}
		}
		if found != tc.confirmed {
			t.Fatalf("bag %s confirmed-in-B1' = %v, want %v", tc.bag, found, tc.confirmed)
		}
	}
}

// TestCheckReorgs_NoReorgIsIdempotent covers property P4: a second
// check_reorgs call with the chain unchanged is a no-op.
func TestCheckReorgs_NoReorgIsIdempotent(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1 := bag(1)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.AddBag(ctx, b1); err != nil {
		t.Fatalf("AddBag: %v", err)
	}
	chain.AppendBlock(fakechain.NewMintTx(b1, 1))

	if _, err := tr.CheckReorgs(ctx); err != nil {
		t.Fatalf("first CheckReorgs: %v", err)
	}
	heightAfterFirst := tr.CurrentHeight()
	tipAfterFirst := tr.CurrentTip()

	info, err := tr.CheckReorgs(ctx)
	if err != nil {
		t.Fatalf("second CheckReorgs: %v", err)
	}
	if info != nil {
		t.Fatalf("second CheckReorgs reported a reorg on an unchanged chain: %+v", info)
	}
	if tr.CurrentHeight() != heightAfterFirst || tr.CurrentTip() != tipAfterFirst {
		t.Fatal("second CheckReorgs mutated tracker state on an unchanged chain")
	}
}

// TestAddBid_ValidProofConfirms covers the operator path of scenario S1:
// a proof naming a real mint output promotes the bag and adopts the
// witness block as the new tip.
func TestAddBid_ValidProofConfirms(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1 := bag(1)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.AddBag(ctx, b1); err != nil {
		t.Fatalf("AddBag: %v", err)
	}

	tx := fakechain.NewMintTx(b1, 10)
	blockHash := chain.AppendBlock(tx)

	proof := bagtypes.BidProof{
		Block: blockHash,
		Tx: bagtypes.BidTx{
			Outpoint: bagtypes.Outpoint{TxID: tx.TxHash(), Index: 0},
			BagID:    b1,
		},
	}
	if err := tr.AddBid(ctx, proof); err != nil {
		t.Fatalf("AddBid: %v", err)
	}

	if tr.CurrentHeight() != 1 {
		t.Fatalf("CurrentHeight = %d, want 1", tr.CurrentHeight())
	}
	recs, err := st.GetRecordsByBlockHash(ctx, blockHash)
	if err != nil || len(recs) != 1 {
		t.Fatalf("GetRecordsByBlockHash = %v, %v; want one record", recs, err)
	}
	if recs[0].Entry.Amount != 10 || recs[0].Entry.Proof.Tx.BagID != b1 {
		t.Fatalf("unexpected confirmed record: %+v", recs[0])
	}
}

// TestAddBid_UnregisteredBag covers scenario S2's failure leg: a proof for
// a bag the operator never registered surfaces the storage error.
func TestAddBid_UnregisteredBag(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b2 := bag(2)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tx := fakechain.NewMintTx(b2, 5)
	blockHash := chain.AppendBlock(tx)

	proof := bagtypes.BidProof{
		Block: blockHash,
		Tx: bagtypes.BidTx{
			Outpoint: bagtypes.Outpoint{TxID: tx.TxHash(), Index: 0},
			BagID:    b2,
		},
	}
	if err := tr.AddBid(ctx, proof); !errors.Is(err, store.ErrBagDoesNotExist) {
		t.Fatalf("AddBid for unregistered bag = %v, want ErrBagDoesNotExist", err)
	}
}

func TestAddBid_TxDoesNotExist(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1 := bag(1)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.AddBag(ctx, b1); err != nil {
		t.Fatalf("AddBag: %v", err)
	}

	blockHash := chain.AppendBlock()
	otherTx := fakechain.NewMintTx(b1, 1)

	proof := bagtypes.BidProof{
		Block: blockHash,
		Tx: bagtypes.BidTx{
			Outpoint: bagtypes.Outpoint{TxID: otherTx.TxHash(), Index: 0},
			BagID:    b1,
		},
	}
	err = tr.AddBid(ctx, proof)
	var trackerErr *TrackerError
	if !errors.As(err, &trackerErr) || trackerErr.Kind != TxDoesNotExist {
		t.Fatalf("AddBid naming an absent tx = %v, want TxDoesNotExist TrackerError", err)
	}

	// A proof naming a block the node has never seen fails the same way.
	proof.Block = chainhash.Hash{0xff}
	err = tr.AddBid(ctx, proof)
	if !errors.As(err, &trackerErr) || trackerErr.Kind != TxDoesNotExist {
		t.Fatalf("AddBid naming an unknown block = %v, want TxDoesNotExist TrackerError", err)
	}
}

func TestAddBid_WrongBagId(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	b1, b2 := bag(1), bag(2)

	st := memstore.New()
	tr, err := New(ctx, chain, st, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tr.AddBag(ctx, b1); err != nil {
		t.Fatalf("AddBag: %v", err)
	}

	tx := fakechain.NewMintTx(b1, 1)
	blockHash := chain.AppendBlock(tx)

	proof := bagtypes.BidProof{
		Block: blockHash,
		Tx: bagtypes.BidTx{
			Outpoint: bagtypes.Outpoint{TxID: tx.TxHash(), Index: 0},
			BagID:    b2,
		},
	}
	err = tr.AddBid(ctx, proof)
	var trackerErr *TrackerError
	if !errors.As(err, &trackerErr) || trackerErr.Kind != WrongBagId {
		t.Fatalf("AddBid with mismatched bag = %v, want WrongBagId TrackerError", err)
	}
}
