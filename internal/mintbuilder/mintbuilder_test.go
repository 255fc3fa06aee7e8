package mintbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/bagtracker/internal/fakechain"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

// TestBuild_LocatesReorderedOutput covers scenario S6: the fake funding
// step prepends a change output, pushing the mint output from position 0
// to position 1; Build must still locate it by scanning.
func TestBuild_LocatesReorderedOutput(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()

	var bag bagtypes.BagID
	bag[0] = 7

	bidTx, err := Build(ctx, chain, 5000, bag)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bidTx.Outpoint.Index != 1 {
		t.Fatalf("Outpoint.Index = %d, want 1 (change output pushed mint output to position 1)", bidTx.Outpoint.Index)
	}
	if bidTx.BagID != bag {
		t.Fatalf("BagID = %s, want %s", bidTx.BagID, bag)
	}

	sent := chain.SentTxs()
	if len(sent) != 1 {
		t.Fatalf("SentTxs = %d, want 1", len(sent))
	}
	if sent[0].TxHash() != bidTx.Outpoint.TxID {
		t.Fatal("returned outpoint's txid does not match the transaction actually broadcast")
	}
}

func TestBuild_PropagatesFundError(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	wantErr := errors.New("insufficient funds")
	chain.SetFundErr(wantErr)

	var bag bagtypes.BagID
	bag[0] = 1
	if _, err := Build(ctx, chain, 1000, bag); !errors.Is(err, wantErr) {
		t.Fatalf("Build error = %v, want to wrap %v", err, wantErr)
	}
}

func TestBuild_PropagatesSendError(t *testing.T) {
	ctx := context.Background()
	chain := fakechain.New()
	wantErr := errors.New("mempool rejected")
	chain.SetSendErr(wantErr)

	var bag bagtypes.BagID
	bag[0] = 1
	if _, err := Build(ctx, chain, 1000, bag); !errors.Is(err, wantErr) {
		t.Fatalf("Build error = %v, want to wrap %v", err, wantErr)
	}
}
