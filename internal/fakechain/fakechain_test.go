package fakechain

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

func TestChain_AppendAndForkAt(t *testing.T) {
	ctx := context.Background()
	c := New()

	var b1 bagtypes.BagID
	b1[0] = 1
	hashB1 := c.AppendBlock(NewMintTx(b1, 1))

	info, err := c.ChainInfo(ctx)
	if err != nil {
		t.Fatalf("ChainInfo: %v", err)
	}
	if info.Blocks != 1 || info.BestBlockHash != hashB1 {
		t.Fatalf("ChainInfo = %+v, want height 1 at %s", info, hashB1)
	}

	hdr, err := c.BlockHeader(ctx, hashB1)
	if err != nil {
		t.Fatalf("BlockHeader: %v", err)
	}
	if hdr.IsOrphan() {
		t.Fatal("freshly appended tip should not be an orphan")
	}

	c.ForkAt(0)
	var b2 bagtypes.BagID
	b2[0] = 2
	hashB1Prime := c.AppendBlock(NewMintTx(b2, 2))
	if hashB1Prime == hashB1 {
		t.Fatal("reorged block should hash differently from the orphaned one")
	}

	hdr, err = c.BlockHeader(ctx, hashB1)
	if err != nil {
		t.Fatalf("BlockHeader on orphan: %v", err)
	}
	if !hdr.IsOrphan() {
		t.Fatal("orphaned block should report confirmations == -1")
	}
}

// TestChain_FundsZeroInputTx feeds FundTx a zero-input transaction in the
// base wire encoding, the exact shape the mint builder hands a node before
// funding. A witness-aware decode would misread its 0x00 input count as a
// SegWit marker.
func TestChain_FundsZeroInputTx(t *testing.T) {
	ctx := context.Background()
	c := New()

	var bag bagtypes.BagID
	bag[0] = 7
	tx := NewMintTx(bag, 5000)
	tx.TxIn = nil

	var buf bytes.Buffer
	if err := tx.BtcEncode(&buf, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		t.Fatalf("encode: %v", err)
	}

	funded, err := c.FundTx(ctx, buf.Bytes())
	if err != nil {
		t.Fatalf("FundTx on a zero-input tx: %v", err)
	}

	var fundedTx wire.MsgTx
	if err := fundedTx.Deserialize(bytes.NewReader(funded)); err != nil {
		t.Fatalf("deserialize funded: %v", err)
	}
	if len(fundedTx.TxIn) != 1 || len(fundedTx.TxOut) != 2 {
		t.Fatalf("funded tx has %d inputs and %d outputs, want 1 and 2", len(fundedTx.TxIn), len(fundedTx.TxOut))
	}
}

func TestChain_FundSignSendRoundtrip(t *testing.T) {
	ctx := context.Background()
	c := New()

	var bag bagtypes.BagID
	bag[0] = 7
	tx := NewMintTx(bag, 5000)

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	funded, err := c.FundTx(ctx, buf.Bytes())
	if err != nil {
		t.Fatalf("FundTx: %v", err)
	}

	var fundedTx wire.MsgTx
	if err := fundedTx.Deserialize(bytes.NewReader(funded)); err != nil {
		t.Fatalf("deserialize funded: %v", err)
	}
	if len(fundedTx.TxOut) != 2 {
		t.Fatalf("funded tx has %d outputs, want 2 (change + mint)", len(fundedTx.TxOut))
	}

	signed, err := c.SignTx(ctx, funded)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	txid, err := c.SendTx(ctx, signed)
	if err != nil {
		t.Fatalf("SendTx: %v", err)
	}
	if txid != fundedTx.TxHash() {
		t.Fatalf("SendTx txid = %s, want %s", txid, fundedTx.TxHash())
	}

	sent := c.SentTxs()
	if len(sent) != 1 {
		t.Fatalf("SentTxs = %d, want 1", len(sent))
	}
}
