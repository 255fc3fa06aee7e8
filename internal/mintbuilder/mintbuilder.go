// Package mintbuilder constructs bag-issuance transactions: fund, sign,
// and broadcast a transaction carrying a single mint-shaped output, then
// recover the bag's final outpoint by scanning the signed result (a node's
// funding step is free to reorder outputs).
package mintbuilder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
	"github.com/Klingon-tech/bagtracker/pkg/chainclient"
	"github.com/Klingon-tech/bagtracker/pkg/mintscript"
)

// Mint transactions are always version 2 with a zero lock time.
const (
	txVersion = 2
	lockTime  = 0
)

// Build constructs, funds, signs, and broadcasts a transaction with one
// output of value satoshis carrying bagID, then returns the BidTx binding
// the bag to its final on-chain outpoint.
func Build(ctx context.Context, client chainclient.ChainClient, satoshis uint64, bagID bagtypes.BagID) (bagtypes.BidTx, error) {
	script, err := mintscript.Write(bagID)
	if err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: build mint script: %w", err)
	}

	tx := wire.NewMsgTx(txVersion)
	tx.LockTime = lockTime
	tx.AddTxOut(&wire.TxOut{Value: int64(satoshis), PkScript: script})

	raw, err := serializeBase(tx)
	if err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: serialize unfunded tx: %w", err)
	}

	funded, err := client.FundTx(ctx, raw)
	if err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: fund tx: %w", err)
	}

	signed, err := client.SignTx(ctx, funded)
	if err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: sign tx: %w", err)
	}

	txid, err := client.SendTx(ctx, signed)
	if err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: send tx: %w", err)
	}

	var signedTx wire.MsgTx
	if err := signedTx.Deserialize(bytes.NewReader(signed)); err != nil {
		return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: decode signed tx: %w", err)
	}

	for pos, out := range signedTx.TxOut {
		recognized, _, ok := mintscript.Recognize(out.PkScript, uint64(out.Value))
		if !ok || recognized != bagID {
			continue
		}
		return bagtypes.BidTx{
			Outpoint: bagtypes.Outpoint{TxID: txid, Index: uint32(pos)},
			BagID:    bagID,
		}, nil
	}

	return bagtypes.BidTx{}, fmt.Errorf("mintbuilder: bag %s not found in any output of the signed transaction", bagID)
}

// serializeBase encodes tx explicitly in the bare input-list-length wire
// form instead of leaving the choice to Serialize()'s witness auto-detection.
// A zero-input transaction in this form starts with a 0x00 input count,
// which a witness-aware decoder would take for a SegWit marker.
func serializeBase(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.BtcEncode(&buf, wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
