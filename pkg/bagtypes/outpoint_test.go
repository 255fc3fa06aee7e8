package bagtypes

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func TestOutpoint_IsZero(t *testing.T) {
	var zero Outpoint
	if !zero.IsZero() {
		t.Error("zero-value Outpoint should be zero")
	}

	nonZero := Outpoint{TxID: chainhash.Hash{0x01}, Index: 0}
	if nonZero.IsZero() {
		t.Error("non-zero txid should not be zero")
	}

	nonZeroIdx := Outpoint{Index: 1}
	if nonZeroIdx.IsZero() {
		t.Error("non-zero index should not be zero")
	}
}

func TestOutpoint_String(t *testing.T) {
	var txid chainhash.Hash
	txid[0] = 0xff
	o := Outpoint{TxID: txid, Index: 3}
	s := o.String()
	want := txid.String() + ":3"
	if s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}
