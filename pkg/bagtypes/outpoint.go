package bagtypes

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Outpoint references a specific output in a transaction. TxID is a
// double-SHA256 transaction hash, the same hash the followed chain uses on
// the wire.
type Outpoint struct {
	TxID  chainhash.Hash `json:"txid"`
	Index uint32         `json:"index"`
}

// IsZero returns true if the outpoint has a zero txid and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID == (chainhash.Hash{}) && o.Index == 0
}

// String returns "txid:index" in the conventional big-endian display order.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
