package bagtypes

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// BidTx is the on-chain half of a bid: "this outpoint carries this bag."
type BidTx struct {
	Outpoint Outpoint `json:"outpoint"`
	BagID    BagID    `json:"bag_id"`
}

// BidProof is a witness submitted by an external actor: "I claim the bid
// transaction appears in this specific block." It is verified against the
// chain before being trusted, never taken at face value.
type BidProof struct {
	Block chainhash.Hash `json:"block"`
	Tx    BidTx          `json:"tx"`
}

// BidEntry is the full confirmed record persisted in storage.
type BidEntry struct {
	Amount uint64   `json:"amount"`
	Proof  BidProof `json:"proof"`
}

// BagRecord is the stored state for a bag: a sum over two variants.
// Entry == nil means Unconfirmed(BagID); Entry != nil means
// Confirmed(*Entry), witnessed in block Entry.Proof.Block.
type BagRecord struct {
	BagID BagID
	Entry *BidEntry
}

// Unconfirmed builds the Unconfirmed(bag) variant of BagRecord.
func Unconfirmed(bag BagID) BagRecord {
	return BagRecord{BagID: bag}
}

// Confirmed builds the Confirmed(entry) variant of BagRecord.
func Confirmed(bag BagID, entry BidEntry) BagRecord {
	return BagRecord{BagID: bag, Entry: &entry}
}

// IsConfirmed reports whether this record is in the Confirmed variant.
func (r BagRecord) IsConfirmed() bool {
	return r.Entry != nil
}
