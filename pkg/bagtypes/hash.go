// Package bagtypes defines the core value types of the bag tracker: bag
// identifiers, outpoints, bid transactions, bid proofs and the confirmed/
// unconfirmed bag record. All types are plain, immutable-after-construction
// value types. All except BagRecord have structural equality and are
// suitable for use as map keys; BagRecord holds its confirmed entry by
// pointer, so == on two records compares that pointer.
package bagtypes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BagIDSize is the length of a bag identifier in bytes.
const BagIDSize = 32

// BagID is the 32-byte opaque identifier minted externally for a bag.
// Equality is bytewise.
type BagID [BagIDSize]byte

// IsZero returns true if the bag id is all zeros.
func (b BagID) IsZero() bool {
	return b == BagID{}
}

// String returns the hex-encoded bag id.
func (b BagID) String() string {
	return hex.EncodeToString(b[:])
}

// Bytes returns a copy of the bag id as a byte slice.
func (b BagID) Bytes() []byte {
	out := make([]byte, BagIDSize)
	copy(out, b[:])
	return out
}

// MarshalJSON encodes the bag id as a hex string.
func (b BagID) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a hex string into a bag id.
func (b *BagID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid bag id hex: %w", err)
	}
	if len(decoded) != BagIDSize {
		return fmt.Errorf("bag id must be %d bytes, got %d", BagIDSize, len(decoded))
	}
	copy(b[:], decoded)
	return nil
}

// BagIDFromBytes copies b into a BagID. Fails if b is not exactly BagIDSize bytes.
func BagIDFromBytes(b []byte) (BagID, error) {
	if len(b) != BagIDSize {
		return BagID{}, fmt.Errorf("bag id must be %d bytes, got %d", BagIDSize, len(b))
	}
	var id BagID
	copy(id[:], b)
	return id, nil
}

// HexToBagID parses a hex string into a BagID.
func HexToBagID(s string) (BagID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return BagID{}, fmt.Errorf("invalid hex: %w", err)
	}
	return BagIDFromBytes(b)
}
