// Package mintscript recognizes and writes bag-bearing mint outputs: a
// native SegWit v0 witness-script-hash push whose 32-byte payload is the
// bag identifier it carries.
package mintscript

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
)

// scriptLen is the total length of a mint output's locking script:
// OP_0 (1 byte) || push-32 opcode (1 byte) || bag id (32 bytes).
const scriptLen = 34

// Recognize matches a transaction output's locking script against the mint
// output format. It returns the embedded bag id and the passed-through
// satoshi value when script is exactly OP_0 || OP_DATA_32 || <32 bytes>.
// Any other shape — wrong length, wrong witness version, wrong push opcode
// — is reported by ok == false; there is no other failure mode.
func Recognize(script []byte, value uint64) (bagID bagtypes.BagID, amount uint64, ok bool) {
	if len(script) != scriptLen {
		return bagtypes.BagID{}, 0, false
	}
	if script[0] != txscript.OP_0 {
		return bagtypes.BagID{}, 0, false
	}
	if script[1] != txscript.OP_DATA_32 {
		return bagtypes.BagID{}, 0, false
	}
	bagID, err := bagtypes.BagIDFromBytes(script[2:])
	if err != nil {
		return bagtypes.BagID{}, 0, false
	}
	return bagID, value, true
}

// Write constructs the canonical v0-P2WSH push embedding bagID. A 32-byte
// data push is always emitted as a direct OP_DATA_32 by the script builder,
// so the result is always exactly the 34-byte mint output format.
func Write(bagID bagtypes.BagID) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(bagID.Bytes()).
		Script()
	if err != nil {
		return nil, fmt.Errorf("build mint script: %w", err)
	}
	if len(script) != scriptLen {
		return nil, fmt.Errorf("built mint script has unexpected length %d", len(script))
	}
	return script, nil
}
