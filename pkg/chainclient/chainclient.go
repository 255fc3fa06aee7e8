// Package chainclient defines the minimum capability set the tracker and
// the mint transaction builder require from a Bitcoin-like node, plus a
// JSON-RPC 2.0 implementation of it.
package chainclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrBlockNotFound is returned by BlockHeader and Block when the node does
// not know the named block at all, as opposed to a transport failure.
// Callers can test for it with errors.Is.
var ErrBlockNotFound = errors.New("block not found")

// ChainInfo is the result of ChainClient.ChainInfo.
type ChainInfo struct {
	Blocks        int64
	BestBlockHash chainhash.Hash
}

// BlockHeaderInfo is the result of ChainClient.BlockHeader.
//
// Confirmations == -1 means the block is not on the node's current main
// chain. PreviousBlockHash is nil only for the genesis block.
type BlockHeaderInfo struct {
	Height            int64
	Confirmations     int64
	PreviousBlockHash *chainhash.Hash
}

// IsOrphan reports whether the header names a block no longer on the main
// chain, per the -1 confirmations convention.
func (h *BlockHeaderInfo) IsOrphan() bool {
	return h.Confirmations == -1
}

// IsGenesis reports whether this header has no parent.
func (h *BlockHeaderInfo) IsGenesis() bool {
	return h.PreviousBlockHash == nil
}

// ChainClient is the polymorphic capability the tracker and mint builder
// consume. Every operation may fail with a transport error, surfaced to
// callers wrapped in a *ClientError.
type ChainClient interface {
	// ChainInfo returns the height and hash of the node's current tip.
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	// BlockHash returns the hash at height on the current canonical chain.
	// Fails if height exceeds the tip.
	BlockHash(ctx context.Context, height int64) (chainhash.Hash, error)
	// BlockHeader returns header metadata for hash, whether or not hash is
	// still on the main chain.
	BlockHeader(ctx context.Context, hash chainhash.Hash) (*BlockHeaderInfo, error)
	// Block returns the full block contents, including its transactions.
	Block(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
	// FundTx asks the node's wallet to add inputs (and a change output) to
	// an unsigned raw transaction, returning the funded raw transaction.
	FundTx(ctx context.Context, rawTx []byte) ([]byte, error)
	// SignTx asks the node's wallet to sign a funded raw transaction.
	SignTx(ctx context.Context, rawTx []byte) ([]byte, error)
	// SendTx broadcasts a signed raw transaction and returns its txid.
	SendTx(ctx context.Context, rawTx []byte) (chainhash.Hash, error)
}

// ClientError wraps a transport-layer failure from the chain client with
// the operation that triggered it, so callers can log and retry uniformly.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("chain client: %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
