// Package fakechain implements a deterministic, in-memory ChainClient for
// exercising the tracker's reorg-detection and scanning logic without a
// real Bitcoin-compatible node.
package fakechain

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
	"github.com/Klingon-tech/bagtracker/pkg/chainclient"
	"github.com/Klingon-tech/bagtracker/pkg/mintscript"
)

type storedBlock struct {
	block  *wire.MsgBlock
	height int64
}

// Chain is a deterministic fake chain. A block is canonical at height h iff
// Chain.heights[h] names its hash — rewinding the tip with ForkAt without
// deleting the orphaned block from Chain.blocks is exactly what makes
// BlockHeader report confirmations == -1 for it, the same way a real node
// would after a reorg.
type Chain struct {
	mu sync.Mutex

	blocks  map[chainhash.Hash]*storedBlock
	heights map[int64]chainhash.Hash
	tip     int64
	seq     uint32

	sent []*wire.MsgTx

	fundErr error
	signErr error
	sendErr error
}

// New creates a fake chain with a single genesis block at height 0.
func New() *Chain {
	c := &Chain{
		blocks:  make(map[chainhash.Hash]*storedBlock),
		heights: make(map[int64]chainhash.Hash),
	}
	header := wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, 0)
	genesis := wire.NewMsgBlock(header)
	hash := genesis.Header.BlockHash()
	c.blocks[hash] = &storedBlock{block: genesis, height: 0}
	c.heights[0] = hash
	return c
}

// SetFundErr/SetSignErr/SetSendErr inject a transport failure for the next
// call to the corresponding wallet-bound operation, and every call after
// it until cleared.
func (c *Chain) SetFundErr(err error) { c.fundErr = err }
func (c *Chain) SetSignErr(err error) { c.signErr = err }
func (c *Chain) SetSendErr(err error) { c.sendErr = err }

// SentTxs returns every transaction handed to SendTx, in call order.
func (c *Chain) SentTxs() []*wire.MsgTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wire.MsgTx, len(c.sent))
	copy(out, c.sent)
	return out
}

// AppendBlock extends the current tip with a new block containing txs and
// returns its hash.
func (c *Chain) AppendBlock(txs ...*wire.MsgTx) chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := c.heights[c.tip]
	merkleRoot := txsDigest(txs)
	c.seq++
	header := wire.NewBlockHeader(1, &prevHash, &merkleRoot, 0, c.seq)
	blk := wire.NewMsgBlock(header)
	for _, tx := range txs {
		blk.AddTransaction(tx)
	}

	hash := blk.Header.BlockHash()
	height := c.tip + 1
	c.blocks[hash] = &storedBlock{block: blk, height: height}
	c.heights[height] = hash
	c.tip = height
	return hash
}

// ForkAt rewinds the canonical tip to height, orphaning every block above
// it without deleting the blocks themselves — the next AppendBlock call
// builds the new canonical suffix from this point.
func (c *Chain) ForkAt(height int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.heights {
		if h > height {
			delete(c.heights, h)
		}
	}
	c.tip = height
}

// Tip returns the current canonical height and its block hash.
func (c *Chain) Tip() (int64, chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, c.heights[c.tip]
}

func txsDigest(txs []*wire.MsgTx) chainhash.Hash {
	if len(txs) == 0 {
		return chainhash.Hash{}
	}
	var buf bytes.Buffer
	for _, tx := range txs {
		h := tx.TxHash()
		buf.Write(h[:])
	}
	return chainhash.HashH(buf.Bytes())
}

// NewMintTx builds a single-output transaction carrying a mint-shaped
// output for bag, with a single dummy input so the transaction is
// non-empty the way a real funded transaction would be.
func NewMintTx(bag bagtypes.BagID, amount uint64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex}})
	script, err := mintscript.Write(bag)
	if err != nil {
		panic(err)
	}
	tx.AddTxOut(&wire.TxOut{Value: int64(amount), PkScript: script})
	return tx
}

var _ chainclient.ChainClient = (*Chain)(nil)

func (c *Chain) ChainInfo(_ context.Context) (*chainclient.ChainInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &chainclient.ChainInfo{Blocks: c.tip, BestBlockHash: c.heights[c.tip]}, nil
}

func (c *Chain) BlockHash(_ context.Context, height int64) (chainhash.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.heights[height]
	if !ok {
		return chainhash.Hash{}, fmt.Errorf("fakechain: no block at height %d", height)
	}
	return hash, nil
}

func (c *Chain) BlockHeader(_ context.Context, hash chainhash.Hash) (*chainclient.BlockHeaderInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sb, ok := c.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("fakechain: block %s: %w", hash, chainclient.ErrBlockNotFound)
	}

	info := &chainclient.BlockHeaderInfo{Height: sb.height}
	if canonical, ok := c.heights[sb.height]; ok && canonical == hash {
		info.Confirmations = c.tip - sb.height + 1
	} else {
		info.Confirmations = -1
	}
	if sb.height > 0 {
		prev := sb.block.Header.PrevBlock
		info.PreviousBlockHash = &prev
	}
	return info, nil
}

func (c *Chain) Block(_ context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sb, ok := c.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("fakechain: block %s: %w", hash, chainclient.ErrBlockNotFound)
	}
	return sb.block, nil
}

// FundTx simulates a wallet adding one input and prepending a change
// output — the builder is expected to locate the mint output again by
// scanning rather than assuming its position survives funding. The raw
// transaction arrives base-encoded: witness-aware decoding would read a
// zero-input tx's 0x00 input count as a SegWit marker and misparse the
// rest, so decode with the matching base encoding.
func (c *Chain) FundTx(_ context.Context, rawTx []byte) ([]byte, error) {
	if c.fundErr != nil {
		return nil, c.fundErr
	}
	var tx wire.MsgTx
	if err := tx.BtcDecode(bytes.NewReader(rawTx), wire.ProtocolVersion, wire.BaseEncoding); err != nil {
		return nil, fmt.Errorf("fakechain: fund: decode tx: %w", err)
	}
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex}})
	change := &wire.TxOut{Value: 1000, PkScript: []byte{0x00, 0x14}}
	tx.TxOut = append([]*wire.TxOut{change}, tx.TxOut...)

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("fakechain: fund: encode tx: %w", err)
	}
	return buf.Bytes(), nil
}

// SignTx is a no-op: this fake has no script-verification path to satisfy,
// so it returns the raw transaction unchanged.
func (c *Chain) SignTx(_ context.Context, rawTx []byte) ([]byte, error) {
	if c.signErr != nil {
		return nil, c.signErr
	}
	return rawTx, nil
}

func (c *Chain) SendTx(_ context.Context, rawTx []byte) (chainhash.Hash, error) {
	if c.sendErr != nil {
		return chainhash.Hash{}, c.sendErr
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return chainhash.Hash{}, fmt.Errorf("fakechain: send: decode tx: %w", err)
	}
	c.mu.Lock()
	c.sent = append(c.sent, &tx)
	c.mu.Unlock()
	return tx.TxHash(), nil
}
