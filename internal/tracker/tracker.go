// Package tracker implements the chain-follower state machine: advancing a
// local view of the canonical chain, detecting reorganizations by walking
// back from the last known tip, and driving the bag/bid lifecycle in
// storage as blocks are scanned.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/bagtracker/internal/blog"
	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/pkg/bagtypes"
	"github.com/Klingon-tech/bagtracker/pkg/chainclient"
	"github.com/Klingon-tech/bagtracker/pkg/mintscript"
)

// MaxWalkBackDepth bounds the walk-back search for a fork root. A client
// that never reports confirmations != -1 indicates a broken implementation
// rather than an arbitrarily deep reorg; the walk aborts and surfaces a
// ClientError rather than looping forever.
const MaxWalkBackDepth = 100000

// TrackerErrorKind distinguishes the operator-facing failure modes of
// add_bid. All three are fatal to the call that produced them; none are
// retryable without operator correction.
type TrackerErrorKind int

const (
	// TxDoesNotExist means the proof names a block that does not contain
	// proof.Tx.Outpoint.TxID.
	TxDoesNotExist TrackerErrorKind = iota
	// WrongOutputFormat means the output named by the proof is not
	// mint-shaped.
	WrongOutputFormat
	// WrongBagId means the output is mint-shaped but carries a different
	// bag id than the proof claims.
	WrongBagId
)

// TrackerError is returned by AddBid when a submitted BidProof fails
// validation against the chain.
type TrackerError struct {
	Kind     TrackerErrorKind
	Block    chainhash.Hash
	TxID     chainhash.Hash
	Expected bagtypes.BagID
	Actual   bagtypes.BagID
}

func (e *TrackerError) Error() string {
	switch e.Kind {
	case TxDoesNotExist:
		return fmt.Sprintf("tracker: tx %s not found in block %s", e.TxID, e.Block)
	case WrongOutputFormat:
		return fmt.Sprintf("tracker: output at proof position in tx %s is not mint-shaped", e.TxID)
	case WrongBagId:
		return fmt.Sprintf("tracker: tx %s carries bag %s, proof claims %s", e.TxID, e.Actual, e.Expected)
	default:
		return "tracker: invalid proof"
	}
}

// ErrAnomalousShrink is returned by CheckReorgs when the chain's reported
// tip height is below the tracker's current height without walk-back
// detecting a reorg. This is an operational anomaly, not a recoverable
// state — a hardened client should never produce it.
var ErrAnomalousShrink = errors.New("tracker: chain height below local height without a detected reorg")

// ReorgInfo describes the outcome of a walk-back that found the local tip
// no longer canonical.
type ReorgInfo struct {
	HeightWhenFork int64
	ForkRoot       chainhash.Hash
	// DiscardedBlocks lists orphaned hashes newest-first, matching the
	// order the walk-back visited them in.
	DiscardedBlocks []chainhash.Hash
}

// Tracker owns the local view of the canonical chain and drives the bag/bid
// lifecycle. All exported methods are safe to call from one goroutine at a
// time only — single-writer is the supported topology (no internal
// concurrency beyond serializing with its own mutex, which exists to make
// that contract explicit rather than to support concurrent callers).
type Tracker struct {
	mu sync.Mutex

	client chainclient.ChainClient
	store  store.BidStore
	logger zerolog.Logger

	currentHeight int64
	currentTip    chainhash.Hash
}

// New creates a Tracker rooted at baseHeight. If baseHeight is negative,
// the tracker roots itself at the client's current tip.
func New(ctx context.Context, client chainclient.ChainClient, bidStore store.BidStore, baseHeight int64) (*Tracker, error) {
	t := &Tracker{client: client, store: bidStore, logger: blog.WithComponent("tracker")}

	if baseHeight < 0 {
		info, err := client.ChainInfo(ctx)
		if err != nil {
			return nil, err
		}
		baseHeight = info.Blocks
	}

	hash, err := client.BlockHash(ctx, baseHeight)
	if err != nil {
		return nil, err
	}
	t.currentHeight = baseHeight
	t.currentTip = hash
	return t, nil
}

// CurrentHeight returns the height of the last block the tracker has
// processed.
func (t *Tracker) CurrentHeight() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentHeight
}

// CurrentTip returns the hash of the last block the tracker has processed.
func (t *Tracker) CurrentTip() chainhash.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentTip
}

// AddBag registers bag as a known operator intent, not yet witnessed
// on-chain.
func (t *Tracker) AddBag(ctx context.Context, bag bagtypes.BagID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.InsertUnconfirmed(ctx, bag)
}

// AddBid validates a BidProof against the chain and, if it checks out,
// promotes the named bag to Confirmed in storage. The confirmed amount is
// read from the recognized output itself, not supplied by the caller.
func (t *Tracker) AddBid(ctx context.Context, proof bagtypes.BidProof) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	txid := proof.Tx.Outpoint.TxID

	blk, err := t.client.Block(ctx, proof.Block)
	if err != nil {
		if errors.Is(err, chainclient.ErrBlockNotFound) {
			return &TrackerError{Kind: TxDoesNotExist, Block: proof.Block, TxID: txid}
		}
		return err
	}

	var matchedTx *wire.MsgTx
	for _, wtx := range blk.Transactions {
		if wtx.TxHash() == txid {
			matchedTx = wtx
			break
		}
	}
	if matchedTx == nil {
		return &TrackerError{Kind: TxDoesNotExist, Block: proof.Block, TxID: txid}
	}

	header, err := t.client.BlockHeader(ctx, proof.Block)
	if err != nil {
		return err
	}

	pos := proof.Tx.Outpoint.Index
	if int(pos) >= len(matchedTx.TxOut) {
		return &TrackerError{Kind: WrongOutputFormat, Block: proof.Block, TxID: txid}
	}
	out := matchedTx.TxOut[pos]

	bag, amt, ok := mintscript.Recognize(out.PkScript, uint64(out.Value))
	if !ok {
		return &TrackerError{Kind: WrongOutputFormat, Block: proof.Block, TxID: txid}
	}
	if bag != proof.Tx.BagID {
		return &TrackerError{Kind: WrongBagId, Block: proof.Block, TxID: txid, Expected: proof.Tx.BagID, Actual: bag}
	}

	entry := bagtypes.BidEntry{Amount: amt, Proof: proof}
	if err := t.store.UpdateBid(ctx, bag, entry); err != nil {
		return err
	}

	t.logger.Info().
		Str("bag_id", bag.String()).
		Str("block", proof.Block.String()).
		Uint64("amount", amt).
		Msg("Bid confirmed")

	if header.Height > t.currentHeight {
		t.currentHeight = header.Height
		t.currentTip = proof.Block
	}
	return nil
}

// CheckReorgs walks back from the current tip to detect whether it is
// still canonical. If not, it demotes confirmations on every orphaned
// block and re-scans the new canonical suffix forward. Returns nil if no
// reorg occurred.
func (t *Tracker) CheckReorgs(ctx context.Context) (*ReorgInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := t.walkBack(ctx)
	if err != nil {
		return nil, err
	}

	if info == nil {
		return nil, t.advance(ctx, t.currentHeight)
	}

	for _, h := range info.DiscardedBlocks {
		if err := t.store.RemoveConfirmationWithBlockHash(ctx, h); err != nil && !errors.Is(err, store.ErrBagDoesNotExist) {
			return nil, err
		}
		t.logger.Debug().Str("block", h.String()).Msg("Demoted confirmations on orphaned block")
	}

	if len(info.DiscardedBlocks) == 0 {
		return nil, t.advance(ctx, t.currentHeight)
	}

	t.logger.Info().
		Int64("fork_height", info.HeightWhenFork).
		Str("fork_root", info.ForkRoot.String()).
		Int("discarded", len(info.DiscardedBlocks)).
		Msg("Reorg detected, rewound to fork root")

	t.currentHeight = info.HeightWhenFork
	t.currentTip = info.ForkRoot

	if err := t.advance(ctx, t.currentHeight); err != nil {
		return info, err
	}
	return info, nil
}

// walkBack follows previous_block_hash from the current tip until it
// finds a block still on the canonical chain (confirmations != -1),
// returning nil if the tip itself is still canonical.
func (t *Tracker) walkBack(ctx context.Context) (*ReorgInfo, error) {
	hash := t.currentTip
	var discarded []chainhash.Hash

	for depth := 0; ; depth++ {
		if depth > MaxWalkBackDepth {
			return nil, &chainclient.ClientError{Op: "walk-back", Err: fmt.Errorf("tracker: walk-back exceeded %d blocks without finding a canonical ancestor", MaxWalkBackDepth)}
		}

		header, err := t.client.BlockHeader(ctx, hash)
		if err != nil {
			return nil, err
		}

		if !header.IsOrphan() {
			if depth == 0 {
				return nil, nil
			}
			return &ReorgInfo{
				HeightWhenFork:  header.Height,
				ForkRoot:        hash,
				DiscardedBlocks: discarded,
			}, nil
		}

		discarded = append(discarded, hash)
		if header.PreviousBlockHash == nil {
			return nil, &chainclient.ClientError{Op: "walk-back", Err: fmt.Errorf("tracker: walk-back reached a block with no parent before finding a canonical ancestor")}
		}
		hash = *header.PreviousBlockHash
	}
}

// advance scans forward from fromHeight+1 to the chain's reported tip,
// processing each block's mint-shaped outputs and bumping current_height
// as it goes. Partial progress is preserved on failure: current_height
// always reflects the last successfully processed block.
func (t *Tracker) advance(ctx context.Context, fromHeight int64) error {
	info, err := t.client.ChainInfo(ctx)
	if err != nil {
		return err
	}

	if info.Blocks < fromHeight {
		return ErrAnomalousShrink
	}

	for h := fromHeight + 1; h <= info.Blocks; h++ {
		hash, err := t.client.BlockHash(ctx, h)
		if err != nil {
			return err
		}
		if err := t.scanBlock(ctx, hash); err != nil {
			return err
		}
		t.currentHeight = h
		t.currentTip = hash
	}
	return nil
}

// scanBlock fetches the block and, for each output the mint codec
// recognizes, promotes the bag to Confirmed if it is already known to
// storage. A transaction contributes at most one matched output: the first
// (lowest out_pos) mint-shaped output whose bag is registered; mint-shaped
// outputs carrying unknown bags do not consume the match.
func (t *Tracker) scanBlock(ctx context.Context, hash chainhash.Hash) error {
	blk, err := t.client.Block(ctx, hash)
	if err != nil {
		return err
	}

	for _, wtx := range blk.Transactions {
		txid := wtx.TxHash()
		for pos, out := range wtx.TxOut {
			bag, amount, ok := mintscript.Recognize(out.PkScript, uint64(out.Value))
			if !ok {
				continue
			}

			exists, err := t.store.IsBagExists(ctx, bag)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}

			entry := bagtypes.BidEntry{
				Amount: amount,
				Proof: bagtypes.BidProof{
					Block: hash,
					Tx: bagtypes.BidTx{
						Outpoint: bagtypes.Outpoint{TxID: txid, Index: uint32(pos)},
						BagID:    bag,
					},
				},
			}
			if err := t.store.UpdateBid(ctx, bag, entry); err != nil && !errors.Is(err, store.ErrBagDoesNotExist) {
				return err
			}
			t.logger.Debug().
				Str("bag_id", bag.String()).
				Str("block", hash.String()).
				Uint64("amount", amount).
				Msg("Bag confirmed by forward scan")
			break
		}
	}
	return nil
}
