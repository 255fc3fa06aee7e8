package chainclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// RPCClient is a ChainClient backed by a Bitcoin Core-compatible JSON-RPC
// node. It speaks the conventional method names (getblockchaininfo,
// getblockhash, getblockheader, getblock, fundrawtransaction,
// signrawtransactionwithwallet, sendrawtransaction).
type RPCClient struct {
	rpc *jsonRPCTransport
}

// NewRPCClient creates an RPCClient targeting the given node endpoint.
func NewRPCClient(endpoint, user, pass string) *RPCClient {
	return NewRPCClientWithTimeout(endpoint, user, pass, 30*time.Second)
}

// NewRPCClientWithTimeout is NewRPCClient with an explicit HTTP timeout.
func NewRPCClientWithTimeout(endpoint, user, pass string, timeout time.Duration) *RPCClient {
	return &RPCClient{rpc: newJSONRPCTransport(endpoint, user, pass, timeout)}
}

var _ ChainClient = (*RPCClient)(nil)

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClientError{Op: op, Err: err}
}

// rpcBlockNotFound is Bitcoin Core's RPC_INVALID_ADDRESS_OR_KEY code, the
// code getblock and getblockheader answer with for an unknown block hash.
const rpcBlockNotFound = -5

func classifyNotFound(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcBlockNotFound {
		return ErrBlockNotFound
	}
	return err
}

type chainInfoResult struct {
	Blocks        int64  `json:"blocks"`
	BestBlockHash string `json:"bestblockhash"`
}

// ChainInfo returns {blocks, best_block_hash}.
func (c *RPCClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var res chainInfoResult
	if err := c.rpc.call(ctx, "getblockchaininfo", nil, &res); err != nil {
		return nil, wrapErr("getblockchaininfo", err)
	}
	hash, err := chainhash.NewHashFromStr(res.BestBlockHash)
	if err != nil {
		return nil, wrapErr("getblockchaininfo", fmt.Errorf("parse bestblockhash: %w", err))
	}
	return &ChainInfo{Blocks: res.Blocks, BestBlockHash: *hash}, nil
}

// BlockHash returns the hash at height on the current canonical chain.
func (c *RPCClient) BlockHash(ctx context.Context, height int64) (chainhash.Hash, error) {
	var hashStr string
	if err := c.rpc.call(ctx, "getblockhash", []interface{}{height}, &hashStr); err != nil {
		return chainhash.Hash{}, wrapErr("getblockhash", err)
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return chainhash.Hash{}, wrapErr("getblockhash", fmt.Errorf("parse hash: %w", err))
	}
	return *hash, nil
}

type blockHeaderResult struct {
	Height            int64  `json:"height"`
	Confirmations     int64  `json:"confirmations"`
	PreviousBlockHash string `json:"previousblockhash"`
}

// BlockHeader returns {height, confirmations, previous_block_hash?}.
// confirmations == -1 means hash is not on the main chain.
func (c *RPCClient) BlockHeader(ctx context.Context, hash chainhash.Hash) (*BlockHeaderInfo, error) {
	var res blockHeaderResult
	params := []interface{}{hash.String(), true}
	if err := c.rpc.call(ctx, "getblockheader", params, &res); err != nil {
		return nil, wrapErr("getblockheader", classifyNotFound(err))
	}
	info := &BlockHeaderInfo{Height: res.Height, Confirmations: res.Confirmations}
	if res.PreviousBlockHash != "" {
		prev, err := chainhash.NewHashFromStr(res.PreviousBlockHash)
		if err != nil {
			return nil, wrapErr("getblockheader", fmt.Errorf("parse previousblockhash: %w", err))
		}
		info.PreviousBlockHash = prev
	}
	return info, nil
}

// Block returns the full block, fetched as raw consensus-serialized hex
// (verbosity 0) and decoded with the wire package rather than trusting any
// JSON transaction breakdown the node might also offer.
func (c *RPCClient) Block(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	var rawHex string
	params := []interface{}{hash.String(), 0}
	if err := c.rpc.call(ctx, "getblock", params, &rawHex); err != nil {
		return nil, wrapErr("getblock", classifyNotFound(err))
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, wrapErr("getblock", fmt.Errorf("decode hex: %w", err))
	}
	var blk wire.MsgBlock
	if err := blk.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, wrapErr("getblock", fmt.Errorf("deserialize block: %w", err))
	}
	return &blk, nil
}

type fundRawTransactionResult struct {
	Hex string `json:"hex"`
}

// FundTx asks the node's wallet to add inputs and a change output.
func (c *RPCClient) FundTx(ctx context.Context, rawTx []byte) ([]byte, error) {
	var res fundRawTransactionResult
	params := []interface{}{hex.EncodeToString(rawTx)}
	if err := c.rpc.call(ctx, "fundrawtransaction", params, &res); err != nil {
		return nil, wrapErr("fundrawtransaction", err)
	}
	funded, err := hex.DecodeString(res.Hex)
	if err != nil {
		return nil, wrapErr("fundrawtransaction", fmt.Errorf("decode hex: %w", err))
	}
	return funded, nil
}

type signRawTransactionResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

// SignTx asks the node's wallet to sign a funded raw transaction.
func (c *RPCClient) SignTx(ctx context.Context, rawTx []byte) ([]byte, error) {
	var res signRawTransactionResult
	params := []interface{}{hex.EncodeToString(rawTx)}
	if err := c.rpc.call(ctx, "signrawtransactionwithwallet", params, &res); err != nil {
		return nil, wrapErr("signrawtransactionwithwallet", err)
	}
	if !res.Complete {
		return nil, wrapErr("signrawtransactionwithwallet", fmt.Errorf("wallet returned an incomplete signature"))
	}
	signed, err := hex.DecodeString(res.Hex)
	if err != nil {
		return nil, wrapErr("signrawtransactionwithwallet", fmt.Errorf("decode hex: %w", err))
	}
	return signed, nil
}

// SendTx broadcasts a signed raw transaction and returns its txid.
func (c *RPCClient) SendTx(ctx context.Context, rawTx []byte) (chainhash.Hash, error) {
	var txidStr string
	params := []interface{}{hex.EncodeToString(rawTx)}
	if err := c.rpc.call(ctx, "sendrawtransaction", params, &txidStr); err != nil {
		return chainhash.Hash{}, wrapErr("sendrawtransaction", err)
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return chainhash.Hash{}, wrapErr("sendrawtransaction", fmt.Errorf("parse txid: %w", err))
	}
	return *txid, nil
}
