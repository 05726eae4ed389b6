// Package nodeclient fetches blocks from a Bitcoin Cash full node over its
// JSON-RPC interface.
package nodeclient

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Config holds the node connection settings.
type Config struct {
	Host string // host:port
	User string
	Pass string
}

// Client is a node RPC client in HTTP POST mode.
type Client struct {
	rpc *rpcclient.Client
}

// New creates a client. No connection is made until the first call.
func New(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	c, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}
	return &Client{rpc: c}, nil
}

// BlockCount returns the height of the node's best chain.
func (c *Client) BlockCount() (uint32, error) {
	n, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("getblockcount: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("getblockcount: negative height %d", n)
	}
	return uint32(n), nil
}

// BlockHash returns the hash of the block at height on the node's best chain.
func (c *Client) BlockHash(height uint32) (types.Hash, error) {
	h, err := c.rpc.GetBlockHash(int64(height))
	if err != nil {
		return types.Hash{}, fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return types.Hash(*h), nil
}

// RawBlock returns the serialized block at height.
func (c *Client) RawBlock(height uint32) ([]byte, error) {
	hash, err := c.BlockHash(height)
	if err != nil {
		return nil, err
	}
	return c.RawBlockByHash(hash)
}

// RawBlockByHash returns the serialized block with the given hash.
func (c *Client) RawBlockByHash(hash types.Hash) ([]byte, error) {
	h := chainhash.Hash(hash)
	params, err := getBlockParams(h.String())
	if err != nil {
		return nil, err
	}
	res, err := c.rpc.RawRequest("getblock", params)
	if err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}
	return decodeHexResult(res)
}

// Shutdown stops the client.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// getBlockParams builds the parameters for "getblock <hash> 0", which asks
// the node for the serialized block instead of its JSON form.
func getBlockParams(hash string) ([]json.RawMessage, error) {
	h, err := json.Marshal(hash)
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{h, json.RawMessage("0")}, nil
}

func decodeHexResult(res json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(res, &s); err != nil {
		return nil, fmt.Errorf("getblock result: %w", err)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("getblock result: %w", err)
	}
	return b, nil
}
