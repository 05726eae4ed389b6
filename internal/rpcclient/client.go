// Package rpcclient provides a JSON-RPC 2.0 client for slpgraph indexers.
package rpcclient

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/slpgraph/internal/bch"
	"github.com/Klingon-tech/slpgraph/internal/rpc"
	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a server "not found" error.
func IsNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeNotFound
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// Info returns the indexer's chain summary.
func (c *Client) Info() (*bch.Info, error) {
	var info bch.Info
	if err := c.Call("chain_getInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GraphSearch returns the raw transactions that prove txid's token history.
func (c *Client) GraphSearch(txid types.Hash) ([][]byte, error) {
	var res rpc.GraphSearchResult
	if err := c.Call("graph_search", rpc.TxIDParam{TxID: txid.String()}, &res); err != nil {
		return nil, err
	}
	txs := make([][]byte, 0, len(res.Txs))
	for i, h := range res.Txs {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("decode tx %d: %w", i, err)
		}
		txs = append(txs, raw)
	}
	return txs, nil
}

// UtxosByOutpoints looks up outpoints. The result is parallel to ops with
// nil entries for outpoints that are not unspent.
func (c *Client) UtxosByOutpoints(ops []types.Outpoint) ([]*rpc.UtxoResult, error) {
	params := rpc.OutpointsParam{Outpoints: make([]string, len(ops))}
	for i, op := range ops {
		params.Outpoints[i] = op.String()
	}
	var res []*rpc.UtxoResult
	if err := c.Call("utxo_getByOutpoints", params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// UtxosByScript returns up to limit unspent outputs paying script. A zero
// limit uses the server default.
func (c *Client) UtxosByScript(script types.Script, limit int) ([]*rpc.UtxoResult, error) {
	var res []*rpc.UtxoResult
	if err := c.Call("utxo_getByScript", rpc.ScriptParam{Script: script.Hex(), Limit: limit}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Balance returns the satoshi balance of script.
func (c *Client) Balance(script types.Script) (uint64, error) {
	var res rpc.BalanceResult
	if err := c.Call("utxo_getBalance", rpc.ScriptParam{Script: script.Hex()}, &res); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

// Validate reports whether txid is a valid token transaction.
func (c *Client) Validate(txid types.Hash) (bool, error) {
	var res rpc.ValidateResult
	if err := c.Call("slp_validate", rpc.TxIDParam{TxID: txid.String()}, &res); err != nil {
		return false, err
	}
	return res.Valid, nil
}

// Token returns a token's metadata.
func (c *Client) Token(id types.TokenID) (*slpdb.Metadata, error) {
	var meta slpdb.Metadata
	if err := c.Call("token_get", rpc.TokenParam{TokenID: id.String()}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// TokenUtxos returns a token's unspent outputs.
func (c *Client) TokenUtxos(id types.TokenID) ([]slpdb.TokenUtxo, error) {
	var res rpc.TokenUtxosResult
	if err := c.Call("token_getUtxos", rpc.TokenParam{TokenID: id.String()}, &res); err != nil {
		return nil, err
	}
	return res.Utxos, nil
}
