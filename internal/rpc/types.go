package rpc

import (
	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// ── Param types ─────────────────────────────────────────────────────────

// TxIDParam is used by graph_search and slp_validate.
type TxIDParam struct {
	TxID string `json:"txid"`
}

// OutpointsParam is used by utxo_getByOutpoints. Each entry is "txid:vout".
type OutpointsParam struct {
	Outpoints []string `json:"outpoints"`
}

// ScriptParam is used by utxo_getByScript and utxo_getBalance.
type ScriptParam struct {
	Script string `json:"script"` // hex output script
	Limit  int    `json:"limit,omitempty"`
}

// TokenParam is used by token_get and token_getUtxos.
type TokenParam struct {
	TokenID string `json:"tokenId"`
}

// ── Result types ────────────────────────────────────────────────────────

// GraphSearchResult lists the raw transactions in a token provenance.
type GraphSearchResult struct {
	TxID string   `json:"txid"`
	Txs  []string `json:"txs"` // hex-encoded raw transactions
}

// UtxoResult is one output in a UTXO query. Nil entries in a
// utxo_getByOutpoints result mark outpoints that are not unspent.
type UtxoResult struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Height uint32 `json:"height"`
	Value  uint64 `json:"value"`
	Script string `json:"script"`
}

// NewUtxoResult converts an indexed output.
func NewUtxoResult(o *tx.Output) *UtxoResult {
	if o == nil {
		return nil
	}
	return &UtxoResult{
		TxID:   o.TxID.String(),
		Vout:   o.Index,
		Height: o.Height,
		Value:  o.Value,
		Script: o.Script.Hex(),
	}
}

// BalanceResult is returned by utxo_getBalance.
type BalanceResult struct {
	Script  string `json:"script"`
	Balance uint64 `json:"balance"`
}

// ValidateResult is returned by slp_validate.
type ValidateResult struct {
	TxID  string `json:"txid"`
	Valid bool   `json:"valid"`
}

// TokenUtxosResult is returned by token_getUtxos.
type TokenUtxosResult struct {
	TokenID string            `json:"tokenId"`
	Utxos   []slpdb.TokenUtxo `json:"utxos"`
}
