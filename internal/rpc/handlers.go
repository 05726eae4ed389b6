package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/internal/txgraph"
	"github.com/Klingon-tech/slpgraph/internal/validator"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Query bounds.
const (
	MaxOutpoints     = 1000
	DefaultUtxoLimit = 100
	MaxUtxoLimit     = 10000
)

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(_ *Request) (interface{}, *Error) {
	return s.chain.Info(), nil
}

// ── Graph endpoints ─────────────────────────────────────────────────────

func (s *Server) handleGraphSearch(req *Request) (interface{}, *Error) {
	var params TxIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	txid, rpcErr := parseTxID(params.TxID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.graphSearch(txid)
}

func (s *Server) graphSearch(txid types.Hash) (*GraphSearchResult, *Error) {
	raws, err := s.chain.GraphSearch(txid)
	if err != nil {
		return nil, graphSearchError(txid, err)
	}
	res := &GraphSearchResult{TxID: txid.String(), Txs: make([]string, len(raws))}
	for i, raw := range raws {
		res.Txs[i] = hex.EncodeToString(raw)
	}
	return res, nil
}

// graphSearchError maps a graph lookup failure to an RPC error. A txid
// indexed to a token whose graph lacks it is an internal inconsistency.
func graphSearchError(txid types.Hash, err error) *Error {
	if errors.Is(err, txgraph.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("txid not in any token graph: %s", txid)}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// ── UTXO endpoints ──────────────────────────────────────────────────────

func (s *Server) handleUTXOGetByOutpoints(req *Request) (interface{}, *Error) {
	var params OutpointsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if len(params.Outpoints) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "outpoints is required"}
	}
	if len(params.Outpoints) > MaxOutpoints {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("at most %d outpoints per call", MaxOutpoints)}
	}
	ops := make([]types.Outpoint, len(params.Outpoints))
	for i, str := range params.Outpoints {
		op, err := types.ParseOutpoint(str)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid outpoint %q: %v", str, err)}
		}
		ops[i] = op
	}
	return s.utxosByOutpoints(ops), nil
}

func (s *Server) utxosByOutpoints(ops []types.Outpoint) []*UtxoResult {
	outs := s.chain.UtxosByOutpoints(ops)
	res := make([]*UtxoResult, len(outs))
	for i, o := range outs {
		res[i] = NewUtxoResult(o)
	}
	return res
}

func (s *Server) handleUTXOGetByScript(req *Request) (interface{}, *Error) {
	var params ScriptParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	script, rpcErr := parseScript(params.Script)
	if rpcErr != nil {
		return nil, rpcErr
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultUtxoLimit
	}
	if limit > MaxUtxoLimit {
		limit = MaxUtxoLimit
	}
	return s.utxosByScript(script, limit), nil
}

func (s *Server) utxosByScript(script types.Script, limit int) []*UtxoResult {
	outs := s.chain.UtxosByScript(script, limit)
	res := make([]*UtxoResult, len(outs))
	for i := range outs {
		res[i] = NewUtxoResult(&outs[i])
	}
	return res
}

func (s *Server) handleUTXOGetBalance(req *Request) (interface{}, *Error) {
	var params ScriptParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	script, rpcErr := parseScript(params.Script)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BalanceResult{Script: script.Hex(), Balance: s.chain.Balance(script)}, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleSLPValidate(req *Request) (interface{}, *Error) {
	var params TxIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	txid, rpcErr := parseTxID(params.TxID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.validate(txid)
}

func (s *Server) validate(txid types.Hash) (*ValidateResult, *Error) {
	ok, err := s.chain.Validate(txid)
	if err != nil {
		if errors.Is(err, validator.ErrUnknownTx) {
			return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("unknown transaction: %s", txid)}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &ValidateResult{TxID: txid.String(), Valid: ok}, nil
}

func (s *Server) handleTokenGet(req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseTokenID(params.TokenID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	meta, ok := s.chain.Token(id)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("token not found: %s", id)}
	}
	return meta, nil
}

func (s *Server) handleTokenGetUtxos(req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseTokenID(params.TokenID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	utxos, ok := s.chain.TokenUtxos(id)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("token not found: %s", id)}
	}
	if utxos == nil {
		utxos = []slpdb.TokenUtxo{}
	}
	return &TokenUtxosResult{TokenID: id.String(), Utxos: utxos}, nil
}

// ── Param parsing ───────────────────────────────────────────────────────

func parseTxID(s string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "txid is required"}
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "invalid txid: must be 32-byte hex"}
	}
	return h, nil
}

func parseTokenID(s string) (types.TokenID, *Error) {
	if s == "" {
		return types.TokenID{}, &Error{Code: CodeInvalidParams, Message: "tokenId is required"}
	}
	id, err := types.HexToTokenID(s)
	if err != nil {
		return types.TokenID{}, &Error{Code: CodeInvalidParams, Message: "invalid tokenId: must be 32-byte hex"}
	}
	return id, nil
}

func parseScript(s string) (types.Script, *Error) {
	if s == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "script is required"}
	}
	script, err := types.HexToScript(s)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid script: %v", err)}
	}
	return script, nil
}
