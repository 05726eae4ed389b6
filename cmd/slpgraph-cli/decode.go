package main

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/toposort"
	"github.com/Klingon-tech/slpgraph/internal/validator"
	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// decodedOp is the printable form of a token operation.
type decodedOp struct {
	Kind          string         `json:"kind"`
	Reason        string         `json:"reason,omitempty"`
	TokenType     uint8          `json:"tokenType,omitempty"`
	TokenID       *types.TokenID `json:"tokenId,omitempty"`
	Ticker        string         `json:"ticker,omitempty"`
	Name          string         `json:"name,omitempty"`
	DocumentURI   string         `json:"documentUri,omitempty"`
	DocumentHash  string         `json:"documentHash,omitempty"`
	Decimals      *uint8         `json:"decimals,omitempty"`
	MintBatonVout *uint32        `json:"mintBatonVout,omitempty"`
	Qty           *uint64        `json:"qty,omitempty"`
	Amounts       []uint64       `json:"amounts,omitempty"`
}

// decodedTx is the printable form of a transaction.
type decodedTx struct {
	TxID    types.Hash       `json:"txid"`
	Version int32            `json:"version"`
	Inputs  []types.Outpoint `json:"inputs"`
	Outputs []tx.Output      `json:"outputs"`
	Op      decodedOp        `json:"slp"`
}

func describeOp(op slp.Op) decodedOp {
	d := decodedOp{Kind: op.Kind().String(), TokenType: uint8(op.TokenType())}
	switch o := op.(type) {
	case *slp.Invalid:
		d.Reason = o.Reason
	case *slp.Genesis:
		d.Ticker = o.Ticker
		d.Name = o.Name
		d.DocumentURI = o.DocumentURI
		if len(o.DocumentHash) > 0 {
			d.DocumentHash = hex.EncodeToString(o.DocumentHash)
		}
		d.Decimals = &o.Decimals
		d.Qty = &o.Qty
		if o.HasMintBaton {
			d.MintBatonVout = &o.MintBatonVout
		}
		if !o.TokenID.IsZero() {
			d.TokenID = &o.TokenID
		}
	case *slp.Mint:
		d.TokenID = &o.TokenID
		d.Qty = &o.Qty
		if o.HasMintBaton {
			d.MintBatonVout = &o.MintBatonVout
		}
	case *slp.Send:
		d.TokenID = &o.TokenID
		d.Amounts = o.Amounts
	}
	return d
}

// decodeTx hydrates a hex-encoded transaction.
func decodeTx(s string) (*decodedTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	t, n, err := tx.Hydrate(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}
	if n != len(raw) {
		return nil, fmt.Errorf("%d trailing bytes after transaction", len(raw)-n)
	}
	return &decodedTx{
		TxID:    t.TxID,
		Version: t.Version,
		Inputs:  t.Inputs,
		Outputs: t.Outputs,
		Op:      describeOp(t.Op),
	}, nil
}

// decodeScript decodes a hex-encoded OP_RETURN script.
func decodeScript(s string) (decodedOp, error) {
	script, err := types.HexToScript(s)
	if err != nil {
		return decodedOp{}, fmt.Errorf("invalid script: %w", err)
	}
	return describeOp(slp.Decode(script)), nil
}

// verifyGraph validates txid using only the transactions returned by a
// graph search.
func verifyGraph(txid types.Hash, raws [][]byte) (bool, error) {
	txs := make([]*tx.Transaction, 0, len(raws))
	for i, raw := range raws {
		t, _, err := tx.Hydrate(raw, 0)
		if err != nil {
			return false, fmt.Errorf("tx %d: %w", i, err)
		}
		txs = append(txs, t)
	}
	v := validator.New()
	for _, t := range toposort.Sort(txs) {
		v.Add(t)
	}
	if !v.Has(txid) {
		return false, fmt.Errorf("%s not in graph", txid)
	}
	return v.Validate(txid)
}
