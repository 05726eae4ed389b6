package types

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// String returns "txid:index" with the txid in display form.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// Less orders outpoints by wire-order txid bytes, then index.
func (o Outpoint) Less(other Outpoint) bool {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c < 0
	}
	return o.Index < other.Index
}

// ParseOutpoint parses the "txid:index" form produced by String.
func ParseOutpoint(s string) (Outpoint, error) {
	txidStr, idxStr, ok := strings.Cut(s, ":")
	if !ok {
		return Outpoint{}, fmt.Errorf("outpoint %q: missing ':'", s)
	}
	txid, err := HexToHash(txidStr)
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint txid: %w", err)
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("outpoint index: %w", err)
	}
	return Outpoint{TxID: txid, Index: uint32(idx)}, nil
}
