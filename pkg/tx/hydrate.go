package tx

import (
	"fmt"
	"math"

	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

// Sanity limits applied while hydrating.
const (
	MaxTxSize     = 1_000_000
	MaxInputs     = MaxTxSize / 64
	MaxOutputs    = MaxTxSize / 9
	MaxScriptSize = 10_000
)

// ErrMalformed is returned for structurally invalid transactions.
var ErrMalformed = wire.ErrMalformed

// Hydrate parses one transaction from the start of data and returns it with
// the number of bytes consumed.
func Hydrate(data []byte, height uint32) (*Transaction, int, error) {
	r := wire.NewReader(data)
	t, err := HydrateFrom(r, height)
	if err != nil {
		return nil, 0, err
	}
	return t, r.Offset(), nil
}

// HydrateFrom parses one transaction at the reader's cursor. On failure the
// cursor position is unspecified and no transaction is returned.
func HydrateFrom(r *wire.Reader, height uint32) (*Transaction, error) {
	start := r.Offset()
	t := &Transaction{Height: height}

	var err error
	if t.Version, err = r.ReadInt32(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	inCount, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("input count: %w", err)
	}
	if inCount > MaxInputs {
		return nil, fmt.Errorf("input count %d exceeds %d: %w", inCount, MaxInputs, ErrMalformed)
	}
	t.Inputs = make([]types.Outpoint, 0, capHint(inCount, r.Remaining(), 41))
	for i := uint64(0); i < inCount; i++ {
		prev, err := r.ReadHash()
		if err != nil {
			return nil, fmt.Errorf("input %d prev txid: %w", i, err)
		}
		idx, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("input %d prev index: %w", i, err)
		}
		if err := skipScript(r); err != nil {
			return nil, fmt.Errorf("input %d script: %w", i, err)
		}
		if _, err := r.ReadUint32(); err != nil {
			return nil, fmt.Errorf("input %d sequence: %w", i, err)
		}
		t.Inputs = append(t.Inputs, types.Outpoint{TxID: prev, Index: idx})
	}

	outCount, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("output count: %w", err)
	}
	if outCount > MaxOutputs {
		return nil, fmt.Errorf("output count %d exceeds %d: %w", outCount, MaxOutputs, ErrMalformed)
	}
	t.Outputs = make([]Output, 0, capHint(outCount, r.Remaining(), 9))
	for i := uint64(0); i < outCount; i++ {
		raw, err := r.ReadInt64()
		if err != nil {
			return nil, fmt.Errorf("output %d value: %w", i, err)
		}
		script, err := r.ReadVarBytes(MaxScriptSize)
		if err != nil {
			return nil, fmt.Errorf("output %d script: %w", i, err)
		}
		t.Outputs = append(t.Outputs, Output{
			Index:  uint32(i),
			Height: height,
			Value:  absValue(raw),
			Script: append([]byte(nil), script...),
		})
	}

	if t.LockTime, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("lock time: %w", err)
	}

	end := r.Offset()
	if end-start > MaxTxSize {
		return nil, fmt.Errorf("size %d exceeds %d: %w", end-start, MaxTxSize, ErrMalformed)
	}
	t.Raw = append([]byte(nil), r.Slice(start, end)...)
	t.TxID = types.DoubleSHA256(t.Raw)
	for i := range t.Outputs {
		t.Outputs[i].TxID = t.TxID
	}

	t.Op = &slp.Invalid{Reason: "no outputs"}
	if len(t.Outputs) > 0 {
		t.Op = slp.Decode(t.Outputs[0].Script)
		if g, ok := t.Op.(*slp.Genesis); ok {
			g.TokenID = types.TokenID(t.TxID)
		}
	}
	return t, nil
}

func skipScript(r *wire.Reader) error {
	n, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	if n > MaxScriptSize {
		return fmt.Errorf("length %d exceeds %d: %w", n, MaxScriptSize, ErrMalformed)
	}
	return r.Skip(int(n))
}

// capHint bounds a preallocation by what the remaining bytes could hold.
func capHint(count uint64, remaining, minSize int) int {
	if most := uint64(remaining / minSize); count > most {
		return int(most)
	}
	return int(count)
}

// absValue drops the sign of a serialized output value.
func absValue(v int64) uint64 {
	if v >= 0 {
		return uint64(v)
	}
	if v == math.MinInt64 {
		return 1 << 63
	}
	return uint64(-v)
}
