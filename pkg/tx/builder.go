package tx

import (
	"fmt"

	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

// Builder assembles a serialized transaction incrementally.
type Builder struct {
	version  int32
	lockTime uint32
	inputs   []builderInput
	outputs  []builderOutput
}

type builderInput struct {
	prevOut   types.Outpoint
	sigScript []byte
	sequence  uint32
}

type builderOutput struct {
	value  uint64
	script types.Script
}

// NewBuilder creates a version 2 transaction builder.
func NewBuilder() *Builder {
	return &Builder{version: 2}
}

// SetVersion sets the transaction version.
func (b *Builder) SetVersion(v int32) *Builder {
	b.version = v
	return b
}

// AddInput adds an input spending prevOut with an empty unlocking script.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	return b.AddInputWithScript(prevOut, nil)
}

// AddInputWithScript adds an input with an explicit unlocking script.
func (b *Builder) AddInputWithScript(prevOut types.Outpoint, sigScript []byte) *Builder {
	b.inputs = append(b.inputs, builderInput{
		prevOut:   prevOut,
		sigScript: sigScript,
		sequence:  0xffffffff,
	})
	return b
}

// AddOutput adds an output with a value and script.
func (b *Builder) AddOutput(value uint64, script types.Script) *Builder {
	b.outputs = append(b.outputs, builderOutput{value: value, script: script})
	return b
}

// SetLockTime sets the transaction lock time.
func (b *Builder) SetLockTime(lockTime uint32) *Builder {
	b.lockTime = lockTime
	return b
}

// Bytes returns the wire serialization.
func (b *Builder) Bytes() []byte {
	buf := wire.AppendInt32(nil, b.version)
	buf = wire.AppendVarInt(buf, uint64(len(b.inputs)))
	for _, in := range b.inputs {
		buf = wire.AppendHash(buf, in.prevOut.TxID)
		buf = wire.AppendUint32(buf, in.prevOut.Index)
		buf = wire.AppendVarBytes(buf, in.sigScript)
		buf = wire.AppendUint32(buf, in.sequence)
	}
	buf = wire.AppendVarInt(buf, uint64(len(b.outputs)))
	for _, out := range b.outputs {
		buf = wire.AppendUint64(buf, out.value)
		buf = wire.AppendVarBytes(buf, out.script)
	}
	return wire.AppendUint32(buf, b.lockTime)
}

// Build serializes and hydrates the transaction.
func (b *Builder) Build(height uint32) (*Transaction, error) {
	t, _, err := Hydrate(b.Bytes(), height)
	if err != nil {
		return nil, fmt.Errorf("hydrate built tx: %w", err)
	}
	return t, nil
}
