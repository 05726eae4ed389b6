// Package slp decodes and encodes SLP token operations carried in OP_RETURN
// output scripts.
package slp

import (
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Kind tags the variant held by an Op.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindGenesis
	KindMint
	KindSend
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGenesis:
		return "GENESIS"
	case KindMint:
		return "MINT"
	case KindSend:
		return "SEND"
	default:
		return "INVALID"
	}
}

// Op is a decoded token operation. The set of implementations is closed:
// *Invalid, *Genesis, *Mint and *Send.
type Op interface {
	Kind() Kind
	TokenType() types.TokenType
	isOp()
}

// Invalid means output 0 was not a well-formed token operation.
type Invalid struct {
	Reason string
}

// Genesis creates a new token. TokenID is the creating transaction's txid and
// is filled in by the transaction hydrator.
type Genesis struct {
	Type          types.TokenType
	TokenID       types.TokenID
	Ticker        string
	Name          string
	DocumentURI   string
	DocumentHash  []byte
	Decimals      uint8
	HasMintBaton  bool
	MintBatonVout uint32
	Qty           uint64
}

// Mint issues additional supply by spending the token's mint baton.
type Mint struct {
	Type          types.TokenType
	TokenID       types.TokenID
	HasMintBaton  bool
	MintBatonVout uint32
	Qty           uint64
}

// Send moves token amounts to outputs 1..len(Amounts).
type Send struct {
	Type    types.TokenType
	TokenID types.TokenID
	Amounts []uint64
}

func (*Invalid) Kind() Kind { return KindInvalid }
func (*Genesis) Kind() Kind { return KindGenesis }
func (*Mint) Kind() Kind    { return KindMint }
func (*Send) Kind() Kind    { return KindSend }

func (*Invalid) TokenType() types.TokenType   { return 0 }
func (g *Genesis) TokenType() types.TokenType { return g.Type }
func (m *Mint) TokenType() types.TokenType    { return m.Type }
func (s *Send) TokenType() types.TokenType    { return s.Type }

func (*Invalid) isOp() {}
func (*Genesis) isOp() {}
func (*Mint) isOp()    {}
func (*Send) isOp()    {}

// IsValid reports whether op is a recognized token operation.
func IsValid(op Op) bool {
	if op == nil {
		return false
	}
	return op.Kind() != KindInvalid
}

// TokenIDOf returns the token id an operation refers to.
func TokenIDOf(op Op) (types.TokenID, bool) {
	switch o := op.(type) {
	case *Genesis:
		return o.TokenID, true
	case *Mint:
		return o.TokenID, true
	case *Send:
		return o.TokenID, true
	default:
		return types.TokenID{}, false
	}
}

// OutputAmount returns the token amount op assigns to output vout.
func OutputAmount(op Op, vout uint32) uint64 {
	switch o := op.(type) {
	case *Send:
		if vout > 0 && uint64(vout-1) < uint64(len(o.Amounts)) {
			return o.Amounts[vout-1]
		}
	case *Mint:
		if vout == 1 {
			return o.Qty
		}
	case *Genesis:
		if vout == 1 {
			return o.Qty
		}
	}
	return 0
}

// MintBatonVout returns the output index op places its mint baton at.
func MintBatonVout(op Op) (uint32, bool) {
	switch o := op.(type) {
	case *Genesis:
		return o.MintBatonVout, o.HasMintBaton
	case *Mint:
		return o.MintBatonVout, o.HasMintBaton
	default:
		return 0, false
	}
}
