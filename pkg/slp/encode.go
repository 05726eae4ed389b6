package slp

import (
	"encoding/binary"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// pushData appends the minimal SLP push for data. Empty pushes use
// OP_PUSHDATA1 with a zero length as the protocol requires.
func pushData(b, data []byte) []byte {
	n := len(data)
	switch {
	case n == 0:
		b = append(b, opPushData1, 0x00)
	case n < opPushData1:
		b = append(b, byte(n))
	case n <= 0xff:
		b = append(b, opPushData1, byte(n))
	case n <= 0xffff:
		b = binary.LittleEndian.AppendUint16(append(b, opPushData2), uint16(n))
	default:
		b = binary.LittleEndian.AppendUint32(append(b, opPushData4), uint32(n))
	}
	return append(b, data...)
}

func header(t types.TokenType, kind string) []byte {
	b := []byte{types.OpReturn}
	b = pushData(b, Lokad)
	if t > 0xff {
		b = pushData(b, binary.BigEndian.AppendUint16(nil, uint16(t)))
	} else {
		b = pushData(b, []byte{byte(t)})
	}
	return pushData(b, []byte(kind))
}

func pushTokenID(b []byte, id types.TokenID) []byte {
	return pushData(b, types.Hash(id).Reversed().Bytes())
}

func pushAmount(b []byte, v uint64) []byte {
	return pushData(b, binary.BigEndian.AppendUint64(nil, v))
}

func pushBaton(b []byte, has bool, vout uint32) []byte {
	if !has {
		return pushData(b, nil)
	}
	return pushData(b, []byte{byte(vout)})
}

// Script encodes the genesis as an OP_RETURN script.
func (g *Genesis) Script() types.Script {
	b := header(g.Type, "GENESIS")
	b = pushData(b, []byte(g.Ticker))
	b = pushData(b, []byte(g.Name))
	b = pushData(b, []byte(g.DocumentURI))
	b = pushData(b, g.DocumentHash)
	b = pushData(b, []byte{g.Decimals})
	b = pushBaton(b, g.HasMintBaton, g.MintBatonVout)
	return pushAmount(b, g.Qty)
}

// Script encodes the mint as an OP_RETURN script.
func (m *Mint) Script() types.Script {
	b := header(m.Type, "MINT")
	b = pushTokenID(b, m.TokenID)
	b = pushBaton(b, m.HasMintBaton, m.MintBatonVout)
	return pushAmount(b, m.Qty)
}

// Script encodes the send as an OP_RETURN script.
func (s *Send) Script() types.Script {
	b := header(s.Type, "SEND")
	b = pushTokenID(b, s.TokenID)
	for _, a := range s.Amounts {
		b = pushAmount(b, a)
	}
	return b
}
