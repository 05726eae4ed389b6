package slp

import (
	"encoding/binary"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Protocol constants.
const (
	minScriptSize  = 10
	maxSendOutputs = 19
	maxDecimals    = 9

	opPushData1 = 0x4c
	opPushData2 = 0x4d
	opPushData4 = 0x4e
)

// Lokad is the 4-byte protocol marker pushed as the first chunk.
var Lokad = []byte{'S', 'L', 'P', 0x00}

// Decode parses an output script. It never fails: anything that is not a
// well-formed token operation decodes to *Invalid.
func Decode(script []byte) Op {
	if len(script) == 0 {
		return invalid("empty script")
	}
	if script[0] != types.OpReturn {
		return invalid("not OP_RETURN")
	}
	if len(script) < minScriptSize {
		return invalid("script too small")
	}

	chunks, reason := splitChunks(script[1:])
	if reason != "" {
		return invalid(reason)
	}
	if len(chunks) < 3 {
		return invalid("too few chunks")
	}

	tokenType, ok := parseTokenType(chunks[1])
	if !ok {
		return invalid("unsupported token type")
	}

	switch string(chunks[2]) {
	case "GENESIS":
		return decodeGenesis(tokenType, chunks)
	case "MINT":
		return decodeMint(tokenType, chunks)
	case "SEND":
		return decodeSend(tokenType, chunks)
	default:
		return invalid("unknown transaction type")
	}
}

func invalid(reason string) *Invalid {
	return &Invalid{Reason: reason}
}

// splitChunks reads push-data chunks until the script ends. Any other opcode
// leaves unread bytes, which makes the script invalid.
func splitChunks(b []byte) ([][]byte, string) {
	var chunks [][]byte
	pos := 0
	for pos < len(b) {
		op := b[pos]
		pos++

		var n int
		switch {
		case op > 0x00 && op < opPushData1:
			n = int(op)
		case op == opPushData1:
			if pos+1 > len(b) {
				return nil, "truncated pushdata1"
			}
			n = int(b[pos])
			pos++
		case op == opPushData2:
			if pos+2 > len(b) {
				return nil, "truncated pushdata2"
			}
			n = int(binary.LittleEndian.Uint16(b[pos:]))
			pos += 2
		case op == opPushData4:
			if pos+4 > len(b) {
				return nil, "truncated pushdata4"
			}
			l := binary.LittleEndian.Uint32(b[pos:])
			if uint64(l) > uint64(len(b)) {
				return nil, "pushdata4 exceeds script"
			}
			n = int(l)
			pos += 4
		default:
			return nil, "trailing data"
		}

		if pos+n > len(b) {
			return nil, "pushdata exceeds script"
		}
		chunks = append(chunks, b[pos:pos+n])
		pos += n

		if len(chunks) == 1 && string(chunks[0]) != string(Lokad) {
			return nil, "missing SLP marker"
		}
	}
	if len(chunks) == 0 {
		return nil, "no chunks"
	}
	return chunks, ""
}

func parseTokenType(c []byte) (types.TokenType, bool) {
	var v uint16
	switch len(c) {
	case 1:
		v = uint16(c[0])
	case 2:
		v = binary.BigEndian.Uint16(c)
	default:
		return 0, false
	}
	t := types.TokenType(v)
	return t, t.Known()
}

func parseTokenID(c []byte) (types.TokenID, bool) {
	if len(c) != types.HashSize {
		return types.TokenID{}, false
	}
	// Scripts carry the id in display order.
	var id types.TokenID
	for i := 0; i < types.HashSize; i++ {
		id[i] = c[types.HashSize-1-i]
	}
	return id, true
}

func parseAmount(c []byte) (uint64, bool) {
	if len(c) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(c), true
}

// parseBatonVout returns (vout, present, ok).
func parseBatonVout(c []byte) (uint32, bool, bool) {
	switch len(c) {
	case 0:
		return 0, false, true
	case 1:
		if c[0] < 2 {
			return 0, false, false
		}
		return uint32(c[0]), true, true
	default:
		return 0, false, false
	}
}

func decodeGenesis(tokenType types.TokenType, chunks [][]byte) Op {
	if len(chunks) != 10 {
		return invalid("genesis: wrong number of chunks")
	}
	docHash := chunks[6]
	if len(docHash) != 0 && len(docHash) != 32 {
		return invalid("genesis: document hash must be 0 or 32 bytes")
	}
	if len(chunks[7]) != 1 {
		return invalid("genesis: decimals must be 1 byte")
	}
	decimals := chunks[7][0]
	if decimals > maxDecimals {
		return invalid("genesis: decimals above 9")
	}
	vout, hasBaton, ok := parseBatonVout(chunks[8])
	if !ok {
		return invalid("genesis: bad mint baton vout")
	}
	qty, ok := parseAmount(chunks[9])
	if !ok {
		return invalid("genesis: quantity must be 8 bytes")
	}

	if tokenType == types.TokenTypeNFT1Child {
		if decimals != 0 {
			return invalid("nft1 child: decimals must be 0")
		}
		if hasBaton {
			return invalid("nft1 child: mint baton not allowed")
		}
		if qty != 1 {
			return invalid("nft1 child: quantity must be 1")
		}
	}

	g := &Genesis{
		Type:          tokenType,
		Ticker:        string(chunks[3]),
		Name:          string(chunks[4]),
		DocumentURI:   string(chunks[5]),
		Decimals:      decimals,
		HasMintBaton:  hasBaton,
		MintBatonVout: vout,
		Qty:           qty,
	}
	if len(docHash) > 0 {
		g.DocumentHash = append([]byte(nil), docHash...)
	}
	return g
}

func decodeMint(tokenType types.TokenType, chunks [][]byte) Op {
	if tokenType == types.TokenTypeNFT1Child {
		return invalid("nft1 child: mint not allowed")
	}
	if len(chunks) != 6 {
		return invalid("mint: wrong number of chunks")
	}
	id, ok := parseTokenID(chunks[3])
	if !ok {
		return invalid("mint: token id must be 32 bytes")
	}
	vout, hasBaton, ok := parseBatonVout(chunks[4])
	if !ok {
		return invalid("mint: bad mint baton vout")
	}
	qty, ok := parseAmount(chunks[5])
	if !ok {
		return invalid("mint: quantity must be 8 bytes")
	}
	return &Mint{
		Type:          tokenType,
		TokenID:       id,
		HasMintBaton:  hasBaton,
		MintBatonVout: vout,
		Qty:           qty,
	}
}

func decodeSend(tokenType types.TokenType, chunks [][]byte) Op {
	if len(chunks) < 5 {
		return invalid("send: wrong number of chunks")
	}
	id, ok := parseTokenID(chunks[3])
	if !ok {
		return invalid("send: token id must be 32 bytes")
	}
	amountChunks := chunks[4:]
	if len(amountChunks) > maxSendOutputs {
		return invalid("send: more than 19 amounts")
	}
	amounts := make([]uint64, 0, len(amountChunks))
	for _, c := range amountChunks {
		a, ok := parseAmount(c)
		if !ok {
			return invalid("send: amount must be 8 bytes")
		}
		amounts = append(amounts, a)
	}
	return &Send{
		Type:    tokenType,
		TokenID: id,
		Amounts: amounts,
	}
}
