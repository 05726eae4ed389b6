package types

// TokenType is the SLP token type carried in every token script.
type TokenType uint16

const (
	TokenTypeFungible  TokenType = 0x01 // Type 1 fungible token
	TokenTypeNFT1Child TokenType = 0x41 // NFT1 child, minted by burning a group unit
	TokenTypeNFT1Group TokenType = 0x81 // NFT1 group (parent)
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenTypeFungible:
		return "fungible"
	case TokenTypeNFT1Child:
		return "nft1-child"
	case TokenTypeNFT1Group:
		return "nft1-group"
	default:
		return "unknown"
	}
}

// Known reports whether t is a token type the indexer understands.
func (t TokenType) Known() bool {
	return t == TokenTypeFungible || t == TokenTypeNFT1Child || t == TokenTypeNFT1Group
}
