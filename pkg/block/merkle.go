package block

import (
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// ComputeMerkleRoot calculates the Bitcoin merkle root of transaction ids.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns that hash
//   - Otherwise: pairwise double SHA-256 of the concatenation, duplicating the
//     last element if odd count, until one hash remains.
func ComputeMerkleRoot(txids []types.Hash) types.Hash {
	if len(txids) == 0 {
		return types.Hash{}
	}
	if len(txids) == 1 {
		return txids[0]
	}

	level := make([]types.Hash, len(txids))
	copy(level, txids)

	var pair [2 * types.HashSize]byte
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			copy(pair[:types.HashSize], level[i][:])
			copy(pair[types.HashSize:], level[i+1][:])
			next[i/2] = types.DoubleSHA256(pair[:])
		}
		level = next
	}

	return level[0]
}
