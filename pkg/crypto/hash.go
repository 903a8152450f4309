// Package crypto provides the hashing and signature primitives of the ledger.
package crypto

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// TaggedHash hashes the concatenation of parts after a domain tag.
// Different tags never produce the same digest for the same parts.
func TaggedHash(tag string, parts ...[]byte) types.Hash {
	h := blake3.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// HashConcat hashes the concatenation of two hashes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], a[:])
	copy(buf[types.HashSize:], b[:])
	return Hash(buf[:])
}

// MerkleRoot computes the root of a binary merkle tree over leaves.
// An empty list yields the zero hash and a single leaf is its own root.
// Odd layers duplicate their last element.
func MerkleRoot(leaves []types.Hash) types.Hash {
	switch len(leaves) {
	case 0:
		return types.Hash{}
	case 1:
		return leaves[0]
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashConcat(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}
