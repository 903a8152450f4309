package ledger

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// EntryHash returns the leaf hash of one entry: BLAKE3(pointer || address || value).
func EntryHash(e Entry) types.Hash {
	buf := make([]byte, 0, types.PointerSize+types.AddressSize+8)
	buf = e.Pointer.AppendBytes(buf)
	buf = append(buf, e.Output.Address[:]...)
	buf = binary.BigEndian.AppendUint64(buf, e.Output.Value)
	return crypto.Hash(buf)
}

// Commitment returns the merkle root over the entry hashes of the set in
// pointer order. Sets holding the same entries share a commitment.
// An empty set commits to the zero hash.
func Commitment(s *Set) types.Hash {
	entries := s.Entries()
	leaves := make([]types.Hash, len(entries))
	for i, e := range entries {
		leaves[i] = EntryHash(e)
	}
	return crypto.MerkleRoot(leaves)
}
