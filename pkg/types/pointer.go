package types

import (
	"encoding/binary"
	"fmt"
)

// PointerSize is the length of an encoded UtxoPointer: txid(32) | index(4) | value(8).
const PointerSize = HashSize + 4 + 8

// UtxoPointer references a specific output of a transaction together with
// the value that output is expected to carry. It is comparable and is used
// directly as a map key by the UTXO set.
type UtxoPointer struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
	Value uint64 `json:"value"`
}

// String returns "txid:index(value)".
func (p UtxoPointer) String() string {
	return fmt.Sprintf("%s:%d(%d)", p.TxID, p.Index, p.Value)
}

// Compare orders pointers by TxID, then Index, then Value.
func (p UtxoPointer) Compare(other UtxoPointer) int {
	if c := p.TxID.Compare(other.TxID); c != 0 {
		return c
	}
	switch {
	case p.Index < other.Index:
		return -1
	case p.Index > other.Index:
		return 1
	case p.Value < other.Value:
		return -1
	case p.Value > other.Value:
		return 1
	}
	return 0
}

// Bytes returns the fixed-size big-endian encoding of the pointer.
// Big-endian keeps the byte order consistent with Compare, which storage
// layers rely on for ordered iteration.
func (p UtxoPointer) Bytes() []byte {
	return p.AppendBytes(make([]byte, 0, PointerSize))
}

// AppendBytes appends the encoding returned by Bytes to buf.
func (p UtxoPointer) AppendBytes(buf []byte) []byte {
	buf = append(buf, p.TxID[:]...)
	buf = binary.BigEndian.AppendUint32(buf, p.Index)
	buf = binary.BigEndian.AppendUint64(buf, p.Value)
	return buf
}

// PointerFromBytes decodes a pointer produced by Bytes.
func PointerFromBytes(b []byte) (UtxoPointer, error) {
	if len(b) != PointerSize {
		return UtxoPointer{}, fmt.Errorf("pointer must be %d bytes, got %d", PointerSize, len(b))
	}
	var p UtxoPointer
	copy(p.TxID[:], b[:HashSize])
	p.Index = binary.BigEndian.Uint32(b[HashSize:])
	p.Value = binary.BigEndian.Uint64(b[HashSize+4:])
	return p, nil
}
