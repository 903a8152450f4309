package ledger

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Diff is the effect of one accepted transaction: the entries it consumes
// and the entries it creates. The owner of a set decides when to commit it.
type Diff struct {
	TxID    types.Hash `json:"txid"`
	Spent   []Entry    `json:"spent"`
	Created []Entry    `json:"created"`
}

// Inverse returns the diff that undoes d.
func (d *Diff) Inverse() *Diff {
	inv := &Diff{
		TxID:    d.TxID,
		Spent:   make([]Entry, len(d.Created)),
		Created: make([]Entry, len(d.Spent)),
	}
	copy(inv.Spent, d.Created)
	copy(inv.Created, d.Spent)
	return inv
}

// SpentValue returns the total value consumed by the diff.
func (d *Diff) SpentValue() uint64 {
	var v uint64
	for _, e := range d.Spent {
		v += e.Output.Value
	}
	return v
}
