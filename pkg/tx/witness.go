package tx

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Witness carries the proof that an input may be spent.
// InputSig authorizes one input; TxSig co-signs the whole transaction.
type Witness struct {
	PubKey   []byte `json:"pubkey"`
	InputSig []byte `json:"input_sig"`
	TxSig    []byte `json:"tx_sig"`
}

// witnessJSON is the JSON representation of Witness with hex-encoded fields.
type witnessJSON struct {
	PubKey   string `json:"pubkey"`
	InputSig string `json:"input_sig"`
	TxSig    string `json:"tx_sig"`
}

// MarshalJSON encodes the witness with hex-encoded byte fields.
func (w Witness) MarshalJSON() ([]byte, error) {
	return json.Marshal(witnessJSON{
		PubKey:   hex.EncodeToString(w.PubKey),
		InputSig: hex.EncodeToString(w.InputSig),
		TxSig:    hex.EncodeToString(w.TxSig),
	})
}

// UnmarshalJSON decodes a witness with hex-encoded byte fields.
func (w *Witness) UnmarshalJSON(data []byte) error {
	var j witnessJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	if w.PubKey, err = decodeHexField("pubkey", j.PubKey); err != nil {
		return err
	}
	if w.InputSig, err = decodeHexField("input_sig", j.InputSig); err != nil {
		return err
	}
	if w.TxSig, err = decodeHexField("tx_sig", j.TxSig); err != nil {
		return err
	}
	return nil
}

func decodeHexField(name, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}
