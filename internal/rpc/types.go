package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeTxRejected     = -32010 // Data is a *RejectionData.
)

// Request is a JSON-RPC 2.0 request. Params stay raw until a handler
// decodes them so 64-bit values never pass through float64.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam is used by endpoints that take a single hash.
type HashParam struct {
	Hash string `json:"hash"`
}

// PointerParam is used by utxo_get.
type PointerParam struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
	Value uint64 `json:"value"`
}

// AddressParam is used by utxo_getByAddress and utxo_getBalance.
type AddressParam struct {
	Address string `json:"address"`
}

// TxSubmitParam is used by tx_submit and tx_validate.
type TxSubmitParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// ── Result types ────────────────────────────────────────────────────────

// LedgerInfoResult is returned by ledger_getInfo.
type LedgerInfoResult struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	chain.Info
}

// UTXOResult is returned by utxo_get.
type UTXOResult struct {
	Pointer types.UtxoPointer `json:"pointer"`
	Output  tx.Output         `json:"output"`
}

// UTXOListResult is returned by utxo_getByAddress.
type UTXOListResult struct {
	Address string         `json:"address"`
	UTXOs   []ledger.Entry `json:"utxos"`
}

// BalanceResult is returned by utxo_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Count   int    `json:"count"`
}

// TxSubmitResult is returned by tx_submit.
type TxSubmitResult struct {
	TxID    types.Hash     `json:"txid"`
	Spent   []ledger.Entry `json:"spent"`
	Created []ledger.Entry `json:"created"`
}

// TxValidateResult is returned by tx_validate.
type TxValidateResult struct {
	TxID      types.Hash     `json:"txid"`
	Valid     bool           `json:"valid"`
	Rejection *RejectionData `json:"rejection,omitempty"`
}

// TxResult is returned by tx_get.
type TxResult struct {
	TxID     types.Hash     `json:"txid"`
	Sequence uint64         `json:"sequence"`
	Spent    []ledger.Entry `json:"spent"`
	Created  []ledger.Entry `json:"created"`
}

// RejectionData describes why the ledger refused a transaction. Only the
// fields meaningful for Kind are set.
type RejectionData struct {
	Kind      string             `json:"kind"`
	Message   string             `json:"message"`
	Pointer   *types.UtxoPointer `json:"pointer,omitempty"`
	Output    *tx.Output         `json:"output,omitempty"`
	Original  *tx.Output         `json:"original,omitempty"`
	PubKey    string             `json:"pubkey,omitempty"`
	InputSum  *uint64            `json:"input_sum,omitempty"`
	OutputSum *uint64            `json:"output_sum,omitempty"`
	Required  *int               `json:"required,omitempty"`
	Actual    *int               `json:"actual,omitempty"`
}

// NewRejectionData converts a ledger rejection into its wire form.
func NewRejectionData(e *ledger.Error) *RejectionData {
	d := &RejectionData{Kind: e.Kind.String(), Message: e.Error()}
	pointer := func() { p := e.Pointer; d.Pointer = &p }
	output := func() { o := e.Output; d.Output = &o }

	switch e.Kind {
	case ledger.KindInputDoesNotResolve:
		pointer()
	case ledger.KindDoubleSpend:
		pointer()
		output()
	case ledger.KindInputWasAlreadySet:
		pointer()
		output()
		orig := e.Original
		d.Original = &orig
	case ledger.KindInvalidSignature:
		pointer()
		output()
		d.PubKey = hexString(e.Witness.PubKey)
	case ledger.KindInvalidTxSignature:
		d.PubKey = hexString(e.Witness.PubKey)
	case ledger.KindTransactionSumIsNonZero:
		in, out := e.InputSum, e.OutputSum
		d.InputSum, d.OutputSum = &in, &out
	case ledger.KindNotEnoughSignatures:
		req, act := e.Required, e.Actual
		d.Required, d.Actual = &req, &act
	case ledger.KindZeroOutput:
		output()
	}
	return d
}
