package rpc

import (
	"encoding/json"
	"testing"
)

// FuzzRPCRequestUnmarshal tests that arbitrary JSON does not panic
// when parsed as a JSON-RPC 2.0 request.
func FuzzRPCRequestUnmarshal(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","method":"ledger_getInfo","params":null,"id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"tx_get","params":{"hash":"abc"},"id":"test"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"method":"","params":[]}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"utxo_get","params":{"txid":"00","index":4294967295,"value":18446744073709551615},"id":999}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		var p PointerParam
		_ = parseParams(&req, &p)
		var sub TxSubmitParam
		_ = parseParams(&req, &sub)
	})
}
