// Package rpcclient provides a JSON-RPC 2.0 client for klingnet-ledger nodes.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Rejection decodes the ledger rejection carried by a tx_submit error.
func (e *RPCError) Rejection() (*rpc.RejectionData, bool) {
	if e.Code != rpc.CodeTxRejected || len(e.Data) == 0 {
		return nil, false
	}
	var d rpc.RejectionData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, false
	}
	return &d, true
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// LedgerInfo calls ledger_getInfo.
func (c *Client) LedgerInfo() (*rpc.LedgerInfoResult, error) {
	var result rpc.LedgerInfoResult
	if err := c.Call("ledger_getInfo", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UTXOs calls utxo_getByAddress.
func (c *Client) UTXOs(addr types.Address) (*rpc.UTXOListResult, error) {
	var result rpc.UTXOListResult
	if err := c.Call("utxo_getByAddress", rpc.AddressParam{Address: addr.String()}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Balance calls utxo_getBalance.
func (c *Client) Balance(addr types.Address) (*rpc.BalanceResult, error) {
	var result rpc.BalanceResult
	if err := c.Call("utxo_getBalance", rpc.AddressParam{Address: addr.String()}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTx calls tx_submit. A ledger rejection is returned as *RPCError;
// use RPCError.Rejection for the detail.
func (c *Client) SubmitTx(t *tx.Transaction) (*rpc.TxSubmitResult, error) {
	var result rpc.TxSubmitResult
	if err := c.Call("tx_submit", rpc.TxSubmitParam{Transaction: t}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateTx calls tx_validate.
func (c *Client) ValidateTx(t *tx.Transaction) (*rpc.TxValidateResult, error) {
	var result rpc.TxValidateResult
	if err := c.Call("tx_validate", rpc.TxSubmitParam{Transaction: t}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tx calls tx_get.
func (c *Client) Tx(id types.Hash) (*rpc.TxResult, error) {
	var result rpc.TxResult
	if err := c.Call("tx_get", rpc.HashParam{Hash: id.String()}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
