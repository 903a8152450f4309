package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetInfo(_ *Request) (interface{}, *Error) {
	result := &LedgerInfoResult{Info: s.chain.Info()}
	if s.genesis != nil {
		result.ChainID = s.genesis.ChainID
		result.ChainName = s.genesis.ChainName
		result.Symbol = s.genesis.Symbol
	}
	return result, nil
}

// ── UTXO endpoints ──────────────────────────────────────────────────────

func (s *Server) handleUTXOGet(req *Request) (interface{}, *Error) {
	var params PointerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.TxID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "txid is required"}
	}

	txID, err := types.HexToHash(params.TxID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid txid: must be 32-byte hex"}
	}

	p := types.UtxoPointer{TxID: txID, Index: params.Index, Value: params.Value}
	out, ok := s.chain.Resolve(p)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("utxo not found: %s", p)}
	}
	return &UTXOResult{Pointer: p, Output: out}, nil
}

func (s *Server) handleUTXOGetByAddress(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, addrErr := decodeAddress(params.Address)
	if addrErr != nil {
		return nil, addrErr
	}

	entries, err := s.chain.GetByAddress(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("get utxos: %v", err)}
	}
	return &UTXOListResult{
		Address: addr.String(),
		UTXOs:   nonNil(entries),
	}, nil
}

func (s *Server) handleUTXOGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, addrErr := decodeAddress(params.Address)
	if addrErr != nil {
		return nil, addrErr
	}

	entries, err := s.chain.GetByAddress(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("get utxos: %v", err)}
	}

	result := &BalanceResult{Address: addr.String(), Count: len(entries)}
	for _, e := range entries {
		result.Balance += e.Output.Value
	}
	return result, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	diff, err := s.chain.SubmitTx(params.Transaction)
	if err != nil {
		return nil, txError(err)
	}

	return &TxSubmitResult{
		TxID:    diff.TxID,
		Spent:   nonNil(diff.Spent),
		Created: nonNil(diff.Created),
	}, nil
}

func (s *Server) handleTxValidate(req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	result := &TxValidateResult{TxID: params.Transaction.ID(), Valid: true}
	if err := s.chain.ValidateTx(params.Transaction); err != nil {
		lerr, ok := ledger.AsError(err)
		if !ok {
			return nil, txError(err)
		}
		result.Valid = false
		result.Rejection = NewRejectionData(lerr)
	}
	return result, nil
}

func (s *Server) handleTxGet(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid hash: must be 32-byte hex"}
	}

	diff, seq, err := s.chain.GetTx(id)
	if errors.Is(err, chain.ErrTxNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("transaction not found: %s", id)}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("get transaction: %v", err)}
	}
	return &TxResult{
		TxID:     diff.TxID,
		Sequence: seq,
		Spent:    nonNil(diff.Spent),
		Created:  nonNil(diff.Created),
	}, nil
}

// txError maps a driver error to a JSON-RPC error. Ledger rejections carry
// their detail in Data.
func txError(err error) *Error {
	if lerr, ok := ledger.AsError(err); ok {
		return &Error{
			Code:    CodeTxRejected,
			Message: "rejected: " + lerr.Error(),
			Data:    NewRejectionData(lerr),
		}
	}
	if errors.Is(err, chain.ErrPersist) || errors.Is(err, chain.ErrStateInconsistent) {
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid transaction: %v", err)}
}

func decodeAddress(s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid address: " + err.Error()}
	}
	return addr, nil
}

func nonNil(entries []ledger.Entry) []ledger.Entry {
	if entries == nil {
		return []ledger.Entry{}
	}
	return entries
}

func hexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}
