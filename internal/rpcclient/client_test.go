package rpcclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

type testEnv struct {
	client  *Client
	chain   *chain.Chain
	key     *crypto.PrivateKey
	funding ledger.Entry
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	gen := &config.Genesis{
		ChainID:   "klingnet-ledger-test-client",
		ChainName: "Client Test",
		Timestamp: uint64(time.Now().Unix()),
		Alloc:     map[string]uint64{key.Address().String(): 100_000 * config.Coin},
	}

	ch, err := chain.New(utxo.NewStore(storage.NewMemory()), chain.Options{Network: "test"})
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	if err := ch.InitGenesis(gen); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	entries, err := gen.Entries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("genesis entries: %v (%d)", err, len(entries))
	}

	cfg := config.DefaultTestnet()
	cfg.RPC.Addr = "127.0.0.1"
	cfg.RPC.Port = 0
	srv := rpc.New(ch, gen, cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	return &testEnv{
		client:  New("http://" + srv.Addr()),
		chain:   ch,
		key:     key,
		funding: entries[0],
	}
}

func TestClient_LedgerInfo(t *testing.T) {
	env := setupTestEnv(t)

	info, err := env.client.LedgerInfo()
	if err != nil {
		t.Fatalf("LedgerInfo error: %v", err)
	}
	if info.ChainID != "klingnet-ledger-test-client" {
		t.Errorf("chain_id = %q", info.ChainID)
	}
	if info.UTXOCount != 1 {
		t.Errorf("utxo_count = %d, want 1", info.UTXOCount)
	}
}

func TestClient_GetBalance(t *testing.T) {
	env := setupTestEnv(t)

	result, err := env.client.Balance(env.key.Address())
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}

	expected := uint64(100_000) * config.Coin
	if result.Balance != expected {
		t.Errorf("balance = %d, want %d", result.Balance, expected)
	}
}

func TestClient_SubmitAndGet(t *testing.T) {
	env := setupTestEnv(t)
	total := env.funding.Output.Value
	recipient := types.Address{0x11}

	b := tx.NewBuilder().
		AddInput(env.funding.Pointer).
		AddOutput(recipient, config.Coin).
		AddOutput(env.key.Address(), total-config.Coin)
	if err := b.Sign(env.key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	transaction := b.Build()

	valid, err := env.client.ValidateTx(transaction)
	if err != nil {
		t.Fatalf("ValidateTx error: %v", err)
	}
	if !valid.Valid {
		t.Fatalf("expected valid, got rejection %+v", valid.Rejection)
	}

	res, err := env.client.SubmitTx(transaction)
	if err != nil {
		t.Fatalf("SubmitTx error: %v", err)
	}
	if res.TxID != transaction.ID() {
		t.Errorf("txid = %s, want %s", res.TxID, transaction.ID())
	}

	utxos, err := env.client.UTXOs(recipient)
	if err != nil {
		t.Fatalf("UTXOs error: %v", err)
	}
	if len(utxos.UTXOs) != 1 || utxos.UTXOs[0].Output.Value != config.Coin {
		t.Fatalf("recipient utxos = %+v", utxos.UTXOs)
	}

	got, err := env.client.Tx(transaction.ID())
	if err != nil {
		t.Fatalf("Tx error: %v", err)
	}
	if got.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", got.Sequence)
	}
}

func TestClient_SubmitRejected(t *testing.T) {
	env := setupTestEnv(t)

	b := tx.NewBuilder().
		AddInput(env.funding.Pointer).
		AddInput(env.funding.Pointer).
		AddOutput(env.key.Address(), 2*env.funding.Output.Value)
	if err := b.Sign(env.key); err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err := env.client.SubmitTx(b.Build())
	if err == nil {
		t.Fatal("expected rejection")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	rej, ok := rpcErr.Rejection()
	if !ok {
		t.Fatalf("expected rejection data, got %s", rpcErr.Data)
	}
	if rej.Kind != "double_spend" {
		t.Errorf("kind = %q, want double_spend", rej.Kind)
	}
	if rej.Pointer == nil || *rej.Pointer != env.funding.Pointer {
		t.Errorf("pointer = %v, want %v", rej.Pointer, env.funding.Pointer)
	}
}

func TestClient_Tx_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.client.Tx(types.Hash{})
	if err == nil {
		t.Fatal("expected error for unknown transaction")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("error code = %d, want -32000", rpcErr.Code)
	}
	if _, ok := rpcErr.Rejection(); ok {
		t.Error("not-found error should carry no rejection")
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // nothing listens on port 1

	var result rpc.LedgerInfoResult
	err := client.Call("ledger_getInfo", nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("nonexistent_method", nil, &raw)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}
