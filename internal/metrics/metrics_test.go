package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestLedgerRecords(t *testing.T) {
	m := NewLedger("")
	start := time.Now().Add(-time.Millisecond)

	if inc := delta(t, ledgerTransactionsTotal.WithLabelValues("unknown", "submit", "accepted"), func() {
		m.ObserveTx("submit", "", start)
	}); inc != 1 {
		t.Fatalf("expected accepted counter increment, got %v", inc)
	}

	if inc := delta(t, ledgerTransactionsTotal.WithLabelValues("unknown", "validate", "double_spend"), func() {
		m.ObserveTx("validate", "double_spend", start)
	}); inc != 1 {
		t.Fatalf("expected rejection counter increment, got %v", inc)
	}

	if inc := delta(t, ledgerPersistErrorsTotal.WithLabelValues("unknown"), m.ObservePersistError); inc != 1 {
		t.Fatalf("expected persist error increment, got %v", inc)
	}
}

func TestLedgerState(t *testing.T) {
	m := NewLedger("testnet")
	m.SetState(3, 1500)

	if got := testutil.ToFloat64(ledgerUTXOCount.WithLabelValues("testnet")); got != 3 {
		t.Fatalf("utxo_count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ledgerUTXOValue.WithLabelValues("testnet")); got != 1500 {
		t.Fatalf("utxo_value = %v, want 1500", got)
	}
}

func TestRPCServerRecords(t *testing.T) {
	m := NewRPCServer()
	start := time.Now()

	if inc := delta(t, rpcRequestsTotal.WithLabelValues("tx_submit", "error"), func() {
		m.Observe("tx_submit", true, start)
	}); inc != 1 {
		t.Fatalf("expected rpc error increment, got %v", inc)
	}
	if inc := delta(t, rpcRequestsTotal.WithLabelValues("unknown", "success"), func() {
		m.Observe("", false, start)
	}); inc != 1 {
		t.Fatalf("expected unknown-method increment, got %v", inc)
	}
}
