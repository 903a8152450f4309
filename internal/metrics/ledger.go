// Package metrics exposes Prometheus collectors for the ledger node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "klingnet_ledger"

// Result label for accepted transactions. Rejections use the error kind.
const resultAccepted = "accepted"

var (
	ledgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Count of transactions checked by the ledger, by operation and result.",
	}, []string{"network", "operation", "result"})
	ledgerValidationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "validation_duration_seconds",
		Help:      "Duration of transaction validation and commit.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "operation"})
	ledgerUTXOCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "utxo_count",
		Help:      "Number of unspent outputs.",
	}, []string{"network"})
	ledgerUTXOValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "utxo_value",
		Help:      "Total value held by unspent outputs.",
	}, []string{"network"})
	ledgerPersistErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "persist_errors_total",
		Help:      "Count of accepted transactions that failed to persist.",
	}, []string{"network"})
)

// Ledger tracks metrics for one ledger driver.
type Ledger struct {
	network string
}

// NewLedger constructs a metrics collector for the given network.
func NewLedger(network string) *Ledger {
	if network == "" {
		network = "unknown"
	}
	return &Ledger{network: network}
}

// ObserveTx records the outcome of a submit or validate call. result is
// empty for an accepted transaction and the rejection kind otherwise.
func (m *Ledger) ObserveTx(operation, result string, started time.Time) {
	if result == "" {
		result = resultAccepted
	}
	ledgerTransactionsTotal.WithLabelValues(m.network, operation, result).Inc()
	ledgerValidationDuration.WithLabelValues(m.network, operation).Observe(time.Since(started).Seconds())
}

// ObservePersistError records a failed storage commit.
func (m *Ledger) ObservePersistError() {
	ledgerPersistErrorsTotal.WithLabelValues(m.network).Inc()
}

// SetState records the size and total value of the UTXO set.
func (m *Ledger) SetState(count int, value uint64) {
	ledgerUTXOCount.WithLabelValues(m.network).Set(float64(count))
	ledgerUTXOValue.WithLabelValues(m.network).Set(float64(value))
}
