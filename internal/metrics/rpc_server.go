package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc_server",
		Name:      "requests_total",
		Help:      "Count of JSON-RPC requests served.",
	}, []string{"method", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc_server",
		Name:      "request_duration_seconds",
		Help:      "Duration of JSON-RPC requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// RPCServer tracks metrics for JSON-RPC requests.
type RPCServer struct{}

// NewRPCServer constructs a metrics collector for the RPC server.
func NewRPCServer() *RPCServer {
	return &RPCServer{}
}

// Observe records a single request outcome and duration.
func (RPCServer) Observe(method string, failed bool, started time.Time) {
	status := "success"
	if failed {
		status = "error"
	}
	if method == "" {
		method = "unknown"
	}
	rpcRequestsTotal.WithLabelValues(method, status).Inc()
	rpcRequestDuration.WithLabelValues(method, status).Observe(time.Since(started).Seconds())
}
