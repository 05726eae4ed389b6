// Package metrics exposes indexer counters in the Prometheus format.
//
// Every method is safe to call on a nil *Metrics so components can run
// with metrics disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slpgraph"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	blocks        prometheus.Counter
	blockDuration prometheus.Histogram
	height        prometheus.Gauge
	mempoolTxs    *prometheus.CounterVec
	rollbacks     prometheus.Counter
	snapshots     *prometheus.CounterVec
	cacheReads    *prometheus.CounterVec
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
}

// New creates the collectors, including the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		blocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Number of blocks applied to the index",
		}),
		blockDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_process_seconds",
			Help:      "Time to hydrate and apply one block",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		height: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Height of the last indexed block",
		}),
		mempoolTxs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mempool_txs_total",
			Help:      "Mempool transactions received, by result",
		}, []string{"result"}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Blocks rolled back",
		}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots written, by result",
		}, []string{"result"}),
		cacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blockcache_reads_total",
			Help:      "Block cache lookups, by result",
		}, []string{"result"}),
		rpcRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests, by method and error code (0 = success)",
		}, []string{"method", "code"}),
		rpcDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_seconds",
			Help:      "RPC request latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// BlockProcessed records one applied block.
func (m *Metrics) BlockProcessed(height uint32, took time.Duration) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.blockDuration.Observe(took.Seconds())
	m.height.Set(float64(height))
}

// SetHeight sets the height gauge without counting a block.
func (m *Metrics) SetHeight(height uint32) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// MempoolTx records a mempool transaction result.
func (m *Metrics) MempoolTx(err error) {
	if m == nil {
		return
	}
	m.mempoolTxs.WithLabelValues(result(err)).Inc()
}

// Rollback records a rolled back block.
func (m *Metrics) Rollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

// Snapshot records a snapshot attempt.
func (m *Metrics) Snapshot(err error) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result(err)).Inc()
}

// CacheRead records a block cache lookup.
func (m *Metrics) CacheRead(hit bool) {
	if m == nil {
		return
	}
	r := "miss"
	if hit {
		r = "hit"
	}
	m.cacheReads.WithLabelValues(r).Inc()
}

// RPCRequest records one RPC call.
func (m *Metrics) RPCRequest(method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(took.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
