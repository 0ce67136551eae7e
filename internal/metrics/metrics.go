// Package metrics exposes prometheus instrumentation for the poller, the
// keysend sender and the remote identity cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RecordsProcessed *prometheus.CounterVec
	PersistErrors    *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	RPCErrors        *prometheus.CounterVec
	Watermark        *prometheus.GaugeVec
	WalletBalance    prometheus.Gauge
	KeysendTotal     *prometheus.CounterVec
	RemoteLookups    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helipad_records_processed_total",
				Help: "Total number of boost records persisted",
			},
			[]string{"stream"},
		),
		PersistErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helipad_persist_errors_total",
				Help: "Total number of failed store writes",
			},
			[]string{"stream"},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "helipad_tlv_decode_errors_total",
				Help: "Total number of podcasting TLV payloads that failed to parse",
			},
		),
		RPCErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helipad_node_rpc_errors_total",
				Help: "Total number of failed node RPC calls",
			},
			[]string{"call"},
		),
		Watermark: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "helipad_watermark_index",
				Help: "Highest persisted index per stream",
			},
			[]string{"stream"},
		),
		WalletBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "helipad_channel_balance_sat",
				Help: "Last sampled local channel balance",
			},
		),
		KeysendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helipad_keysend_total",
				Help: "Total number of keysend attempts by result",
			},
			[]string{"result"},
		),
		RemoteLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helipad_remote_lookups_total",
				Help: "Remote podcast/episode lookups by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.RecordsProcessed,
		m.PersistErrors,
		m.DecodeErrors,
		m.RPCErrors,
		m.Watermark,
		m.WalletBalance,
		m.KeysendTotal,
		m.RemoteLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below accept a nil receiver so callers can run without metrics.

func (m *Metrics) RecordProcessed(stream string) {
	if m == nil {
		return
	}
	m.RecordsProcessed.WithLabelValues(stream).Inc()
}

func (m *Metrics) PersistFailed(stream string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(stream).Inc()
}

func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) RPCFailed(call string) {
	if m == nil {
		return
	}
	m.RPCErrors.WithLabelValues(call).Inc()
}

func (m *Metrics) SetWatermark(stream string, index uint64) {
	if m == nil {
		return
	}
	m.Watermark.WithLabelValues(stream).Set(float64(index))
}

func (m *Metrics) SetBalance(sat int64) {
	if m == nil {
		return
	}
	m.WalletBalance.Set(float64(sat))
}

func (m *Metrics) Keysend(result string) {
	if m == nil {
		return
	}
	m.KeysendTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RemoteLookup(result string) {
	if m == nil {
		return
	}
	m.RemoteLookups.WithLabelValues(result).Inc()
}
