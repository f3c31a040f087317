// Package metrics holds the Prometheus collectors shared by the sync clients
// and the reference backend. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "promptsync"

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics groups all collectors. Collectors a process never drives are left
// nil and their recording methods do nothing.
type Metrics struct {
	CreditOps      *prometheus.CounterVec
	DailyGrants    *prometheus.CounterVec
	BalancePolls   *prometheus.CounterVec
	DocumentWrites *prometheus.CounterVec
	Subscriptions  prometheus.Gauge
	RPCRequests    *prometheus.CounterVec
}

// New registers every collector on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := NewServer(reg)
	m.BalancePolls = promauto.With(orDefault(reg)).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credits",
		Name:      "balance_polls_total",
		Help:      "Heartbeat balance fetches by outcome.",
	}, []string{"result"})
	return m
}

// NewServer registers the collectors the backend drives: ledger operations,
// document writes, websocket channels and RPC requests. Heartbeat polling is a
// client concern and is not registered.
func NewServer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(orDefault(reg))

	return &Metrics{
		CreditOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "operations_total",
			Help:      "Credit spend/earn operations by outcome.",
		}, []string{"op", "result"}),
		DailyGrants: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "daily_refresh_checks_total",
			Help:      "Daily refresh checks by whether credits were granted.",
		}, []string{"granted"}),
		DocumentWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docsync",
			Name:      "remote_writes_total",
			Help:      "Remote document writes by document and outcome.",
		}, []string{"document", "result"}),
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "balance_channels",
			Help:      "Users with at least one live balance subscriber.",
		}),
		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and outcome.",
		}, []string{"method", "result"}),
	}
}

func orDefault(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// CreditOp counts a spend or earn outcome.
func (m *Metrics) CreditOp(op, result string) {
	if m == nil {
		return
	}
	m.CreditOps.WithLabelValues(op, result).Inc()
}

// DailyCheck counts a daily refresh check.
func (m *Metrics) DailyCheck(granted bool) {
	if m == nil {
		return
	}
	label := "false"
	if granted {
		label = "true"
	}
	m.DailyGrants.WithLabelValues(label).Inc()
}

// BalancePoll counts a heartbeat fetch.
func (m *Metrics) BalancePoll(result string) {
	if m == nil || m.BalancePolls == nil {
		return
	}
	m.BalancePolls.WithLabelValues(result).Inc()
}

// DocumentWrite counts a remote document write.
func (m *Metrics) DocumentWrite(document, result string) {
	if m == nil {
		return
	}
	m.DocumentWrites.WithLabelValues(document, result).Inc()
}

// ChannelOpened increments the live balance channel gauge.
func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.Subscriptions.Inc()
}

// ChannelClosed decrements the live balance channel gauge.
func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.Subscriptions.Dec()
}

// RPC counts a JSON-RPC request.
func (m *Metrics) RPC(method, result string) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, result).Inc()
}
