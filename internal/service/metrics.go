package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the settlement engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	TradeTransitions   *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	NotifierFailures   prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truek_settlements_total",
				Help: "Total settlements processed.",
			},
			[]string{"kind", "status"},
		),
		SettlementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "truek_settlement_duration_seconds",
				Help:    "Settlement processing duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		TradeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truek_trade_transitions_total",
				Help: "Total trade status transitions.",
			},
			[]string{"to"},
		),
		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truek_order_transitions_total",
				Help: "Total P2P order status transitions.",
			},
			[]string{"to"},
		),
		NotifierFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "truek_notifier_failures_total",
				Help: "Total trade message notifications that failed to publish.",
			},
		),
	}

	registry.MustRegister(
		m.SettlementsTotal,
		m.SettlementDuration,
		m.TradeTransitions,
		m.OrderTransitions,
		m.NotifierFailures,
	)

	return m
}

func (m *Metrics) ObserveSettlement(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SettlementsTotal.WithLabelValues(kind, status).Inc()
	m.SettlementDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) TradeTransition(to string) {
	if m == nil {
		return
	}
	m.TradeTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) OrderTransition(to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) NotifierFailure() {
	if m == nil {
		return
	}
	m.NotifierFailures.Inc()
}
