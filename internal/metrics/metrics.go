// Package metrics exposes fund and agent activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of one fund. All methods are safe on a nil *Registry.
type Registry struct {
	reg *prometheus.Registry

	NAV               prometheus.Gauge
	TotalSupply       prometheus.Gauge
	SharePrice        prometheus.Gauge
	Operations        *prometheus.CounterVec
	Swaps             *prometheus.CounterVec
	RebalanceDuration prometheus.Histogram
	AgentJobs         *prometheus.CounterVec
}

// NewRegistry creates the collectors on a private registry, labelled with the fund symbol.
func NewRegistry(fundSymbol string) *Registry {
	constLabels := prometheus.Labels{"fund": fundSymbol}
	r := &Registry{
		reg: prometheus.NewRegistry(),

		NAV: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fund_nav_accounting",
			Help:        "Net asset value in whole accounting asset units",
			ConstLabels: constLabels,
		}),

		TotalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fund_share_supply",
			Help:        "Total share supply in whole shares",
			ConstLabels: constLabels,
		}),

		SharePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fund_share_price_accounting",
			Help:        "NAV per share in accounting asset units",
			ConstLabels: constLabels,
		}),

		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fund_operations_total",
			Help:        "Fund operations by kind and result",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),

		Swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fund_swaps_total",
			Help:        "Swaps executed by the fund by direction",
			ConstLabels: constLabels,
		}, []string{"direction"}),

		RebalanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "fund_rebalance_duration_seconds",
			Help:        "Wall time of a rebalance",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			ConstLabels: constLabels,
		}),

		AgentJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fund_agent_jobs_total",
			Help:        "Agent jobs by name and result",
			ConstLabels: constLabels,
		}, []string{"job", "result"}),
	}

	r.reg.MustRegister(r.NAV, r.TotalSupply, r.SharePrice, r.Operations, r.Swaps, r.RebalanceDuration, r.AgentJobs)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveOperation(operation, result string) {
	if r == nil {
		return
	}
	r.Operations.WithLabelValues(operation, result).Inc()
}

func (r *Registry) ObserveSwap(direction string) {
	if r == nil {
		return
	}
	r.Swaps.WithLabelValues(direction).Inc()
}

func (r *Registry) ObserveRebalance(d time.Duration) {
	if r == nil {
		return
	}
	r.RebalanceDuration.Observe(d.Seconds())
}

func (r *Registry) ObserveAgentJob(job, result string) {
	if r == nil {
		return
	}
	r.AgentJobs.WithLabelValues(job, result).Inc()
}

// SetFundState updates the NAV, supply and share price gauges.
func (r *Registry) SetFundState(nav, supply, sharePrice float64) {
	if r == nil {
		return
	}
	r.NAV.Set(nav)
	r.TotalSupply.Set(supply)
	r.SharePrice.Set(sharePrice)
}
