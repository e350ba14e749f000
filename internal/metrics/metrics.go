// Package metrics defines the Prometheus collectors for registry resolution,
// decisions and ledger writes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry sources
const (
	SourceCache    = "cache"
	SourcePackaged = "packaged"
)

// Fetch outcomes
const (
	FetchFresh       = "fresh"
	FetchNotModified = "not_modified"
	FetchFailed      = "failed"
	FetchSkipped     = "skipped"
)

// Ledger write modes
const (
	WriteCreate  = "create"
	WriteReplace = "replace"
)

// Metrics groups every collector exposed by addonplan
type Metrics struct {
	registrySource *prometheus.CounterVec
	registryFetch  *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	ledgerWrites   *prometheus.CounterVec
}

// New registers the collectors on registerer (the default registerer when nil)
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		registrySource: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addonplan_registry_resolutions_total",
				Help: "Registry resolutions by the layer that supplied the registry",
			},
			[]string{"source"},
		),
		registryFetch: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addonplan_registry_fetches_total",
				Help: "Remote registry fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addonplan_assisted_decisions_total",
				Help: "Assisted decisions by whether they degraded to the deterministic fallback",
			},
			[]string{"degraded"},
		),
		ledgerWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "addonplan_ledger_writes_total",
				Help: "Ledger writes by mode",
			},
			[]string{"mode"},
		),
	}
}

// Nop returns collectors attached to a throwaway registry
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveRegistrySource(source string) {
	m.registrySource.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveRegistryFetch(outcome string) {
	m.registryFetch.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAssistedDecision(degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	m.decisions.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveLedgerWrite(mode string) {
	m.ledgerWrites.WithLabelValues(mode).Inc()
}
