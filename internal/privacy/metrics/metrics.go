package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RecordsAnonymised     prometheus.Counter
	AlreadyAnonymised     prometheus.Counter
	AnonymiseErrors       prometheus.Counter
	CascadeAnonymisations prometheus.Counter
}

// New registers the engine counters. Pass nil to use the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RecordsAnonymised: factory.NewCounter(prometheus.CounterOpts{
			Name: "veil_records_anonymised_total",
			Help: "Total number of records anonymised",
		}),
		AlreadyAnonymised: factory.NewCounter(prometheus.CounterOpts{
			Name: "veil_records_already_anonymised_total",
			Help: "Total number of anonymise calls skipped because the record was already anonymised",
		}),
		AnonymiseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "veil_anonymise_errors_total",
			Help: "Total number of failed anonymise calls",
		}),
		CascadeAnonymisations: factory.NewCounter(prometheus.CounterOpts{
			Name: "veil_cascade_anonymisations_total",
			Help: "Total number of records anonymised because a record they reference was deleted",
		}),
	}
}

func (m *Metrics) IncrementAnonymised() {
	if m != nil {
		m.RecordsAnonymised.Inc()
	}
}

func (m *Metrics) IncrementAlreadyAnonymised() {
	if m != nil {
		m.AlreadyAnonymised.Inc()
	}
}

func (m *Metrics) IncrementErrors() {
	if m != nil {
		m.AnonymiseErrors.Inc()
	}
}

func (m *Metrics) IncrementCascade() {
	if m != nil {
		m.CascadeAnonymisations.Inc()
	}
}
