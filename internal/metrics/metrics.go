package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the assembly pipeline counters
type Metrics struct {
	EventsReceived       *prometheus.CounterVec
	MalformedEvents      *prometheus.CounterVec
	ProductsAssembled    prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	OrphanedAssemblies   *prometheus.CounterVec
	ProcessingErrors     *prometheus.CounterVec
	NotificationsSent    prometheus.Counter
	NotificationsDropped prometheus.Counter
}

// New registers the pipeline counters with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assembly_events_received_total",
			Help: "Inbound analysis events received, by event type",
		}, []string{"event_type"}),
		MalformedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assembly_events_malformed_total",
			Help: "Inbound events dropped for schema violations, by event type",
		}, []string{"event_type"}),
		ProductsAssembled: factory.NewCounter(prometheus.CounterOpts{
			Name: "assembly_products_assembled_total",
			Help: "Products assembled and persisted",
		}),
		DuplicatesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "assembly_duplicates_suppressed_total",
			Help: "Assemblies skipped because the product already existed",
		}),
		OrphanedAssemblies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assembly_orphaned_total",
			Help: "Staging records expired before completion, by missing facet",
		}, []string{"missing_facet"}),
		ProcessingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assembly_processing_errors_total",
			Help: "Transient processing failures that trigger redelivery, by event type",
		}, []string{"event_type"}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "assembly_notifications_sent_total",
			Help: "New-product notifications delivered to subscribers",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assembly_notifications_dropped_total",
			Help: "New-product notifications dropped for slow or closed subscribers",
		}),
	}
}

// NewUnregistered builds counters on a private registry, for tests
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
