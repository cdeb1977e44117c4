package observability

import "github.com/prometheus/client_golang/prometheus"

// Admission outcomes recorded by the booking engine.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeClassFull = "class_full"
	OutcomeDuplicate = "duplicate"
	OutcomeInactive  = "inactive"
)

var (
	BookingAdmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "booking",
		Name:      "admissions_total",
		Help:      "Booking requests that reached admission control, labeled by outcome.",
	}, []string{"outcome"})

	BookingCancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "booking",
		Name:      "cancellations_total",
		Help:      "Bookings moved from CONFIRMED to CANCELLED.",
	})

	CapacityOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "capacity",
		Name:      "operations_total",
		Help:      "Capacity ledger operations, labeled by result (reserved, exceeded, released, noop).",
	}, []string{"result"})

	PaymentsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "payment",
		Name:      "recorded_total",
		Help:      "Payments persisted by the payment ledger, labeled by method.",
	}, []string{"method"})

	PaymentPartialFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "payment",
		Name:      "partial_failures_total",
		Help:      "Payments persisted whose member status update did not complete.",
	})

	EventPublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Domain events that could not be handed to the broker, labeled by routing key.",
	}, []string{"routing_key"})
)

func init() {
	prometheus.MustRegister(
		BookingAdmissions,
		BookingCancellations,
		CapacityOperations,
		PaymentsRecorded,
		PaymentPartialFailures,
		EventPublishFailures,
	)
}
