package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	OrdersCreated    *prometheus.CounterVec
	StockConflicts   prometheus.Counter
	PaymentCallbacks *prometheus.CounterVec
	SessionFailures  prometheus.Counter
	OrdersReaped     prometheus.Counter
}

// New registers and returns the service metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders successfully created, by payment method.",
		}, []string{"payment_method"}),
		StockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_stock_conflicts_total",
			Help: "Order creations rejected due to insufficient stock.",
		}),
		PaymentCallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Payment callback reconciliations, by outcome.",
		}, []string{"outcome"}),
		SessionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_session_failures_total",
			Help: "Failed attempts to open a payment session with the provider.",
		}),
		OrdersReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_reaped_total",
			Help: "Stale pending orders cancelled by the reaper.",
		}),
	}
}

// Callback outcome label values.
const (
	CallbackOutcomePaid      = "paid"
	CallbackOutcomeFailed    = "failed"
	CallbackOutcomeReplay    = "replay"
	CallbackOutcomeUnknown   = "unknown_order"
	CallbackOutcomeTransient = "transient_error"
)
