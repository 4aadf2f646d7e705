package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_checkouts_total",
			Help: "Committed checkouts by payment method",
		},
		[]string{"method"},
	)

	OversellRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_oversell_rejections_total",
			Help: "Checkouts aborted because a ticket type was short on capacity",
		},
	)

	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_payment_transitions_total",
			Help: "Payment status transitions",
		},
		[]string{"from", "to"},
	)

	CheckInsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_checkins_total",
			Help: "Successful ticket check-ins",
		},
	)

	TransfersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_transfers_total",
			Help: "Successful ticket ownership transfers",
		},
	)

	EventCancellations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_event_cancellations_total",
			Help: "Organizer event cancellations",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_db_tx_seconds",
			Help:    "Duration of checkout transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketing_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
