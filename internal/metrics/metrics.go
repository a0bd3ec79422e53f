package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "appointo"

var (
	once sync.Once

	slotQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_queries_total",
			Help:      "Count of slot queries by outcome kind.",
		},
		[]string{"result"},
	)

	slotQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_query_duration_seconds",
			Help:      "Time spent computing slots for one query.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)

	conflictCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_cache_total",
			Help:      "Conflict cache lookups by result.",
		},
		[]string{"result"},
	)

	bookingWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_writes_total",
			Help:      "Booking writes by operation and result.",
		},
		[]string{"operation", "result"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders processed by delivery status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	sinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_failures_total",
			Help:      "Failed deliveries of booking events per sink.",
		},
		[]string{"sink"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(slotQueries, slotQueryDuration, conflictCache, bookingWrites, remindersSent, httpRequests, sinkFailures)
	})
}

func ObserveSlotQuery(result string, elapsed time.Duration) {
	slotQueries.WithLabelValues(result).Inc()
	slotQueryDuration.Observe(elapsed.Seconds())
}

func IncConflictCache(result string) {
	conflictCache.WithLabelValues(result).Inc()
}

func IncBookingWrite(operation, result string) {
	bookingWrites.WithLabelValues(operation, result).Inc()
}

func IncReminder(status string) {
	remindersSent.WithLabelValues(status).Inc()
}

// IncHTTP counts a request. status is the class, e.g. "2xx".
func IncHTTP(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

func IncSinkFailure(sink string) {
	sinkFailures.WithLabelValues(sink).Inc()
}
