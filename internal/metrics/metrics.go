package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	schedulerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reswatch",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler scan cycles completed.",
		},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reswatch",
			Name:      "jobs_in_flight",
			Help:      "Job processors currently running.",
		},
	)

	pollResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reswatch",
			Name:      "poll_results_total",
			Help:      "Availability poll outcomes by result.",
		},
		[]string{"result"},
	)

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reswatch",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reswatch",
			Name:      "http_requests_total",
			Help:      "Operator API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(schedulerTicks, jobsInFlight, pollResults, bookingAttempts, httpRequests)
	})
}

func IncTick() {
	schedulerTicks.Inc()
}

func JobStarted() {
	jobsInFlight.Inc()
}

func JobFinished() {
	jobsInFlight.Dec()
}

// IncPoll records an availability poll outcome: ok, error, rate_limited.
func IncPoll(result string) {
	pollResults.WithLabelValues(result).Inc()
}

// IncBooking records a booking outcome: success, conflict, failed.
func IncBooking(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
