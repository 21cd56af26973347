package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exported on /metrics. Rejections are labeled by taxonomy reason so
// a spike in one class (say out_of_range) is visible without log digging.
var (
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_opened_total",
		Help: "Number of attendance sessions opened.",
	})

	CheckinsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_checkins_accepted_total",
		Help: "Number of check-ins accepted and durably recorded.",
	})

	CheckinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_rejected_total",
		Help: "Number of check-ins rejected, by reason.",
	}, []string{"reason"})
)
