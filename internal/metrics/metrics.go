package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles counts detector cycles, successful or not
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxdarr_poll_cycles_total",
		Help: "Detector poll cycles by result.",
	}, []string{"result"})

	// WatchesDetected counts new watch records admitted to the ledger
	WatchesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxdarr_watches_detected_total",
		Help: "New finished movies admitted to the ledger.",
	})

	// NotificationsDelivered counts confirmed notification dispatches
	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boxdarr_notifications_delivered_total",
		Help: "Watch notifications confirmed delivered.",
	})

	// DiarySubmissions counts diary sync outcomes
	DiarySubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxdarr_diary_submissions_total",
		Help: "Diary submission attempts by result.",
	}, []string{"result"})
)
