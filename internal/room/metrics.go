package room

import "github.com/prometheus/client_golang/prometheus"

var (
	broadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Messages broadcast across all rooms.",
	})

	// deliveriesTotal counts per-session outcomes: delivered, failed, stale.
	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deliveries_total",
		Help: "Per-session delivery attempts by result.",
	}, []string{"result"})

	persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_history_persist_failures_total",
		Help: "Broadcasts whose history ledger write failed.",
	})

	truncationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_history_truncations_total",
		Help: "History ledgers cut back after crossing the high-water mark.",
	})

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Sessions currently registered with a room actor.",
	})

	roomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Room actors currently running.",
	})
)

func init() {
	prometheus.MustRegister(broadcastsTotal, deliveriesTotal, persistFailures, truncationsTotal, sessionsActive, roomsActive)
}
