package vector

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_sessions_opened_total",
			Help: "Total number of driver sessions opened, by driver and mode.",
		},
		[]string{"driver", "mode"},
	)

	sessionOpenFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_session_open_failures_total",
			Help: "Total number of collections that failed to open, by mode.",
		},
		[]string{"mode"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vector_active_sessions",
			Help: "Number of currently open driver sessions.",
		},
	)

	featuresWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_features_written_total",
			Help: "Total number of records handed to driver sessions for writing.",
		},
		[]string{"driver"},
	)

	featuresRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_features_read_total",
			Help: "Total number of features yielded by iterators.",
		},
		[]string{"driver"},
	)

	virtualFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vector_virtual_files",
			Help: "Number of in-memory virtual files currently mapped.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsOpened)
	prometheus.MustRegister(sessionOpenFailures)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(featuresWritten)
	prometheus.MustRegister(featuresRead)
	prometheus.MustRegister(virtualFiles)

	for _, m := range []Mode{ModeRead, ModeAppend, ModeWrite} {
		sessionOpenFailures.WithLabelValues(string(m))
	}
}
