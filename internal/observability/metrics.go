package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/schema"
	"github.com/danmuck/plantlink/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantlink",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Commands sent to the device by outcome.",
		},
		[]string{"node", "command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantlink",
			Subsystem: "session",
			Name:      "command_duration_seconds",
			Help:      "Round-trip time from write to response.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"node", "command"},
	)
	notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantlink",
			Subsystem: "session",
			Name:      "notifications_dropped_total",
			Help:      "Notifications received with no command outstanding.",
		},
		[]string{"node"},
	)
	deviceCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantlink",
			Subsystem: "emulator",
			Name:      "commands_total",
			Help:      "Commands handled by the emulated device.",
		},
		[]string{"node", "command", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			commandsTotal, commandDuration, notificationsDropped,
			deviceCommands,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDeviceCommand(node string, cmd schema.CommandID, status schema.Status) {
	RegisterMetrics()
	deviceCommands.WithLabelValues(node, cmd.String(), status.String()).Inc()
}

// Outcome buckets a command error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrTimeout):
		return "timeout"
	case errors.Is(err, session.ErrDevice):
		return "device_error"
	case errors.Is(err, session.ErrTransport):
		return "transport_error"
	case errors.Is(err, session.ErrSessionBusy):
		return "busy"
	default:
		return "error"
	}
}

// SessionMetrics is a session.Observer that records command outcomes.
type SessionMetrics struct {
	node string
}

func NewSessionMetrics(node string) *SessionMetrics {
	RegisterMetrics()
	return &SessionMetrics{node: node}
}

func (m *SessionMetrics) CommandStarted(schema.CommandID, uint8) {}

func (m *SessionMetrics) CommandFinished(cmd schema.CommandID, elapsed time.Duration, err error) {
	commandsTotal.WithLabelValues(m.node, cmd.String(), Outcome(err)).Inc()
	if err == nil {
		commandDuration.WithLabelValues(m.node, cmd.String()).Observe(elapsed.Seconds())
	}
}

func (m *SessionMetrics) NotificationDropped() {
	notificationsDropped.WithLabelValues(m.node).Inc()
}

var _ session.Observer = (*SessionMetrics)(nil)
