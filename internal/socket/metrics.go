package socket

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whiteboard"

type Metrics struct {
	registry *prometheus.Registry

	ConnectedSessions prometheus.Gauge

	Connections        prometheus.Counter
	Disconnects        prometheus.Counter
	AuthFailures       prometheus.Counter
	MessagesIn         prometheus.Counter
	MessagesOut        prometheus.Counter
	RejectedFrames     prometheus.Counter
	DroppedDeliveries  prometheus.Counter
	SlowEvictions      prometheus.Counter
	HeartbeatEvictions prometheus.Counter
	StoreErrors        prometheus.Counter

	Routed *prometheus.CounterVec

	StartTime time.Time
}

// NewMetrics registers all collectors on a private registry so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg, StartTime: time.Now()}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}

	m.ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "connected_sessions", Help: "Live websocket sessions.",
	})
	reg.MustRegister(m.ConnectedSessions)

	m.Connections = counter("connections_total", "Sessions opened.")
	m.Disconnects = counter("disconnects_total", "Sessions closed for any reason.")
	m.AuthFailures = counter("auth_failures_total", "Upgrades closed for a missing or invalid token.")
	m.MessagesIn = counter("frames_in_total", "Frames read from clients.")
	m.MessagesOut = counter("frames_out_total", "Frames written to clients.")
	m.RejectedFrames = counter("rejected_frames_total", "Malformed, unknown or invalid client frames.")
	m.DroppedDeliveries = counter("dropped_deliveries_total", "Cursor and preview frames dropped for full send buffers.")
	m.SlowEvictions = counter("slow_evictions_total", "Sessions evicted for a full send buffer on a shape frame.")
	m.HeartbeatEvictions = counter("heartbeat_evictions_total", "Sessions evicted by the heartbeat.")
	m.StoreErrors = counter("store_errors_total", "Membership store or handler failures.")

	m.Routed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "routed_messages_total", Help: "Client messages dispatched, by type.",
	}, []string{"type"})
	reg.MustRegister(m.Routed)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "uptime_seconds", Help: "Seconds since start.",
	}, func() float64 { return time.Since(m.StartTime).Seconds() }))

	return m
}

type queueStats interface {
	Stats() (enqueued, dropped, written, errors uint64)
}

// ObserveQueueWriter exports the queue writer's counters.
func (m *Metrics) ObserveQueueWriter(w queueStats) {
	stat := func(name, help string, pick func(e, d, wr, er uint64) uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: name, Help: help,
		}, func() float64 {
			return float64(pick(w.Stats()))
		}))
	}
	stat("enqueued_total", "Intents accepted for the durable queue.", func(e, _, _, _ uint64) uint64 { return e })
	stat("dropped_total", "Intents dropped before reaching the durable queue.", func(_, d, _, _ uint64) uint64 { return d })
	stat("written_total", "Intents pushed to the durable queue.", func(_, _, wr, _ uint64) uint64 { return wr })
	stat("errors_total", "Failed pushes to the durable queue.", func(_, _, _, er uint64) uint64 { return er })
}

type workerStats interface {
	Stats() (processed, failed uint64)
}

// ObserveWorker exports a co-located persistence worker's counters.
func (m *Metrics) ObserveWorker(w workerStats) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "processed_total", Help: "Intents written to the shape store.",
	}, func() float64 {
		p, _ := w.Stats()
		return float64(p)
	}))
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "failed_total", Help: "Queue items that failed processing.",
	}, func() float64 {
		_, f := w.Stats()
		return float64(f)
	}))
}

func MetricsHandler(m *Metrics) http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
