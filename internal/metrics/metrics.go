// Package metrics exposes bridge and serial counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "laserlink"

// BridgeModes lists the values the bridge_mode gauge can take.
var BridgeModes = []string{"idle", "listening", "testing", "error", "stopped"}

// Registry owns the daemon collectors. The zero value is not usable; call New.
type Registry struct {
	reg          *prom.Registry
	sessions     *prom.CounterVec
	duration     prom.Histogram
	serialBytes  *prom.CounterVec
	decodeErrors *prom.CounterVec
	bridgeMode   *prom.GaugeVec
}

// New builds a registry with the Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prom.NewRegistry(),
		sessions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "sessions_total",
			Help:      "finished handshake sessions",
		}, []string{"status", "stage"}),
		duration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: promNamespace,
			Name:      "session_duration_seconds",
			Help:      "trigger-to-final cycle time",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		serialBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Subsystem: "serial",
			Name:      "bytes_total",
			Help:      "bytes moved on each serial port",
		}, []string{"port", "direction"}),
		decodeErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Name:      "decode_errors_total",
			Help:      "received lines dropped because they could not be decoded",
		}, []string{"port"}),
		bridgeMode: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: promNamespace,
			Name:      "bridge_mode",
			Help:      "1 for the current bridge mode, 0 otherwise",
		}, []string{"mode"}),
	}
	r.reg.MustRegister(
		r.sessions,
		r.duration,
		r.serialBytes,
		r.decodeErrors,
		r.bridgeMode,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.SetBridgeMode("stopped")
	return r
}

// ObserveBytes counts serial traffic.
func (r *Registry) ObserveBytes(port, direction string, n int) {
	r.serialBytes.WithLabelValues(port, direction).Add(float64(n))
}

// ObserveDecodeError counts an undecodable line.
func (r *Registry) ObserveDecodeError(port string) {
	r.decodeErrors.WithLabelValues(port).Inc()
}

// ObserveSession records a finished session.
func (r *Registry) ObserveSession(status, stage string, cycle time.Duration) {
	r.sessions.WithLabelValues(status, stage).Inc()
	if cycle > 0 {
		r.duration.Observe(cycle.Seconds())
	}
}

// SetBridgeMode flips the bridge_mode gauge to mode.
func (r *Registry) SetBridgeMode(mode string) {
	for _, m := range BridgeModes {
		value := 0.0
		if m == mode {
			value = 1
		}
		r.bridgeMode.WithLabelValues(m).Set(value)
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prom.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
