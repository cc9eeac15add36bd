// Package metrics keeps prometheus counters for probe and execution
// outcomes. Each Recorder owns its registry; the CLI dumps it to a
// node_exporter textfile after a command finishes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleet"

// Recorder collects fleet metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Transitions    *prometheus.CounterVec
	HostsUp        prometheus.Gauge
	HostsDown      prometheus.Gauge
	ProbeDuration  *prometheus.HistogramVec
	Batches        *prometheus.CounterVec
	Executions     *prometheus.CounterVec
	URLStatus      *prometheus.GaugeVec
	CertExpiry     *prometheus.GaugeVec
	SNMPPolls      *prometheus.CounterVec
	StoreFailures  *prometheus.CounterVec
	ChunksDrained  prometheus.Counter
	DispatchTarget prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_transitions_total",
			Help:      "Host availability outcomes per probe result",
		}, []string{"outcome"}),
		HostsUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosts_up",
			Help:      "Hosts that answered in the latest batch",
		}),
		HostsDown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosts_down",
			Help:      "Hosts that did not answer in the latest batch",
		}),
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Round trip of successful probes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_batches_total",
			Help:      "Probe batches applied to the inventory",
		}, []string{"status"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Remote executions by classification",
		}, []string{"class"}),
		URLStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "url_status",
			Help:      "Latest HTTP status per monitored URL, -1 on failure",
		}, []string{"url"}),
		CertExpiry: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "url_cert_expiry_timestamp_seconds",
			Help:      "Certificate NotAfter per monitored URL",
		}, []string{"url"}),
		SNMPPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snmp_polls_total",
			Help:      "SNMP GET requests by status",
		}, []string{"status"}),
		StoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Failed store operations",
		}, []string{"operation"}),
		ChunksDrained: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_chunks_total",
			Help:      "Dispatcher chunks fully drained",
		}),
		DispatchTarget: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_targets_total",
			Help:      "Targets processed by the dispatcher",
		}),
	}
}

// WithProcessCollectors adds the go runtime and process collectors.
func (r *Recorder) WithProcessCollectors() *Recorder {
	if r == nil {
		return r
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveTransition counts one availability outcome.
func (r *Recorder) ObserveTransition(outcome string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(outcome).Inc()
}

// ObserveProbe records the delay of a successful probe.
func (r *Recorder) ObserveProbe(kind string, delay time.Duration) {
	if r == nil {
		return
	}
	r.ProbeDuration.WithLabelValues(kind).Observe(delay.Seconds())
}

// ObserveBatch records a committed or failed batch and the resulting host counts.
func (r *Recorder) ObserveBatch(ok bool, up, down int) {
	if r == nil {
		return
	}
	if !ok {
		r.Batches.WithLabelValues("error").Inc()
		r.StoreFailures.WithLabelValues("apply_batch").Inc()
		return
	}
	r.Batches.WithLabelValues("ok").Inc()
	r.HostsUp.Set(float64(up))
	r.HostsDown.Set(float64(down))
}

// ObserveExecution counts an execution by its classified return code.
func (r *Recorder) ObserveExecution(code int) {
	if r == nil {
		return
	}
	r.Executions.WithLabelValues(ExecutionClass(code)).Inc()
}

// ObserveURL records the latest check of a URL.
func (r *Recorder) ObserveURL(url string, status int, expire time.Time) {
	if r == nil {
		return
	}
	r.URLStatus.WithLabelValues(url).Set(float64(status))
	if !expire.IsZero() {
		r.CertExpiry.WithLabelValues(url).Set(float64(expire.Unix()))
	}
}

// ObserveSNMP counts one SNMP poll.
func (r *Recorder) ObserveSNMP(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.SNMPPolls.WithLabelValues("ok").Inc()
		return
	}
	r.SNMPPolls.WithLabelValues("error").Inc()
}

// ObserveStoreFailure counts a failed write outside a probe batch.
func (r *Recorder) ObserveStoreFailure(operation string) {
	if r == nil {
		return
	}
	r.StoreFailures.WithLabelValues(operation).Inc()
}

// ObserveChunk counts a drained dispatcher chunk of the given size.
func (r *Recorder) ObserveChunk(size int) {
	if r == nil {
		return
	}
	r.ChunksDrained.Inc()
	r.DispatchTarget.Add(float64(size))
}

// WriteTextfile dumps every metric in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// ExecutionClass labels a classified return code.
func ExecutionClass(code int) string {
	switch {
	case code == -2:
		return "watchdog"
	case code < 0:
		return "transport"
	case code == 0:
		return "ok"
	default:
		return "exit_" + strconv.Itoa(code)
	}
}
