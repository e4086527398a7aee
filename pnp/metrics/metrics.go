// Package metrics holds the protocol counters of a device client.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog"
)

const (
	metricNamespace = "edgepnp"
	metricSubsystem = "pnp"
)

var (
	AcksSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "acks_sent_total",
			Help:      "Writable property acknowledgments written, by ack code",
		},
		[]string{"code"},
	)

	CommandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "commands_total",
			Help:      "Command invocations answered, by response status",
		},
		[]string{"status"},
	)

	ReportedPatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "reported_patches_total",
			Help:      "Reported property patches handed to the transport, by result",
		},
		[]string{"result"},
	)

	TelemetrySent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "telemetry_sent_total",
			Help:      "Telemetry messages handed to the transport, by result",
		},
		[]string{"result"},
	)

	Diagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "diagnostics_total",
			Help:      "Diagnostic events, by kind",
		},
		[]string{"kind"},
	)
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var registerOnce sync.Once

// Register adds every counter to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AcksSent,
			CommandsHandled,
			ReportedPatches,
			TelemetrySent,
			Diagnostics,
		)
	})
}

// Result maps a send error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Code formats a status code label.
func Code(code int) string {
	return strconv.Itoa(code)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("metrics server shutdown: %v", err)
		}
	}()

	klog.Infof("serve metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
