package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvloznov/fraud-features/internal/logger"
)

const namespace = "fraud_features"

// Metrics holds the run and row counters of the transform job.
type Metrics struct {
	Runs         *prometheus.CounterVec // by status
	Rows         *prometheus.CounterVec // by stage: read, dropped, written
	Recoveries   *prometheus.CounterVec // by kind: coerced_score, invalid_log_amount
	StepDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Transform runs by final status.",
		}, []string{"status"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows by pipeline stage.",
		}, []string{"stage"}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_recoveries_total",
			Help:      "Values replaced by NULL during feature derivation.",
		}, []string{"kind"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Rows, m.Recoveries, m.StepDuration)
	}
	return m
}

// ObserveStep records how long step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// AddRows adds n to the stage counter.
func (m *Metrics) AddRows(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Rows.WithLabelValues(stage).Add(float64(n))
}

// AddRecoveries adds n to the recovery counter of kind.
func (m *Metrics) AddRecoveries(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Recoveries.WithLabelValues(kind).Add(float64(n))
}

// RunFinished counts a run by status.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

// Expose serves g on :port/metrics until ctx is done. Port 0 disables it.
func Expose(ctx context.Context, port int, g prometheus.Gatherer) {
	if port == 0 {
		return
	}
	log := logger.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Int("port", port).Msg("Metrics listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
