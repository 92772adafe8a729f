package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Logger is the structured logger for hot paths; the rest of the
	// codebase keeps logrus.
	Logger *zap.Logger

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shield_verdicts_total",
			Help: "Total number of positive ban verdicts by source",
		},
		[]string{"source"},
	)

	enforcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shield_enforcements_total",
			Help: "Total number of enforcement actions by source",
		},
		[]string{"source"},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shield_predictions_total",
			Help: "Total number of classifier outcomes",
		},
		[]string{"outcome"},
	)

	scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shield_scan_duration_seconds",
			Help:    "Time spent scanning a user against verdict providers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func Init() error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(verdictsTotal)
	prometheus.MustRegister(enforcementsTotal)
	prometheus.MustRegister(predictionsTotal)
	prometheus.MustRegister(scanDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return nil
}

func RecordVerdict(source string) {
	verdictsTotal.WithLabelValues(source).Inc()
}

func RecordEnforcement(source string) {
	enforcementsTotal.WithLabelValues(source).Inc()
}

// RecordPrediction tracks classifier outcomes: "alerted", "suppressed",
// "below_threshold" or "failed".
func RecordPrediction(outcome string) {
	predictionsTotal.WithLabelValues(outcome).Inc()
}

// StartScan returns a function recording the scan duration under the
// final outcome label.
func StartScan() func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		scanDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer exposes /metrics; managed through the lifecycle runtime.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (m *MetricsServer) Start(_ context.Context) error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
