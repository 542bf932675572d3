package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/geminid/internal/gemini"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geminid",
			Subsystem: "gemini",
			Name:      "responses_total",
			Help:      "Total gemini responses written, by status.",
		},
		[]string{"status", "class"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "geminid",
			Subsystem: "gemini",
			Name:      "exchange_duration_seconds",
			Help:      "Time from accepted request line to written response.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"class"},
	)
	framingErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "geminid",
			Subsystem: "gemini",
			Name:      "framing_errors_total",
			Help:      "Connections closed without a response because the request line never arrived intact.",
		},
	)
	activeConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "geminid",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Connections currently being served.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, framingErrors, activeConns)
	})
}

func RecordExchange(status gemini.Status, duration time.Duration) {
	RegisterMetrics()
	class := status.Class().String()
	exchanges.WithLabelValues(strconv.Itoa(int(status)), class).Inc()
	exchangeDuration.WithLabelValues(class).Observe(duration.Seconds())
}

func RecordFramingError() {
	RegisterMetrics()
	framingErrors.Inc()
}

// TrackConn counts an open connection; the returned func releases it.
func TrackConn() func() {
	RegisterMetrics()
	activeConns.Inc()
	return activeConns.Dec
}

// ServeMetrics exposes the default registry on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeMetricsListener(ctx, ln)
}

func ServeMetricsListener(ctx context.Context, ln net.Listener) error {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
