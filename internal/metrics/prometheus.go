package metrics

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus metrics of a sponsored transfer run
type Metrics struct {
	registry *prometheus.Registry

	// Run outcome counter, labelled by final state
	Runs *prometheus.CounterVec

	// Stage duration histogram
	StageDuration *prometheus.HistogramVec

	// Fee quote gauges
	GasPrice   prometheus.Gauge
	GasLimit   prometheus.Gauge
	FeeNative  prometheus.Gauge
	FeeToken   prometheus.Gauge
	RateNative prometheus.Gauge
	RateToken  prometheus.Gauge

	// Inclusion
	InclusionLatency prometheus.Histogram
	GasUsed          prometheus.Gauge

	// HTTP server
	server *http.Server
	mu     sync.Mutex
}

// NewMetrics creates a new Metrics instance with the given namespace on
// its own registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs by final state",
		}, []string{"state"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage", "result"}),
		GasPrice:   gauge("gas_price_wei", "Quoted gas price in wei"),
		GasLimit:   gauge("gas_limit", "Estimated gas limit"),
		FeeNative:  gauge("fee_native_wei", "Fee in the native currency"),
		FeeToken:   gauge("fee_token_units", "Fee converted to token base units"),
		RateNative: gauge("rate_native", "Native currency price feed value"),
		RateToken:  gauge("rate_token", "Token price feed value"),
		InclusionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inclusion_latency_seconds",
			Help:      "Time from submission to receipt in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		GasUsed: gauge("gas_used", "Gas used by the included transaction"),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Start starts the HTTP server for Prometheus metrics
func (m *Metrics) Start(_ context.Context, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return fmt.Errorf("metrics server already running")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server error", "err", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (m *Metrics) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil
	return err
}

// IsRunning returns true if the metrics server is running
func (m *Metrics) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server != nil
}

// Push sends the current values to a Prometheus Pushgateway
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

// RecordStageDuration records the duration of a pipeline stage
func (m *Metrics) RecordStageDuration(stage string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StageDuration.WithLabelValues(stage, result).Observe(duration.Seconds())
}

// RecordQuote records the gas price and limit used for the fee
func (m *Metrics) RecordQuote(gasPrice *big.Int, gasLimit uint64) {
	m.GasPrice.Set(toFloat(gasPrice))
	m.GasLimit.Set(float64(gasLimit))
}

// RecordFee records the native fee, the rates and the converted fee
func (m *Metrics) RecordFee(feeNative, rateNative, rateToken, feeToken *big.Int) {
	m.FeeNative.Set(toFloat(feeNative))
	m.RateNative.Set(toFloat(rateNative))
	m.RateToken.Set(toFloat(rateToken))
	m.FeeToken.Set(toFloat(feeToken))
}

// RecordIncluded records inclusion latency and gas used
func (m *Metrics) RecordIncluded(latency time.Duration, gasUsed uint64) {
	m.InclusionLatency.Observe(latency.Seconds())
	m.GasUsed.Set(float64(gasUsed))
}

// RecordRun counts a finished run by its final state
func (m *Metrics) RecordRun(state string) {
	m.Runs.WithLabelValues(state).Inc()
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
