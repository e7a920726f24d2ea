package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Control loop metrics
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total number of completed polling cycles",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Distribution of cycle wall time",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Position metrics
	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_entries_total",
			Help: "Total number of position entries",
		},
		[]string{"symbol"},
	)

	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exits_total",
			Help: "Total number of position exit fills",
		},
		[]string{"symbol", "reason"},
	)

	averagingFillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_averaging_fills_total",
			Help: "Total number of averaging-down fills",
		},
		[]string{"symbol"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Number of currently open positions",
		},
	)

	// Performance metrics
	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_daily_pnl",
			Help: "Realized profit and loss for the current UTC day",
		},
	)

	accountBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_account_balance",
			Help: "Last observed account balance",
		},
	)

	consecutiveLosses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_consecutive_losses",
			Help: "Current consecutive-loss streak",
		},
	)

	entryScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_entry_score",
			Help:    "Distribution of entry scores on executed entries",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
		[]string{"symbol"},
	)

	// Preset and regime state, exposed as one-hot gauges
	activePreset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_active_preset",
			Help: "Active preset (1 for the active one, 0 otherwise)",
		},
		[]string{"preset"},
	)

	marketRegime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_market_regime",
			Help: "Classified regime (-1 bearish, 0 neutral, 1 bullish)",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(entriesTotal)
	prometheus.MustRegister(exitsTotal)
	prometheus.MustRegister(averagingFillsTotal)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(accountBalance)
	prometheus.MustRegister(consecutiveLosses)
	prometheus.MustRegister(entryScore)
	prometheus.MustRegister(activePreset)
	prometheus.MustRegister(marketRegime)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordCycle records a completed polling cycle
func RecordCycle(seconds float64) {
	cyclesTotal.Inc()
	cycleDuration.Observe(seconds)
}

// RecordEntry records an executed entry
func RecordEntry(symbol string, score float64) {
	entriesTotal.WithLabelValues(symbol).Inc()
	entryScore.WithLabelValues(symbol).Observe(score)
}

// RecordExit records an exit fill with its reason
func RecordExit(symbol, reason string) {
	exitsTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordAveragingFill records an averaging-down fill
func RecordAveragingFill(symbol string) {
	averagingFillsTotal.WithLabelValues(symbol).Inc()
}

// UpdateOpenPositions updates the open position gauge
func UpdateOpenPositions(count int) {
	openPositions.Set(float64(count))
}

// UpdateDailyPnL updates the daily realized PnL gauge
func UpdateDailyPnL(pnl float64) {
	realizedPnL.Set(pnl)
}

// UpdateBalance updates the account balance gauge
func UpdateBalance(balance float64) {
	accountBalance.Set(balance)
}

// UpdateConsecutiveLosses updates the loss streak gauge
func UpdateConsecutiveLosses(count int) {
	consecutiveLosses.Set(float64(count))
}

// UpdateActivePreset sets the one-hot preset gauges
func UpdateActivePreset(active string, names []string) {
	for _, name := range names {
		v := 0.0
		if name == active {
			v = 1.0
		}
		activePreset.WithLabelValues(name).Set(v)
	}
}

// UpdateRegime updates the regime gauge
func UpdateRegime(regime int) {
	marketRegime.Set(float64(regime))
}

// RecordError records an error by category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
