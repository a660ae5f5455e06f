// Package metrics exposes a dedicated Prometheus registry for the core's
// own operational metrics (ledger posting, scheduling, sync runs, the
// status API), grounded on the teacher's metrics/metrics.go — same
// promauto.With(registry)-vector style, same Init() go-collector
// registration, swapped from per-exchange-trader labels to this system's
// identity/account/phase labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Registry = prometheus.NewRegistry()

var (
	// ============================================
	// Ledger Engine Metrics
	// ============================================

	LedgerEntriesPostedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "ledger",
			Name:      "entries_posted_total",
			Help:      "Total number of ledger entries posted",
		},
		[]string{"identity", "account", "side"},
	)

	LedgerEntriesRejectedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "ledger",
			Name:      "entries_rejected_total",
			Help:      "Total number of ledger entries rejected by compliance checks",
		},
		[]string{"identity", "reason"},
	)

	LedgerAccountBalance = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tbotcore",
			Subsystem: "ledger",
			Name:      "account_balance",
			Help:      "Closing balance of an account as of the last balance query",
		},
		[]string{"identity", "account"},
	)

	// ============================================
	// Lots / Position Metrics
	// ============================================

	OpenPositionQty = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tbotcore",
			Subsystem: "lots",
			Name:      "open_position_qty",
			Help:      "Remaining quantity of an open lot position",
		},
		[]string{"identity", "symbol", "side"},
	)

	RealizedPnLTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "lots",
			Name:      "realized_pnl_total",
			Help:      "Cumulative realized P&L from lot closures",
		},
		[]string{"identity", "symbol"},
	)

	// ============================================
	// Scheduler / Dispatcher Metrics
	// ============================================

	PhaseDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tbotcore",
			Subsystem: "scheduler",
			Name:      "phase_duration_seconds",
			Help:      "Duration of one dispatched phase invocation",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"identity", "phase"},
	)

	DispatchTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "scheduler",
			Name:      "dispatch_total",
			Help:      "Total number of phase dispatch attempts",
		},
		[]string{"identity", "phase", "result"}, // result: "ok", "skipped", "error"
	)

	LifecycleState = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tbotcore",
			Subsystem: "scheduler",
			Name:      "lifecycle_state",
			Help:      "1 for the current lifecycle state, 0 for all others",
		},
		[]string{"identity", "state"},
	)

	// ============================================
	// Broker Sync Driver Metrics
	// ============================================

	SyncRunDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tbotcore",
			Subsystem: "syncdriver",
			Name:      "run_duration_seconds",
			Help:      "Duration of one broker sync run",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"identity"},
	)

	SyncRunPostedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "syncdriver",
			Name:      "posted_total",
			Help:      "Total number of trade/cash records posted by sync runs",
		},
		[]string{"identity"},
	)

	SyncRunRejectedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "syncdriver",
			Name:      "rejected_total",
			Help:      "Total number of records rejected by compliance during sync",
		},
		[]string{"identity"},
	)

	SyncRunDeduplicatedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbotcore",
			Subsystem: "syncdriver",
			Name:      "deduplicated_total",
			Help:      "Total number of duplicate records dropped by sync runs",
		},
		[]string{"identity"},
	)

	// ============================================
	// HTTP Status API Metrics
	// ============================================

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tbotcore",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"method", "path", "status"},
	)

	WebsocketClientsConnected = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tbotcore",
			Subsystem: "api",
			Name:      "websocket_clients_connected",
			Help:      "Number of currently connected /ws/status clients",
		},
	)
)

var lifecycleStates = []string{
	"initializing", "provisioning", "bootstrapping", "registration", "idle", "analyzing", "trading",
	"monitoring", "updating", "running", "graceful_closing_positions", "shutdown_triggered", "error",
}

// SetLifecycleState zeroes every other known state's gauge and sets the
// current one to 1, mirroring the teacher's SetTraderRunning boolean-gauge
// idiom extended to a small enum.
func SetLifecycleState(identity, state string) {
	for _, s := range lifecycleStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		LifecycleState.WithLabelValues(identity, s).Set(v)
	}
}

// RecordDispatch increments the phase dispatch counter.
func RecordDispatch(identity, phase, result string) {
	DispatchTotal.WithLabelValues(identity, phase, result).Inc()
}

// RecordPhaseDuration observes one phase's wall-clock duration.
func RecordPhaseDuration(identity, phase string, seconds float64) {
	PhaseDuration.WithLabelValues(identity, phase).Observe(seconds)
}

// RecordLedgerPost increments the posted-entries counter for one leg.
func RecordLedgerPost(identity, account, side string) {
	LedgerEntriesPostedTotal.WithLabelValues(identity, account, side).Inc()
}

// RecordLedgerReject increments the rejected-entries counter.
func RecordLedgerReject(identity, reason string) {
	LedgerEntriesRejectedTotal.WithLabelValues(identity, reason).Inc()
}

// SetAccountBalance records one account's latest closing balance.
func SetAccountBalance(identity, account string, balance float64) {
	LedgerAccountBalance.WithLabelValues(identity, account).Set(balance)
}

// SetOpenPositionQty records one symbol/side's remaining open quantity.
func SetOpenPositionQty(identity, symbol, side string, qty float64) {
	OpenPositionQty.WithLabelValues(identity, symbol, side).Set(qty)
}

// ClearOpenPosition removes a closed position's gauge series.
func ClearOpenPosition(identity, symbol, side string) {
	OpenPositionQty.DeleteLabelValues(identity, symbol, side)
}

// RecordRealizedPnL adds one closure's realized P&L magnitude to the
// cumulative flow counter; sign is tracked separately via ledger balances.
func RecordRealizedPnL(identity, symbol string, delta float64) {
	if delta < 0 {
		delta = -delta
	}
	RealizedPnLTotal.WithLabelValues(identity, symbol).Add(delta)
}

// RecordSyncRun records one sync run's outcome counts and duration.
func RecordSyncRun(identity string, posted, rejected, deduplicated int, seconds float64) {
	SyncRunDuration.WithLabelValues(identity).Observe(seconds)
	SyncRunPostedTotal.WithLabelValues(identity).Add(float64(posted))
	SyncRunRejectedTotal.WithLabelValues(identity).Add(float64(rejected))
	SyncRunDeduplicatedTotal.WithLabelValues(identity).Add(float64(deduplicated))
}

// RecordHTTPRequest observes one HTTP request's duration for the status API.
func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// Init registers the standard Go/process collectors on the dedicated
// registry, matching the teacher's metrics.Init().
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
