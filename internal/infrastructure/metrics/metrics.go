package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Posting metrics
	TransactionsPosted   prometheus.Counter
	TransactionsRejected *prometheus.CounterVec
	TransactionsReplayed prometheus.Counter
	TransactionsReversed prometheus.Counter
	PostingDuration      prometheus.Histogram
	EntryAmount          prometheus.Histogram

	// Account metrics
	AccountsCreated   prometheus.Counter
	AccountBalance    *prometheus.GaugeVec
	AccountOperations *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationRuns     prometheus.Counter
	ReconciliationDuration prometheus.Histogram
	DiscrepanciesFound     prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections prometheus.Gauge
	DBErrors      *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		// Posting metrics
		TransactionsPosted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_transactions_posted_total",
			Help: "Total number of transactions posted",
		}),
		TransactionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_transactions_rejected_total",
				Help: "Total number of rejected postings by reason",
			},
			[]string{"reason"},
		),
		TransactionsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_transactions_replayed_total",
			Help: "Total number of idempotent replays served",
		}),
		TransactionsReversed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_transactions_reversed_total",
			Help: "Total number of transactions reversed",
		}),
		PostingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_posting_duration_seconds",
			Help:    "Duration of posting operations",
			Buckets: prometheus.DefBuckets,
		}),
		EntryAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_entry_amount",
			Help:    "Journal entry amounts",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),

		// Account metrics
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_accounts_created_total",
			Help: "Total number of accounts created",
		}),
		AccountBalance: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tally_account_balance",
				Help: "Current account balance",
			},
			[]string{"account_id", "currency"},
		),
		AccountOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_account_operations_total",
				Help: "Total account operations by type",
			},
			[]string{"operation"},
		),

		// Reconciliation metrics
		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_reconciliation_runs_total",
			Help: "Total number of reconciliation runs",
		}),
		ReconciliationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_reconciliation_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: prometheus.DefBuckets,
		}),
		DiscrepanciesFound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tally_reconciliation_discrepancies_total",
			Help: "Total number of balance discrepancies detected",
		}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_db_queries_total",
				Help: "Total database queries",
			},
			[]string{"operation", "table"},
		),
		DBDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_db_query_duration_seconds",
				Help:    "Database query duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		DBConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tally_db_connections",
			Help: "Current number of database connections",
		}),
		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_db_errors_total",
				Help: "Total database errors",
			},
			[]string{"operation"},
		),

		// Redis metrics
		RedisOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),
	}
}
