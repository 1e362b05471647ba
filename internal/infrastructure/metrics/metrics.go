package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	linksIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_links_issued_total",
			Help: "Redemption links issued, by outcome",
		},
		[]string{"outcome"},
	)

	commitOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_commits_total",
			Help: "Commit attempts by final outcome",
		},
		[]string{"outcome"},
	)

	voucherOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucher_operations_total",
			Help: "Voucher reserve/confirm/release/redeem operations",
		},
		[]string{"operation", "status"},
	)

	bulkRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_allocation_rows_total",
			Help: "Bulk allocation rows by result",
		},
		[]string{"result"},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_tasks_total",
			Help: "Delivery task outcomes",
		},
		[]string{"kind", "status"},
	)

	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_queue_length",
			Help: "Current delivery queue length",
		},
		[]string{"queue"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

// Recorder reports engine events to Prometheus.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) LinkIssued(outcome string) { linksIssued.WithLabelValues(outcome).Inc() }

func (Recorder) CommitOutcome(outcome string) { commitOutcomes.WithLabelValues(outcome).Inc() }

func (Recorder) VoucherOperation(op, status string) {
	voucherOperations.WithLabelValues(op, status).Inc()
}

func (Recorder) BulkRows(result string, n int) { bulkRows.WithLabelValues(result).Add(float64(n)) }

func (Recorder) Delivery(kind, status string) { deliveries.WithLabelValues(kind, status).Inc() }

// Nop discards every event. Used where metrics are disabled and in tests.
type Nop struct{}

func (Nop) LinkIssued(string)               {}
func (Nop) CommitOutcome(string)            {}
func (Nop) VoucherOperation(string, string) {}
func (Nop) BulkRows(string, int)            {}
func (Nop) Delivery(string, string)         {}

// Handler exposes the default registry for scraping.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware observes request latency labelled by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

// LengthFunc reports the current length of a named queue.
type LengthFunc func(ctx context.Context) (int64, error)

// WatchQueue samples a queue's length every interval until ctx is done.
func WatchQueue(ctx context.Context, name string, interval time.Duration, length LengthFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := length(ctx)
			if err != nil {
				slog.Warn("queue length check failed", "queue", name, "err", err)
				continue
			}
			queueLength.WithLabelValues(name).Set(float64(n))
		}
	}
}
