package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountsCommitOutcomes(t *testing.T) {
	before := testutil.ToFloat64(commitOutcomes.WithLabelValues("committed"))
	NewRecorder().CommitOutcome("committed")
	assert.Equal(t, before+1, testutil.ToFloat64(commitOutcomes.WithLabelValues("committed")))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/redeem/{phone}/{token}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/redeem/919876543210/abc123", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(httpDuration, "http_request_duration_seconds"))
}

func TestWatchQueue_SetsGauge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan struct{})
	go func() {
		WatchQueue(ctx, "test", 5*time.Millisecond, func(context.Context) (int64, error) {
			if atomic.AddInt32(&calls, 1) == 2 {
				cancel()
			}
			return 7, nil
		})
		close(done)
	}()
	<-done
	assert.Equal(t, float64(7), testutil.ToFloat64(queueLength.WithLabelValues("test")))
}
