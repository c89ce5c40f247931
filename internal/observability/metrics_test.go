package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"qitp/internal/core"
	"qitp/internal/infra/persistence/memory"
	"qitp/pkg/domain"
)

func TestObserveCountsStoreOperations(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	store := core.Instrument(memory.NewStore(), m)
	ctx := context.Background()
	_, err = store.Create(ctx, domain.TableEnterprise, domain.Record{"name": "X"})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.TableEnterprise, domain.Record{"name": "Y"})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.Table("bogus"), domain.Record{})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.storeOps.WithLabelValues("enterprise", "create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("bogus", "create", "error")))

	m.Observe(ctx, "flush", true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("", "flush", "success")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	for _, path := range []string{"/api/a", "/api/b/c", "/healthz"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/*", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "qitp_http_requests_total"))
}

func TestAccessLogLevels(t *testing.T) {
	observed, logs := observer.New(zap.InfoLevel)
	logger := zap.New(observed)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(AccessLog(logger))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
