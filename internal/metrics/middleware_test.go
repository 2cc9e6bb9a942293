package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/jobs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":0,"items":[]}`))
	})
	r.Post("/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		method string
		target string
		code   string
	}{
		{http.MethodGet, "/jobs?year=2025", "200"},
		{http.MethodPost, "/jobs/42", "202"},
		{http.MethodDelete, "/nowhere/7", "404"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			counter := httpRequestsTotal.WithLabelValues(tt.method, tt.code)
			before := testutil.ToFloat64(counter)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.target, nil))

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
			assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
		})
	}
}

func TestStatusWriterDefaultsToOK(t *testing.T) {
	t.Parallel()

	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, sw.code())

	sw.WriteHeader(http.StatusTeapot)
	_, _ = sw.Write([]byte("x"))
	assert.Equal(t, http.StatusTeapot, sw.code())
}
