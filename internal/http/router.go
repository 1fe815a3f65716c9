package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/wikimedia/performance-coal/internal/cache"
	"github.com/wikimedia/performance-coal/internal/domain"
	"github.com/wikimedia/performance-coal/internal/metrics"
)

// defaultMaxAge is applied to any response that did not set its own
// Cache-Control header.
const defaultMaxAge = 30

// Aggregator assembles the full metrics envelope for one period.
type Aggregator interface {
	Aggregate(ctx context.Context, periodName string) (domain.MetricsEnvelope, int64, error)
}

// Router wires HTTP endpoints to the metrics service and response cache.
type Router struct {
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	svc     Aggregator
	store   cache.Store
	debug   bool

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	cacheEvents        *prometheus.CounterVec
	aggregateResults   *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies. When debug is set, the
// response cache is bypassed entirely so local iteration always recomputes.
func NewRouter(logger *slog.Logger, svc Aggregator, store cache.Store, debug bool) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		svc:    svc,
		store:  store,
		debug:  debug,
	}
	if r.store == nil {
		r.store = cache.NullStore{}
	}
	r.initMetrics()
	r.register()
	r.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r.mux)
	return r
}

// ServeHTTP delegates to the CORS-wrapped mux, defaulting Cache-Control on
// any response that left it unset.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(&cacheControlWriter{ResponseWriter: w}, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/v1/metrics", r.audit(r.instrument("/v1/metrics", r.handleMetrics)))
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	r.mux.Handle("/metrics", promhttp.Handler())
}

// cachedResponse is the record persisted in the response cache: the exact
// rendered body plus the max-age it was served with, so cache hits replay
// the prior response byte for byte.
type cachedResponse struct {
	MaxAge int64           `json:"max_age"`
	Body   json.RawMessage `json:"body"`
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}

	// Different periods cache independently: the key is the full request
	// identity, path and query included.
	key := req.URL.RequestURI()
	if r.debug {
		r.recordCacheEvent("bypass")
	} else if raw, ok := r.store.Get(req.Context(), key); ok {
		var entry cachedResponse
		if err := json.Unmarshal(raw, &entry); err == nil {
			r.recordCacheEvent("hit")
			r.writeEnvelope(w, entry.Body, entry.MaxAge)
			return
		}
		r.recordCacheEvent("miss")
	} else {
		r.recordCacheEvent("miss")
	}

	periodName := req.URL.Query().Get("period")
	if periodName == "" {
		periodName = "day"
	}

	envelope, retention, err := r.svc.Aggregate(req.Context(), periodName)
	if err != nil {
		r.renderAggregateError(w, err)
		return
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		r.recordAggregateResult("encode_error")
		writeError(w, http.StatusInternalServerError, "failed to encode metrics")
		return
	}
	r.recordAggregateResult("success")
	r.writeEnvelope(w, body, retention)

	if !r.debug {
		record, err := json.Marshal(cachedResponse{MaxAge: retention, Body: body})
		if err == nil {
			r.store.Set(req.Context(), key, record, time.Duration(retention)*time.Second)
			r.recordCacheEvent("store")
		}
	}
}

func (r *Router) writeEnvelope(w http.ResponseWriter, body []byte, maxAge int64) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// renderAggregateError maps service failures to the error envelope contract.
// Both invalid periods and backend failures render as 401, matching the
// behavior the API's consumers were built against.
func (r *Router) renderAggregateError(w http.ResponseWriter, err error) {
	if errors.Is(err, metrics.ErrInvalidPeriod) {
		r.recordAggregateResult("invalid_period")
		writeError(w, http.StatusUnauthorized, `Invalid value for "period".`)
		return
	}
	var unavailable *metrics.UnavailableError
	if errors.As(err, &unavailable) {
		r.recordAggregateResult("backend_error")
		writeError(w, http.StatusUnauthorized,
			fmt.Sprintf("Unable to retrieve metric coal.%s from graphite server", unavailable.Metric))
		return
	}
	r.recordAggregateResult("error")
	writeError(w, http.StatusInternalServerError, "failed to aggregate metrics")
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"cache":     r.store.Name(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// cacheControlWriter applies the default Cache-Control before headers flush,
// unless the handler set its own.
type cacheControlWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (cw *cacheControlWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		if cw.Header().Get("Cache-Control") == "" {
			cw.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", defaultMaxAge))
		}
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheControlWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
