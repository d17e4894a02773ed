// Package metrics 定义推荐引擎的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hybridrec"

var (
	// RecommendRequests 按模式与结果统计请求数（outcome: ok / empty / error）
	RecommendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommend_requests_total",
			Help:      "Total number of recommendation requests",
		},
		[]string{"mode", "outcome"},
	)

	RecommendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommend_duration_seconds",
			Help:      "Recommendation request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"mode"},
	)

	GeneratorCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_candidates_total",
			Help:      "Candidates produced per generator",
		},
		[]string{"generator"},
	)

	// SignalStoreFailures 行为日志读取失败（超时/熔断/错误）后退化为纯上下文
	SignalStoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_store_failures_total",
			Help:      "Interaction store reads that degraded to context-only recommendations",
		},
	)

	// ModelFallbacks learned 召回使用中性权重的次数（reason: missing / stale）
	ModelFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Learned generator requests served with neutral weights",
		},
		[]string{"reason"},
	)

	CatalogDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_drops_total",
			Help:      "Recommendations dropped because the catalog item was unavailable",
		},
	)

	Impressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impressions_total",
			Help:      "Recorded impressions per algorithm",
		},
		[]string{"algorithm"},
	)

	// Clicks 中 algorithm=unattributed 的分桶代表埋点缺口
	Clicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_total",
			Help:      "Recorded clicks per algorithm",
		},
		[]string{"algorithm"},
	)

	FeedbackWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_write_failures_total",
			Help:      "Failed feedback store writes",
		},
		[]string{"op"},
	)

	ModelRefits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_refits_total",
			Help:      "Learned model refit attempts",
		},
		[]string{"outcome"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RecommendRequests,
		RecommendDuration,
		GeneratorCandidates,
		SignalStoreFailures,
		ModelFallbacks,
		CatalogDrops,
		Impressions,
		Clicks,
		FeedbackWriteFailures,
		ModelRefits,
		httpRequestDuration,
	)
}

// Middleware 记录 HTTP 请求耗时，path 使用 chi 路由模板避免高基数。
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			path := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				path = rc.RoutePattern()
			}
			httpRequestDuration.
				WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}
