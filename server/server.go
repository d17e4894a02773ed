// Package server 通过 chi 暴露推荐引擎的 HTTP 接口。
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/service"
)

// DefaultAccuracyPeriod 未指定 from 时统计最近 7 天。
const DefaultAccuracyPeriod = 7 * 24 * time.Hour

// Engine 是 HTTP 层依赖的引擎能力，由 *service.Engine 实现。
type Engine interface {
	Recommend(ctx context.Context, req service.Request) (*service.Response, error)
	Stats(ctx context.Context, userID string) *service.StatsResponse
	Accuracy(ctx context.Context, period core.Period) (*service.AccuracyReport, error)
	TrackClick(ctx context.Context, req service.ClickRequest) (core.ClickEvent, error)
	DefaultLimit() int
}

// Server 是 HTTP handler 集合。用户身份来自 user_id 参数，鉴权由外部网关负责。
type Server struct {
	engine   Engine
	validate *validator.Validate
	logger   zerolog.Logger

	// Now 可在测试中替换
	Now func() time.Time
}

func New(engine Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine:   engine,
		validate: validator.New(),
		logger:   logging.Component(logger, "http"),
		Now:      time.Now,
	}
}

// Routes 返回完整的路由树。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/recommendations", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/accuracy", s.handleAccuracy)
		r.Post("/click-tracking", s.handleClick)
		r.Get("/{mode}", s.handleRecommend)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := s.engine.DefaultLimit()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "limit must be an integer"))
			return
		}
		limit = n
	}

	resp, err := s.engine.Recommend(r.Context(), service.Request{
		UserID: q.Get("user_id"),
		Mode:   core.Algorithm(chi.URLParam(r, "mode")),
		Limit:  limit,
		Device: q.Get("device"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, r, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "user_id is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats(r.Context(), userID))
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	period, err := s.parsePeriod(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.engine.Accuracy(r.Context(), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parsePeriod from/to 为 RFC3339，to 默认当前时间，from 默认 to 之前 7 天。
func (s *Server) parsePeriod(r *http.Request) (core.Period, error) {
	q := r.URL.Query()
	to := s.Now()
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.Period{}, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "to must be RFC3339")
		}
		to = t
	}
	from := to.Add(-DefaultAccuracyPeriod)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.Period{}, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "from must be RFC3339")
		}
		from = t
	}
	return core.Period{From: from, To: to}, nil
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req service.ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, "invalid JSON body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, err.Error()))
		return
	}
	click, err := s.engine.TrackClick(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, click)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 输入错误返回 400，其余返回 500 并记录日志。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Code: core.ErrorCodeInternalError, Message: "internal error"}

	var de *core.DomainError
	switch {
	case core.IsInvalidInput(err):
		status = http.StatusBadRequest
		body = errorBody{Code: core.ErrorCodeInvalidInput, Message: err.Error()}
	case errors.As(err, &de) && de.Code == core.ErrorCodeUnavailable:
		status = http.StatusServiceUnavailable
		body = errorBody{Code: de.Code, Message: de.Message}
	default:
		s.logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
