// Package service 编排推荐链路：信号聚合 -> 并行召回 -> 融合 -> 后处理 -> 曝光记录。
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/evaluate"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
	"github.com/rushteam/hybridrec/signal"
)

// UserFeatureSource 提供外部特征存储中的用户级特征（Feast）。
type UserFeatureSource interface {
	UserFeatures(ctx context.Context, userID string) (map[string]float64, error)
}

// Limits 控制返回条数。
type Limits struct {
	Default int
	Max     int
	// Overfetch 融合阶段多取的倍数，给目录过滤留余量
	Overfetch int
}

// DefaultLimits 默认 10 条，最多 50 条，融合阶段取 2 倍。
func DefaultLimits() Limits {
	return Limits{Default: 10, Max: 50, Overfetch: 2}
}

// Options 是 Engine 的依赖。除 Generators 外都可以为空。
type Options struct {
	Aggregator *signal.Aggregator
	// Window 读取行为日志的窗口，零值表示不限制
	Window   core.Window
	Features UserFeatureSource

	Generators       []recall.Generator
	GeneratorTimeout time.Duration
	MaxConcurrent    int

	Combiner *rank.Combiner
	// Pipeline 为空时使用 filter.catalog -> rerank.context_boost -> rerank.topn
	Pipeline *pipeline.Pipeline
	Catalog  core.CatalogStore

	Tracker  *feedback.Tracker
	Analyzer *evaluate.Analyzer

	Limits Limits
	Logger zerolog.Logger
}

// Engine 是推荐引擎。除 learned 召回的权重快照外不持有跨请求的可变状态。
type Engine struct {
	aggregator *signal.Aggregator
	window     core.Window
	features   UserFeatureSource
	fanouts    map[core.Algorithm]*recall.Fanout
	learned    *recall.Learned
	combiner   *rank.Combiner
	pipeline   *pipeline.Pipeline
	tracker    *feedback.Tracker
	analyzer   *evaluate.Analyzer
	limits     Limits
	logger     zerolog.Logger

	// Now 可在测试中替换
	Now func() time.Time
}

// New 创建 Engine。hybrid 模式使用全部召回源，单一模式只使用同名召回源。
func New(opts Options) *Engine {
	logger := logging.Component(opts.Logger, "engine")

	limits := opts.Limits
	def := DefaultLimits()
	if limits.Default <= 0 {
		limits.Default = def.Default
	}
	if limits.Max < limits.Default {
		limits.Max = max(def.Max, limits.Default)
	}
	if limits.Overfetch < 1 {
		limits.Overfetch = def.Overfetch
	}

	e := &Engine{
		aggregator: opts.Aggregator,
		window:     opts.Window,
		features:   opts.Features,
		fanouts:    make(map[core.Algorithm]*recall.Fanout),
		combiner:   opts.Combiner,
		pipeline:   opts.Pipeline,
		tracker:    opts.Tracker,
		analyzer:   opts.Analyzer,
		limits:     limits,
		logger:     logger,
		Now:        time.Now,
	}
	if e.combiner == nil {
		e.combiner = rank.NewCombiner(nil)
	}
	if e.pipeline == nil {
		e.pipeline = DefaultPipeline(opts.Catalog, opts.Logger)
	}

	newFanout := func(gs []recall.Generator) *recall.Fanout {
		return &recall.Fanout{
			Generators:    gs,
			Timeout:       opts.GeneratorTimeout,
			MaxConcurrent: opts.MaxConcurrent,
			Logger:        logger,
		}
	}
	for _, mode := range []core.Algorithm{core.AlgorithmPersonalized, core.AlgorithmAdvanced, core.AlgorithmML} {
		var gs []recall.Generator
		for _, g := range opts.Generators {
			if g.Name() == mode {
				gs = append(gs, g)
			}
		}
		e.fanouts[mode] = newFanout(gs)
	}
	e.fanouts[core.AlgorithmHybrid] = newFanout(opts.Generators)

	for _, g := range opts.Generators {
		if l, ok := g.(*recall.Learned); ok {
			e.learned = l
		}
	}
	return e
}

// DefaultPipeline 目录补全 -> 上下文调权 -> 按请求条数截断。catalog 为空时跳过目录补全。
func DefaultPipeline(catalog core.CatalogStore, logger zerolog.Logger) *pipeline.Pipeline {
	nodes := make([]pipeline.Node, 0, 3)
	if catalog != nil {
		nodes = append(nodes, &filter.CatalogNode{Catalog: catalog, Logger: logging.Component(logger, "filter.catalog")})
	}
	nodes = append(nodes, rerank.NewContextBooster(nil), &rerank.TopNNode{FromRequest: true})
	return &pipeline.Pipeline{Nodes: nodes}
}

// Request 是一次推荐请求。Limit 为 0 时返回空列表。
type Request struct {
	UserID string
	Mode   core.Algorithm
	Limit  int
	Device string
	// Now 为零值时使用当前时间
	Now time.Time
}

// Response 是推荐结果。Degraded 表示行为日志不可用，结果只基于上下文。
type Response struct {
	UserID          string                 `json:"user_id"`
	Mode            core.Algorithm         `json:"mode"`
	Context         core.RequestContext    `json:"context"`
	Recommendations []*core.Recommendation `json:"recommendations"`
	Degraded        bool                   `json:"degraded"`
}

// DefaultLimit 是调用方未指定条数时使用的值。
func (e *Engine) DefaultLimit() int { return e.limits.Default }

func (e *Engine) resolveLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, core.ErrInvalidLimit
	}
	return min(limit, e.limits.Max), nil
}

// Recommend 生成一次推荐。
//
// 行为日志、Feast、目录、曝光写入的失败都在内部吸收；
// 只有模式非法、条数非法与没有配置召回源会返回错误。
func (e *Engine) Recommend(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	mode, err := core.ParseMode(string(req.Mode))
	if err != nil {
		metrics.RecommendRequests.WithLabelValues("invalid", "error").Inc()
		return nil, err
	}
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		metrics.RecommendRequests.WithLabelValues(string(mode), outcome).Inc()
		metrics.RecommendDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	limit, err := e.resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = e.Now()
	}
	rc := core.NewRequestContext(now, req.Device)
	resp = &Response{
		UserID:          req.UserID,
		Mode:            mode,
		Context:         rc,
		Recommendations: []*core.Recommendation{},
	}
	if limit == 0 {
		outcome = "empty"
		return resp, nil
	}

	rctx := &core.RecommendContext{
		UserID:       req.UserID,
		Profile:      e.profile(ctx, req.UserID),
		Context:      rc,
		Limit:        limit,
		UserFeatures: e.userFeatures(ctx, req.UserID),
	}
	resp.Degraded = rctx.Profile.Degraded

	fetch := limit * e.limits.Overfetch
	lists, err := e.fanouts[mode].Run(ctx, rctx, fetch)
	if err != nil {
		return nil, err
	}
	recs := e.combiner.Combine(lists, fetch)

	recs, err = e.pipeline.Run(ctx, rctx, recs)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	if e.learned != nil {
		e.learned.Annotate(ctx, rctx, recs)
	}
	if len(recs) == 0 {
		outcome = "empty"
		return resp, nil
	}
	resp.Recommendations = recs

	e.recordImpressions(ctx, req.UserID, mode, recs, rc)
	return resp, nil
}

func (e *Engine) profile(ctx context.Context, userID string) *core.UserProfile {
	if e.aggregator == nil || userID == "" {
		return core.NewUserProfile(userID)
	}
	return e.aggregator.Profile(ctx, userID, e.window)
}

func (e *Engine) userFeatures(ctx context.Context, userID string) map[string]float64 {
	if e.features == nil || userID == "" {
		return nil
	}
	f, err := e.features.UserFeatures(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("user features unavailable")
		return nil
	}
	return f
}

// recordImpressions 写入失败只记日志，推荐结果照常返回。
func (e *Engine) recordImpressions(ctx context.Context, userID string, mode core.Algorithm, recs []*core.Recommendation, rc core.RequestContext) {
	if e.tracker == nil || userID == "" {
		return
	}
	if _, err := e.tracker.RecordImpression(ctx, userID, mode, recs, rc); err != nil {
		e.logger.Error().Err(err).
			Str("user_id", userID).
			Str("mode", string(mode)).
			Int("count", len(recs)).
			Msg("record impressions failed")
	}
}
