// Package signal 把原始行为事件聚合为按类别的加权信号（SignalVector）。
package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// ErrorMarker 是行为日志不可用时写入日志的可检索标记。
const ErrorMarker = "signal_store_unavailable"

// Config 聚合参数。
type Config struct {
	// Weights 按行为类型的权重，未配置的类型权重为 0
	Weights map[core.EventKind]float64
	// HalfLife 指数衰减半衰期
	HalfLife time.Duration
	// ReadTimeout 只作用于行为日志读取，超时后退化为空信号
	ReadTimeout time.Duration
	// CacheTTL 画像缓存时间（秒），0 表示不缓存
	CacheTTL int
	// BreakerFailures 连续失败多少次后熔断
	BreakerFailures uint32
	// BreakerTimeout 熔断后多久进入半开
	BreakerTimeout time.Duration
}

// DefaultWeights 收藏 > 制作/购买 > 评论 > 浏览 > 点击。
func DefaultWeights() map[core.EventKind]float64 {
	return map[core.EventKind]float64{
		core.EventFavorite: 5,
		core.EventPrepare:  4,
		core.EventReview:   3,
		core.EventView:     1,
		core.EventClick:    0.5,
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		HalfLife:        7 * 24 * time.Hour,
		ReadTimeout:     300 * time.Millisecond,
		CacheTTL:        30,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Aggregator 是信号聚合器。
// 读取失败时不会向调用方返回错误：返回空画像并标记 Degraded。
type Aggregator struct {
	store   core.InteractionStore
	cache   core.Store
	cfg     Config
	breaker *gobreaker.CircuitBreaker[[]core.InteractionEvent]
	logger  zerolog.Logger

	// Now 可在测试中替换
	Now func() time.Time
}

// Option 配置 Aggregator。
type Option func(*Aggregator)

// WithCache 使用 KV 缓存画像（短 TTL）。
func WithCache(s core.Store) Option {
	return func(a *Aggregator) { a.cache = s }
}

// WithClock 替换时钟。
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.Now = now }
}

func NewAggregator(store core.InteractionStore, cfg Config, logger zerolog.Logger, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.Weights == nil {
		cfg.Weights = def.Weights
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	a := &Aggregator{
		store:  store,
		cfg:    cfg,
		logger: logging.Component(logger, "signal"),
		Now:    time.Now,
	}
	threshold := cfg.BreakerFailures
	a.breaker = gobreaker.NewCircuitBreaker[[]core.InteractionEvent](gobreaker.Settings{
		Name:    "interaction-store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate 返回按类别的信号向量。零事件返回空 map。
func (a *Aggregator) Aggregate(ctx context.Context, userID string, window core.Window) map[core.ItemType]core.SignalVector {
	return a.Profile(ctx, userID, window).Signals
}

// Profile 返回完整画像（类别信号 + 物品交互）。
func (a *Aggregator) Profile(ctx context.Context, userID string, window core.Window) *core.UserProfile {
	if userID == "" {
		return core.NewUserProfile(userID)
	}
	if p := a.loadCached(ctx, userID, window); p != nil {
		return p
	}

	events, err := a.read(ctx, userID, window)
	if err != nil {
		metrics.SignalStoreFailures.Inc()
		a.logger.Error().
			Err(err).
			Str("marker", ErrorMarker).
			Str("user_id", userID).
			Msg("interaction store unavailable, falling back to context-only")
		p := core.NewUserProfile(userID)
		p.Degraded = true
		return p
	}

	p := Build(userID, events, a.Now(), a.cfg)
	a.storeCached(ctx, userID, window, p)
	return p
}

// read 带超时与熔断读取行为日志。
func (a *Aggregator) read(ctx context.Context, userID string, window core.Window) ([]core.InteractionEvent, error) {
	if a.store == nil {
		return nil, nil
	}
	readCtx := ctx
	if a.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, a.cfg.ReadTimeout)
		defer cancel()
	}
	return a.breaker.Execute(func() ([]core.InteractionEvent, error) {
		type result struct {
			events []core.InteractionEvent
			err    error
		}
		ch := make(chan result, 1)
		go func() {
			evs, err := a.store.QueryEvents(readCtx, userID, window)
			ch <- result{events: evs, err: err}
		}()
		select {
		case r := <-ch:
			return r.events, r.err
		case <-readCtx.Done():
			return nil, fmt.Errorf("query events: %w", readCtx.Err())
		}
	})
}

// Build 纯函数：给定事件与时刻计算画像，结果对相同输入是确定的。
//
// 每个事件贡献 weight(kind) * 0.5^(age/halfLife)，未来时间戳按 age=0 处理。
func Build(userID string, events []core.InteractionEvent, now time.Time, cfg Config) *core.UserProfile {
	p := core.NewUserProfile(userID)
	weights := cfg.Weights
	if weights == nil {
		weights = DefaultWeights()
	}
	halfLife := cfg.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultConfig().HalfLife
	}

	for _, ev := range events {
		if _, err := core.ParseItemType(string(ev.ItemType)); err != nil {
			continue
		}
		contrib := weights[ev.Kind] * Decay(now.Sub(ev.Timestamp), halfLife)

		sv := p.Signals[ev.ItemType]
		sv.ItemType = ev.ItemType
		sv.InteractionCount++
		sv.WeightedScore += contrib
		if ev.Timestamp.After(sv.LastInteractionAt) {
			sv.LastInteractionAt = ev.Timestamp
		}
		p.Signals[ev.ItemType] = sv

		key := ev.Key()
		it := p.Items[key]
		it.Key = key
		it.Count++
		it.WeightedScore += contrib
		it.Strong = it.Strong || ev.Kind.IsStrong()
		if ev.Timestamp.After(it.LastAt) {
			it.LastAt = ev.Timestamp
		}
		p.Items[key] = it
		p.TotalEvents++
	}

	p.ItemList = make([]core.ItemInteraction, 0, len(p.Items))
	for _, it := range p.Items {
		p.ItemList = append(p.ItemList, it)
	}
	sort.Slice(p.ItemList, func(i, j int) bool { return p.ItemList[i].Key.Less(p.ItemList[j].Key) })
	return p
}

// Decay 指数衰减，单调不增，age<=0 时为 1。
func Decay(age, halfLife time.Duration) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func (a *Aggregator) cacheKey(userID string, window core.Window) string {
	return fmt.Sprintf("signal:%s:%d:%d", userID, window.Count, int64(window.Span/time.Second))
}

func (a *Aggregator) loadCached(ctx context.Context, userID string, window core.Window) *core.UserProfile {
	if a.cache == nil || a.cfg.CacheTTL <= 0 {
		return nil
	}
	data, err := a.cache.Get(ctx, a.cacheKey(userID, window))
	if err != nil {
		if !errors.Is(err, core.ErrStoreNotFound) {
			a.logger.Debug().Err(err).Msg("signal cache read failed")
		}
		return nil
	}
	var p core.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	p.RebuildIndex()
	return &p
}

func (a *Aggregator) storeCached(ctx context.Context, userID string, window core.Window, p *core.UserProfile) {
	if a.cache == nil || a.cfg.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, a.cacheKey(userID, window), data, a.cfg.CacheTTL); err != nil {
		a.logger.Debug().Err(err).Msg("signal cache write failed")
	}
}
