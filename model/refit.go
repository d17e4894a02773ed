package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
)

// Refitter 周期性地用反馈数据重训 learned 召回的权重。
// 实现了 suture.Service（Serve(ctx) error）。
type Refitter struct {
	Feedback  core.FeedbackStore
	Holder    *Holder
	Snapshots *SnapshotStore // 可为 nil，不持久化
	Trainer   *Trainer

	// Interval 重训间隔；Lookback 每次使用的反馈时间跨度
	Interval time.Duration
	Lookback time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

func (r *Refitter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Restore 从持久化存储恢复快照，不存在时什么也不做。
func (r *Refitter) Restore(ctx context.Context) error {
	if r.Snapshots == nil {
		return nil
	}
	s, err := r.Snapshots.Load(ctx)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil
		}
		return fmt.Errorf("restore snapshot: %w", err)
	}
	r.Holder.Store(s)
	r.Logger.Info().Str("version", s.Version).Time("fitted_at", s.FittedAt).Msg("model snapshot restored")
	return nil
}

// RefitOnce 读取 period 内的曝光与点击，样本足够时训练并发布新快照。
// 样本不足返回 ErrNotEnoughExamples，当前快照保持不变。
func (r *Refitter) RefitOnce(ctx context.Context, period core.Period) (*Snapshot, error) {
	imps, err := r.Feedback.ListImpressions(ctx, period)
	if err != nil {
		metrics.ModelRefits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list impressions: %w", err)
	}
	clicks, err := r.Feedback.ListClicks(ctx, period)
	if err != nil {
		metrics.ModelRefits.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list clicks: %w", err)
	}

	examples := BuildExamples(imps, clicks)
	trainer := r.Trainer
	if trainer == nil {
		trainer = DefaultTrainer()
	}
	snap, err := trainer.Fit(examples, r.now())
	if err != nil {
		if errors.Is(err, ErrNotEnoughExamples) {
			metrics.ModelRefits.WithLabelValues("skipped").Inc()
		} else {
			metrics.ModelRefits.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	r.Holder.Store(snap)
	if r.Snapshots != nil {
		if err := r.Snapshots.Save(ctx, snap); err != nil {
			r.Logger.Error().Err(err).Str("version", snap.Version).Msg("persist model snapshot failed")
		}
	}
	metrics.ModelRefits.WithLabelValues("ok").Inc()
	r.Logger.Info().
		Str("version", snap.Version).
		Int("examples", snap.Examples).
		Msg("model refit published")
	return snap, nil
}

// Serve 启动时恢复快照，之后按 Interval 重训，直到 ctx 取消。
func (r *Refitter) Serve(ctx context.Context) error {
	if err := r.Restore(ctx); err != nil {
		r.Logger.Warn().Err(err).Msg("model snapshot restore failed")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	lookback := r.Lookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := r.now()
			_, err := r.RefitOnce(ctx, core.Period{From: now.Add(-lookback), To: now})
			if err != nil && !errors.Is(err, ErrNotEnoughExamples) {
				r.Logger.Error().Err(err).Msg("model refit failed")
			}
		}
	}
}

func (r *Refitter) String() string { return "model-refitter" }

// BuildExamples 把曝光转成样本：被归因点击的曝光标为正样本。
// 没有特征的曝光跳过。
func BuildExamples(imps []core.Impression, clicks []core.ClickEvent) []Example {
	clicked := make(map[string]struct{}, len(clicks))
	for _, c := range clicks {
		if c.Attributed && c.ImpressionID != "" {
			clicked[c.ImpressionID] = struct{}{}
		}
	}
	out := make([]Example, 0, len(imps))
	for _, imp := range imps {
		if len(imp.Features) == 0 {
			continue
		}
		var label float64
		if _, ok := clicked[imp.ID]; ok {
			label = 1
		}
		out = append(out, Example{Features: imp.Features, Label: label})
	}
	return out
}
