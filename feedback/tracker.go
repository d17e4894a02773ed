// Package feedback 记录曝光与点击，并把点击归因到最近的曝光。
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// DefaultAttributionWindow 点击只归因到窗口内的曝光。
const DefaultAttributionWindow = 30 * time.Minute

// Tracker 是反馈追踪器。曝光与点击只追加，不修改。
type Tracker struct {
	store  core.FeedbackStore
	window time.Duration
	logger zerolog.Logger

	// Now 可在测试中替换
	Now func() time.Time
}

func NewTracker(store core.FeedbackStore, window time.Duration, logger zerolog.Logger) *Tracker {
	if window <= 0 {
		window = DefaultAttributionWindow
	}
	return &Tracker{
		store:  store,
		window: window,
		logger: logging.Component(logger, "feedback"),
		Now:    time.Now,
	}
}

// RecordImpression 为列表中每条结果生成一条曝光（位置从 1 开始），一次批量写入。
// 写入失败时整批失败，返回错误由调用方决定是否忽略。
func (t *Tracker) RecordImpression(
	ctx context.Context,
	userID string,
	algorithm core.Algorithm,
	recs []*core.Recommendation,
	rc core.RequestContext,
) ([]core.Impression, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	shownAt := t.Now()
	imps := make([]core.Impression, 0, len(recs))
	for i, rec := range recs {
		imps = append(imps, core.Impression{
			ID:        uuid.NewString(),
			UserID:    userID,
			Key:       rec.Key,
			Position:  i + 1,
			Algorithm: algorithm,
			Sources:   rec.Sources,
			Score:     rec.FinalScore,
			Context:   rc,
			Features:  rec.Features,
			ShownAt:   shownAt,
		})
	}
	if err := t.store.AppendImpressions(ctx, imps); err != nil {
		metrics.FeedbackWriteFailures.WithLabelValues("impressions").Inc()
		return nil, fmt.Errorf("append impressions: %w", err)
	}
	metrics.Impressions.WithLabelValues(string(algorithm)).Add(float64(len(imps)))
	return imps, nil
}

// RecordClick 记录点击。
//
// 归因：取 (user, item) 在 [clickedAt-window, clickedAt] 内最近的一条曝光，
// 命中时沿用曝光的算法与位置；未命中时 Attributed=false，仍然落盘，并计入 unattributed 分桶。
func (t *Tracker) RecordClick(
	ctx context.Context,
	userID string,
	key core.ItemKey,
	algorithm core.Algorithm,
	position int,
) (core.ClickEvent, error) {
	clickedAt := t.Now()
	click := core.ClickEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Position:  position,
		Algorithm: algorithm,
		ClickedAt: clickedAt,
	}

	imp, err := t.store.LatestImpression(ctx, userID, key, clickedAt.Add(-t.window), clickedAt)
	if err != nil {
		// 查询失败按未归因处理，点击本身不能丢
		t.logger.Error().Err(err).Str("user_id", userID).Str("item", key.String()).Msg("impression lookup failed")
	}
	if imp != nil {
		click.Attributed = true
		click.ImpressionID = imp.ID
		click.Algorithm = imp.Algorithm
		click.Position = imp.Position
	} else {
		t.logger.Warn().
			Str("user_id", userID).
			Str("item", key.String()).
			Str("claimed_algorithm", string(algorithm)).
			Msg("click without impression in attribution window")
	}

	if err := t.store.AppendClick(ctx, click); err != nil {
		metrics.FeedbackWriteFailures.WithLabelValues("click").Inc()
		return core.ClickEvent{}, fmt.Errorf("append click: %w", err)
	}

	bucket := click.Algorithm
	if !click.Attributed {
		bucket = core.AlgorithmUnattributed
	}
	metrics.Clicks.WithLabelValues(string(bucket)).Inc()
	return click, nil
}
