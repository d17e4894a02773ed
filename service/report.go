package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/evaluate"
)

// CategoryStats 是某类别的交互统计。
type CategoryStats struct {
	ItemType          core.ItemType `json:"item_type"`
	Count             int           `json:"count"`
	WeightedScore     float64       `json:"weighted_score"`
	Share             float64       `json:"share"`
	LastInteractionAt *time.Time    `json:"last_interaction_at,omitempty"`
}

// StatsResponse 按固定类别顺序返回全部五个类别，没有交互的类别计数为 0。
type StatsResponse struct {
	UserID      string          `json:"user_id"`
	Categories  []CategoryStats `json:"categories"`
	TotalEvents int             `json:"total_events"`
	TotalWeight float64         `json:"total_weight"`
	Degraded    bool            `json:"degraded"`
}

// Stats 返回用户在各类别的聚合交互。
func (e *Engine) Stats(ctx context.Context, userID string) *StatsResponse {
	p := e.profile(ctx, userID)
	out := &StatsResponse{
		UserID:      userID,
		Categories:  make([]CategoryStats, 0, len(core.AllItemTypes())),
		TotalEvents: p.TotalEvents,
		TotalWeight: p.TotalWeight(),
		Degraded:    p.Degraded,
	}
	for _, t := range core.AllItemTypes() {
		cs := CategoryStats{ItemType: t}
		if sv, ok := p.Signals[t]; ok {
			cs.Count = sv.InteractionCount
			cs.WeightedScore = sv.WeightedScore
			cs.Share = p.CategoryShare(t)
			if !sv.LastInteractionAt.IsZero() {
				last := sv.LastInteractionAt
				cs.LastInteractionAt = &last
			}
		}
		out.Categories = append(out.Categories, cs)
	}
	return out
}

// AccuracyReport 是一个周期内的准确率报告。
type AccuracyReport struct {
	Period     core.Period                              `json:"period"`
	Algorithms map[core.Algorithm]core.AlgorithmMetrics `json:"algorithms"`
	Categories map[core.ItemType]core.AlgorithmMetrics  `json:"categories"`
	Degraded   bool                                     `json:"degraded"`
}

// Accuracy 计算周期内的指标。反馈存储不可用时返回全零指标并标记 Degraded。
func (e *Engine) Accuracy(ctx context.Context, period core.Period) (*AccuracyReport, error) {
	if !period.To.After(period.From) {
		return nil, core.ErrInvalidPeriod
	}
	report := &AccuracyReport{
		Period:     period,
		Algorithms: make(map[core.Algorithm]core.AlgorithmMetrics),
		Categories: make(map[core.ItemType]core.AlgorithmMetrics),
	}
	for _, algo := range evaluate.ReportedAlgorithms() {
		report.Algorithms[algo] = core.AlgorithmMetrics{Algorithm: algo, Period: period}
	}
	if e.analyzer == nil {
		return report, nil
	}

	algos, err := e.analyzer.ComputeMetrics(ctx, period)
	if err != nil {
		e.logger.Error().Err(err).Msg("compute metrics failed")
		report.Degraded = true
		return report, nil
	}
	report.Algorithms = algos

	cats, err := e.analyzer.ComputeCategoryMetrics(ctx, period)
	if err != nil {
		e.logger.Error().Err(err).Msg("compute category metrics failed")
		report.Degraded = true
		return report, nil
	}
	report.Categories = cats
	return report, nil
}

// ClickRequest 是一次点击上报。Algorithm 是客户端声明的来源，归因命中时以曝光记录为准。
type ClickRequest struct {
	UserID    string         `json:"user_id" validate:"required"`
	ItemType  string         `json:"item_type" validate:"required"`
	ItemID    int64          `json:"item_id" validate:"required,gt=0"`
	Position  int            `json:"position" validate:"gte=0"`
	Algorithm core.Algorithm `json:"algorithm"`
}

// TrackClick 记录点击。点击写入失败会返回错误，由调用方重试。
func (e *Engine) TrackClick(ctx context.Context, req ClickRequest) (core.ClickEvent, error) {
	t, err := core.ParseItemType(req.ItemType)
	if err != nil {
		return core.ClickEvent{}, err
	}
	if req.Algorithm != "" {
		if _, err := core.ParseMode(string(req.Algorithm)); err != nil {
			return core.ClickEvent{}, err
		}
	}
	if e.tracker == nil {
		return core.ClickEvent{}, fmt.Errorf("engine: feedback tracker not configured")
	}
	return e.tracker.RecordClick(ctx, req.UserID, core.ItemKey{Type: t, ID: req.ItemID}, req.Algorithm, req.Position)
}
