package core

import (
	"context"
	"time"
)

// Impression 是一次曝光：某物品在某位置展示给用户。
type Impression struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Key       ItemKey            `json:"key"`
	Position  int                `json:"position"` // 从 1 开始
	Algorithm Algorithm          `json:"algorithm"`
	Sources   []Algorithm        `json:"sources"`
	Score     int                `json:"score"`
	Context   RequestContext     `json:"context"`
	Features  map[string]float64 `json:"features,omitempty"`
	ShownAt   time.Time          `json:"shown_at"`
}

// ClickEvent 是一次点击。Attributed=false 表示没有匹配到窗口内的曝光。
type ClickEvent struct {
	ID           string    `json:"id"`
	ImpressionID string    `json:"impression_id,omitempty"`
	UserID       string    `json:"user_id"`
	Key          ItemKey   `json:"key"`
	Position     int       `json:"position"`
	Algorithm    Algorithm `json:"algorithm"`
	Attributed   bool      `json:"attributed"`
	ClickedAt    time.Time `json:"clicked_at"`
}

// Period 是左闭右开的时间区间 [From, To)。
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// AlgorithmMetrics 是某个算法（或类别）在一个周期内的效果指标。
type AlgorithmMetrics struct {
	Algorithm        Algorithm `json:"algorithm"`
	Period           Period    `json:"period"`
	Impressions      int       `json:"impressions"`
	Clicks           int       `json:"clicks"`
	Conversions      int       `json:"conversions"`
	Precision        float64   `json:"precision"`
	Recall           float64   `json:"recall"`
	F1               float64   `json:"f1"`
	ClickThroughRate float64   `json:"click_through_rate"`
	ConversionRate   float64   `json:"conversion_rate"`
}

// FeedbackStore 是曝光/点击的追加写存储。
//
// 约定：
//   - AppendImpressions 以批为单位原子写入，同一次返回的列表要么全部落盘要么全部失败
//   - LatestImpression 返回 since <= ShownAt <= until 的最近一条，不存在时返回 (nil, nil)
type FeedbackStore interface {
	AppendImpressions(ctx context.Context, imps []Impression) error
	LatestImpression(ctx context.Context, userID string, key ItemKey, since, until time.Time) (*Impression, error)
	AppendClick(ctx context.Context, click ClickEvent) error
	ListImpressions(ctx context.Context, period Period) ([]Impression, error)
	ListClicks(ctx context.Context, period Period) ([]ClickEvent, error)
}
