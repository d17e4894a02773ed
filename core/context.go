package core

import (
	"sort"
	"time"
)

// RequestContext 是请求时刻的上下文快照：时段、星期、设备。
// 召回阶段与 Booster 阶段可以拿到不同的快照（例如设备类型由前端补充）。
type RequestContext struct {
	Now     time.Time    `json:"now"`
	Hour    int          `json:"hour"`
	Weekday time.Weekday `json:"weekday"`
	Device  string       `json:"device"` // mobile / desktop / tablet，未知为空
}

// NewRequestContext 从时间与设备构建上下文。
func NewRequestContext(now time.Time, device string) RequestContext {
	return RequestContext{
		Now:     now,
		Hour:    now.Hour(),
		Weekday: now.Weekday(),
		Device:  device,
	}
}

// IsWeekend 周六/周日。
func (c RequestContext) IsWeekend() bool {
	return c.Weekday == time.Saturday || c.Weekday == time.Sunday
}

// UserProfile 是聚合后的用户画像：类别信号 + 物品交互。
// 由 signal.Aggregator 生成，fan-out 之后只读。
type UserProfile struct {
	UserID      string                      `json:"user_id"`
	Signals     map[ItemType]SignalVector   `json:"signals"`
	Items       map[ItemKey]ItemInteraction `json:"-"`
	ItemList    []ItemInteraction           `json:"items"`
	TotalEvents int                         `json:"total_events"`
	Degraded    bool                        `json:"degraded"` // 行为日志不可用，退化为纯上下文
}

// NewUserProfile 创建空画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:  userID,
		Signals: make(map[ItemType]SignalVector),
		Items:   make(map[ItemKey]ItemInteraction),
	}
}

// IsEmpty 冷启动用户：没有任何信号。
func (p *UserProfile) IsEmpty() bool {
	return p == nil || len(p.Signals) == 0
}

// TotalWeight 所有类别 WeightedScore 之和。
func (p *UserProfile) TotalWeight() float64 {
	if p == nil {
		return 0
	}
	var sum float64
	for _, sv := range p.Signals {
		sum += sv.WeightedScore
	}
	return sum
}

// CategoryShare 返回某类别占总信号的比例。
func (p *UserProfile) CategoryShare(t ItemType) float64 {
	total := p.TotalWeight()
	if total <= 0 {
		return 0
	}
	return p.Signals[t].WeightedScore / total
}

// RankedTypes 按 WeightedScore 降序返回有信号的类别，同分按类别名。
func (p *UserProfile) RankedTypes() []ItemType {
	if p == nil {
		return nil
	}
	out := make([]ItemType, 0, len(p.Signals))
	for t, sv := range p.Signals {
		if sv.WeightedScore > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := p.Signals[out[i]].WeightedScore, p.Signals[out[j]].WeightedScore
		if si != sj {
			return si > sj
		}
		return out[i] < out[j]
	})
	return out
}

// RebuildIndex 从 ItemList 重建 Items（缓存反序列化后调用）。
func (p *UserProfile) RebuildIndex() {
	p.Items = make(map[ItemKey]ItemInteraction, len(p.ItemList))
	for _, it := range p.ItemList {
		p.Items[it.Key] = it
	}
	if p.Signals == nil {
		p.Signals = make(map[ItemType]SignalVector)
	}
}

// RecommendContext 贯穿召回阶段透传：用户、画像、上下文、实时特征。
type RecommendContext struct {
	UserID  string
	Profile *UserProfile
	Context RequestContext

	// Limit 是调用方请求的返回条数
	Limit int

	// UserFeatures 是外部特征存储（Feast）提供的用户级特征，可为空
	UserFeatures map[string]float64
}
