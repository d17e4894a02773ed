package model

import (
	"math"
	"sort"
	"time"
)

// NeutralVersion 是中性权重的版本号。
const NeutralVersion = "neutral"

// Snapshot 是一份逻辑回归权重快照，发布后只读。
//
// 预测：P = sigmoid(Bias + Σ Weights[k] * features[k])，未知特征忽略。
type Snapshot struct {
	Version  string             `json:"version"`
	Bias     float64            `json:"bias"`
	Weights  map[string]float64 `json:"weights"`
	FittedAt time.Time          `json:"fitted_at"`
	Examples int                `json:"examples"`
}

// Probability 返回点击概率。
func (s *Snapshot) Probability(features map[string]float64) float64 {
	return sigmoid(s.linear(features))
}

// IsNeutral 是否为中性权重。
func (s *Snapshot) IsNeutral() bool {
	return s == nil || s.Version == NeutralVersion
}

// Stale 超过 maxAge 未重训视为过期，maxAge<=0 不判断。
func (s *Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(s.FittedAt) > maxAge
}

// linear 按特征名顺序累加，结果与 map 遍历顺序无关。
func (s *Snapshot) linear(features map[string]float64) float64 {
	names := make([]string, 0, len(features))
	for k := range features {
		if _, ok := s.Weights[k]; ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	z := s.Bias
	for _, k := range names {
		z += s.Weights[k] * features[k]
	}
	return z
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// NeutralSnapshot 是没有可用训练结果时的固定权重：
// 类别占比和属性相似度为主，上下文命中和热度为辅，偏置使无信号的物品落在 0.12 左右。
func NeutralSnapshot() *Snapshot {
	return &Snapshot{
		Version: NeutralVersion,
		Bias:    -2.0,
		Weights: map[string]float64{
			FeatureCategoryShare:   2.0,
			FeatureAttrSimilarity:  1.0,
			FeatureContextMatch:    1.0,
			FeaturePopularity:      1.0,
			FeatureCategoryRecency: 0.5,
			FeatureCategoryCount:   0.2,
		},
	}
}
