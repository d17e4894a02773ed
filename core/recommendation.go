package core

import "time"

// Algorithm 标识候选来源 / 请求模式。
type Algorithm string

const (
	AlgorithmPersonalized Algorithm = "personalized"
	AlgorithmAdvanced     Algorithm = "advanced" // 上下文启发式
	AlgorithmML           Algorithm = "ml"
	AlgorithmHybrid       Algorithm = "hybrid"

	// AlgorithmUnattributed 是指标中的独立分桶：找不到曝光的点击
	AlgorithmUnattributed Algorithm = "unattributed"
)

// ParseMode 解析请求模式，只接受四种对外模式。
func ParseMode(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case AlgorithmPersonalized, AlgorithmAdvanced, AlgorithmML, AlgorithmHybrid:
		return a, nil
	}
	return "", ErrInvalidMode
}

// Candidate 是单个召回源产出的未融合候选，每次请求重新生成，不落盘。
type Candidate struct {
	Key        ItemKey            `json:"key"`
	RawScore   float64            `json:"raw_score"`
	Confidence float64            `json:"confidence"` // [0,1]
	Reasons    []string           `json:"reasons"`
	Source     Algorithm          `json:"source"`
	Features   map[string]float64 `json:"features,omitempty"`
}

// Recommendation 是返回给调用方的排序结果。
//   - BaseScore：融合归一化后的分数（0-100），Booster 总是基于它计算
//   - FinalScore：乘以上下文系数后的分数（0-100），排序以它为准
type Recommendation struct {
	Key             ItemKey            `json:"key"`
	BaseScore       int                `json:"base_score"`
	FinalScore      int                `json:"score"`
	HybridScore     float64            `json:"hybrid_score"`
	Confidence      float64            `json:"confidence"`
	Reasons         []string           `json:"razon"`
	ContextualBoost float64            `json:"contextual_boost"`
	Sources         []Algorithm        `json:"sources"`
	Features        map[string]float64 `json:"-"`
	Summary         ItemSummary        `json:"item,omitempty"`
}

// HasSource 判断是否由指定算法贡献。
func (r *Recommendation) HasSource(a Algorithm) bool {
	for _, s := range r.Sources {
		if s == a {
			return true
		}
	}
	return false
}

// SignalVector 是 (user, itemType) 维度的聚合信号，派生数据，不作为事实来源持久化。
type SignalVector struct {
	ItemType          ItemType  `json:"item_type"`
	InteractionCount  int       `json:"interaction_count"`
	WeightedScore     float64   `json:"weighted_score"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
}

// ItemInteraction 是单个物品维度的聚合。
type ItemInteraction struct {
	Key           ItemKey   `json:"key"`
	Count         int       `json:"count"`
	WeightedScore float64   `json:"weighted_score"`
	Strong        bool      `json:"strong"`
	LastAt        time.Time `json:"last_at"`
}
