// Package rank 负责把多个召回源的候选融合为统一打分的推荐结果。
package rank

import (
	"math"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// DefaultTrustWeights 各召回源的信任权重。
func DefaultTrustWeights() map[core.Algorithm]float64 {
	return map[core.Algorithm]float64{
		core.AlgorithmPersonalized: 1.0,
		core.AlgorithmAdvanced:     0.6,
		core.AlgorithmML:           0.8,
	}
}

// Combiner 是混合融合器：按 ItemKey 合并，分数取加权和（而不是 max 或平均）。
//
// 流程：
//  1. 合并：HybridScore = Σ trust(source) * RawScore，解释按召回源顺序合并并截断，置信度取最大
//  2. 归一化：min-max 映射到 [1,100] 的整数，全部相同时为 100
//  3. 排序：归一化分降序，置信度降序，ItemType / ItemID 升序
//  4. 截断到 limit
type Combiner struct {
	// Weights 未配置的召回源权重为 1.0
	Weights    map[core.Algorithm]float64
	MaxReasons int
}

func NewCombiner(weights map[core.Algorithm]float64) *Combiner {
	if weights == nil {
		weights = DefaultTrustWeights()
	}
	return &Combiner{Weights: weights, MaxReasons: utils.MaxReasons}
}

// Trust 返回召回源的信任权重。
func (c *Combiner) Trust(a core.Algorithm) float64 {
	if w, ok := c.Weights[a]; ok {
		return w
	}
	return 1.0
}

// Combine 融合各召回源的候选。全部为空时返回空列表。
func (c *Combiner) Combine(lists [][]core.Candidate, limit int) []*core.Recommendation {
	if limit <= 0 {
		return []*core.Recommendation{}
	}
	byKey := make(map[core.ItemKey]*core.Recommendation)
	var merged []*core.Recommendation

	for _, list := range lists {
		for _, cand := range list {
			rec, ok := byKey[cand.Key]
			if !ok {
				rec = &core.Recommendation{Key: cand.Key, ContextualBoost: 1}
				byKey[cand.Key] = rec
				merged = append(merged, rec)
			}
			rec.HybridScore += c.Trust(cand.Source) * cand.RawScore
			rec.Reasons = utils.MergeReasons(rec.Reasons, cand.Reasons, c.MaxReasons)
			if !rec.HasSource(cand.Source) {
				rec.Sources = append(rec.Sources, cand.Source)
			}
			if cand.Confidence > rec.Confidence {
				rec.Confidence = cand.Confidence
			}
			if len(cand.Features) > 0 {
				if rec.Features == nil {
					rec.Features = make(map[string]float64, len(cand.Features))
				}
				for k, v := range cand.Features {
					if _, exists := rec.Features[k]; !exists {
						rec.Features[k] = v
					}
				}
			}
		}
	}
	if len(merged) == 0 {
		return []*core.Recommendation{}
	}

	Normalize(merged)
	for _, rec := range merged {
		rec.Reasons = utils.EnsureReasons(rec.Reasons)
	}
	SortByBase(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// Normalize 把 HybridScore min-max 映射到 [1,100] 的整数 BaseScore，并同步 FinalScore。
func Normalize(recs []*core.Recommendation) {
	if len(recs) == 0 {
		return
	}
	lo, hi := recs[0].HybridScore, recs[0].HybridScore
	for _, r := range recs[1:] {
		lo = math.Min(lo, r.HybridScore)
		hi = math.Max(hi, r.HybridScore)
	}
	for _, r := range recs {
		if hi == lo {
			r.BaseScore = 100
		} else {
			r.BaseScore = 1 + int(math.Round(99*(r.HybridScore-lo)/(hi-lo)))
		}
		r.FinalScore = r.BaseScore
	}
}

// SortByBase 归一化分降序，置信度降序，key 升序。
func SortByBase(recs []*core.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.BaseScore != b.BaseScore {
			return a.BaseScore > b.BaseScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Key.Less(b.Key)
	})
}
