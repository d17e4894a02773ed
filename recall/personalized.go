package recall

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// Personalized 是基于用户类别信号与属性偏好的个性化召回。
//
// 打分：100 * 类别占比 * (0.5 + 0.5 * 属性相似度)
//   - 收藏 / 制作过的物品直接过滤
//   - 只浏览过的物品保留，但分数减半
//   - 冷启动（没有信号）返回空
type Personalized struct {
	Catalog core.CatalogStore
	Logger  zerolog.Logger

	// SeenPenalty 只浏览过的物品的分数系数
	SeenPenalty float64
	// ConfidenceEvents 达到该事件数后置信度饱和
	ConfidenceEvents int
}

func NewPersonalized(catalog core.CatalogStore, logger zerolog.Logger) *Personalized {
	return &Personalized{
		Catalog:          catalog,
		Logger:           logging.Component(logger, "recall.personalized"),
		SeenPenalty:      0.5,
		ConfidenceEvents: 20,
	}
}

func (r *Personalized) Name() core.Algorithm { return core.AlgorithmPersonalized }

// Confidence 随历史事件数增长，上限 0.95。
func (r *Personalized) Confidence(totalEvents int) float64 {
	n := r.ConfidenceEvents
	if n <= 0 {
		n = 20
	}
	return math.Min(1, float64(totalEvents)/float64(n)) * 0.95
}

func (r *Personalized) Generate(ctx context.Context, rctx *core.RecommendContext, limit int) []core.Candidate {
	if limit <= 0 || rctx == nil || rctx.Profile.IsEmpty() {
		return []core.Candidate{}
	}
	profile := rctx.Profile
	types := profile.RankedTypes()
	pools := loadPools(ctx, r.Catalog, types, r.Logger)
	aff := buildAffinity(profile, pools)
	confidence := r.Confidence(profile.TotalEvents)

	var out []core.Candidate
	for _, t := range types {
		share := profile.CategoryShare(t)
		for _, s := range pools[t] {
			key := s.Key()
			it, seen := profile.Items[key]
			if seen && it.Strong {
				continue
			}
			sim := aff.similarity(s)
			score := 100 * share * (0.5 + 0.5*sim)
			reasons := []string{"Basado en tu interés en " + typeLabels[t]}
			if sim >= 0.5 {
				reasons = append(reasons, "Similar a lo que te ha gustado")
			}
			if seen {
				score *= r.SeenPenalty
				reasons = append(reasons, "Lo viste recientemente")
			}
			out = append(out, core.Candidate{
				Key:        key,
				RawScore:   score,
				Confidence: confidence,
				Reasons:    reasons,
				Source:     core.AlgorithmPersonalized,
				Features: map[string]float64{
					model.FeatureCategoryShare:  share,
					model.FeatureAttrSimilarity: sim,
				},
			})
		}
	}
	return finalize(out, limit)
}
