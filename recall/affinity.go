package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
)

// typeLabels 是类别在解释文案中的名称。
var typeLabels = map[core.ItemType]string{
	core.ItemTypeRecipe: "recetas",
	core.ItemTypePhone:  "teléfonos",
	core.ItemTypeCake:   "pasteles",
	core.ItemTypePlace:  "lugares",
	core.ItemTypeSport:  "artículos deportivos",
}

// loadPools 读取各类别的候选池。单个类别读取失败只记录日志。
func loadPools(ctx context.Context, catalog core.CatalogStore, types []core.ItemType, logger zerolog.Logger) map[core.ItemType][]core.ItemSummary {
	pools := make(map[core.ItemType][]core.ItemSummary, len(types))
	if catalog == nil {
		return pools
	}
	for _, t := range types {
		if ctx.Err() != nil {
			return pools
		}
		items, err := catalog.ListItems(ctx, t)
		if err != nil {
			logger.Warn().Err(err).Str("item_type", string(t)).Msg("list catalog items failed")
			continue
		}
		pools[t] = items
	}
	return pools
}

// affinity 是用户在各类别下的属性偏好：token -> 交互加权分之和。
type affinity struct {
	tokens map[core.ItemType]map[string]float64
	totals map[core.ItemType]float64
}

// buildAffinity 用用户交互过的物品属性构建偏好，权重为物品的交互加权分。
func buildAffinity(profile *core.UserProfile, pools map[core.ItemType][]core.ItemSummary) affinity {
	a := affinity{
		tokens: make(map[core.ItemType]map[string]float64),
		totals: make(map[core.ItemType]float64),
	}
	if profile.IsEmpty() {
		return a
	}
	for t, items := range pools {
		for _, s := range items {
			it, ok := profile.Items[s.Key()]
			if !ok || it.WeightedScore <= 0 {
				continue
			}
			m := a.tokens[t]
			if m == nil {
				m = make(map[string]float64)
				a.tokens[t] = m
			}
			for _, tok := range s.Attributes() {
				m[tok] += it.WeightedScore
			}
			a.totals[t] += it.WeightedScore
		}
	}
	return a
}

// similarity 返回 [0,1]：物品每个属性 token 的偏好占比的平均值。
func (a affinity) similarity(s core.ItemSummary) float64 {
	t := s.Key().Type
	total := a.totals[t]
	tokens := s.Attributes()
	if total <= 0 || len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += a.tokens[t][tok] / total
	}
	sim := sum / float64(len(tokens))
	if sim > 1 {
		sim = 1
	}
	return sim
}
