package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// DefaultContextRules 是上下文召回的内置规则，Weight 为类别 boost（0-1）。
func DefaultContextRules() []dsl.Rule {
	return []dsl.Rule{
		{Name: "breakfast_cake", When: "hour >= 7 && hour < 10", ItemType: core.ItemTypeCake, Weight: 0.9, Reason: "Ideal para el desayuno"},
		{Name: "breakfast_recipe", When: "hour >= 7 && hour < 10", ItemType: core.ItemTypeRecipe, Weight: 0.8, Reason: "Ideal para el desayuno"},
		{Name: "lunch_recipe", When: "hour >= 12 && hour < 15", ItemType: core.ItemTypeRecipe, Weight: 1.0, Reason: "Perfecto para la hora de comer"},
		{Name: "dinner_recipe", When: "hour >= 19 && hour < 22", ItemType: core.ItemTypeRecipe, Weight: 0.9, Reason: "Para tu cena de hoy"},
		{Name: "weekend_place", When: "weekend", ItemType: core.ItemTypePlace, Weight: 0.8, Reason: "Planes para el fin de semana"},
		{Name: "weekend_cake", When: "weekend", ItemType: core.ItemTypeCake, Weight: 0.7, Reason: "Algo dulce para el fin de semana"},
		{Name: "weekday_evening_sport", When: "!weekend && hour >= 17 && hour < 21", ItemType: core.ItemTypeSport, Weight: 0.7, Reason: "Para entrenar después del trabajo"},
		{Name: "mobile_place", When: `device == "mobile"`, ItemType: core.ItemTypePlace, Weight: 0.6, Reason: "Cerca de ti"},
	}
}

// Contextual 是上下文启发式召回（对外模式名 advanced）。
// 按时段 / 星期 / 设备命中的规则选择类别，不依赖用户历史，冷启动可用。
type Contextual struct {
	Catalog core.CatalogStore
	Rules   *dsl.RuleSet
	Logger  zerolog.Logger

	// Confidence 固定置信度，低于个性化召回的上限
	Confidence float64
}

// NewContextual rules 为空时使用 DefaultContextRules。
func NewContextual(catalog core.CatalogStore, rules *dsl.RuleSet, logger zerolog.Logger) *Contextual {
	if rules == nil {
		rules = dsl.MustCompile(DefaultContextRules())
	}
	return &Contextual{
		Catalog:    catalog,
		Rules:      rules,
		Logger:     logging.Component(logger, "recall.contextual"),
		Confidence: 0.6,
	}
}

func (r *Contextual) Name() core.Algorithm { return core.AlgorithmAdvanced }

// typeBoost 同一类别命中多条规则时取最大 boost，解释按规则顺序合并。
type typeBoost struct {
	boost   float64
	reasons []string
}

func (r *Contextual) matchTypes(rc core.RequestContext) (map[core.ItemType]*typeBoost, []core.ItemType) {
	byType := make(map[core.ItemType]*typeBoost)
	var order []core.ItemType
	for _, rule := range r.Rules.Match(rc) {
		tb, ok := byType[rule.ItemType]
		if !ok {
			tb = &typeBoost{}
			byType[rule.ItemType] = tb
			order = append(order, rule.ItemType)
		}
		if rule.Weight > tb.boost {
			tb.boost = rule.Weight
		}
		tb.reasons = utils.MergeReasons(tb.reasons, []string{rule.Reason}, utils.MaxReasons)
	}
	return byType, order
}

func (r *Contextual) Generate(ctx context.Context, rctx *core.RecommendContext, limit int) []core.Candidate {
	if limit <= 0 || rctx == nil {
		return []core.Candidate{}
	}
	byType, order := r.matchTypes(rctx.Context)
	if len(order) == 0 {
		return []core.Candidate{}
	}
	pools := loadPools(ctx, r.Catalog, order, r.Logger)

	var out []core.Candidate
	for _, t := range order {
		tb := byType[t]
		for _, s := range pools[t] {
			key := s.Key()
			if rctx.Profile != nil {
				if it, ok := rctx.Profile.Items[key]; ok && it.Strong {
					continue
				}
			}
			pop := clamp01(s.Base().Popularity)
			reasons := make([]string, len(tb.reasons))
			copy(reasons, tb.reasons)
			out = append(out, core.Candidate{
				Key:        key,
				RawScore:   100 * tb.boost * (0.5 + 0.5*pop),
				Confidence: r.Confidence,
				Reasons:    reasons,
				Source:     core.AlgorithmAdvanced,
			})
		}
	}
	return finalize(out, limit)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
