// Package rerank 在融合结果上做上下文调权与截断。
package rerank

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// DefaultBoostRules 是内置的上下文乘数规则，Weight 为乘数。
func DefaultBoostRules() []dsl.Rule {
	return []dsl.Rule{
		{Name: "breakfast_cake", When: "hour >= 7 && hour < 10", ItemType: core.ItemTypeCake, Weight: 1.15, Reason: "Ideal para el desayuno"},
		{Name: "lunch_recipe", When: "hour >= 12 && hour < 15", ItemType: core.ItemTypeRecipe, Weight: 1.2, Reason: "Perfecto para la hora de comer"},
		{Name: "dinner_recipe", When: "hour >= 19 && hour < 22", ItemType: core.ItemTypeRecipe, Weight: 1.15, Reason: "Para tu cena de hoy"},
		{Name: "weekend_place", When: "weekend", ItemType: core.ItemTypePlace, Weight: 1.2, Reason: "Planes para el fin de semana"},
		{Name: "weekday_evening_sport", When: "!weekend && hour >= 17 && hour < 21", ItemType: core.ItemTypeSport, Weight: 1.1, Reason: "Para entrenar después del trabajo"},
		{Name: "mobile_place", When: `device == "mobile"`, ItemType: core.ItemTypePlace, Weight: 1.1, Reason: "Cerca de ti"},
		{Name: "late_night_phone", When: "hour >= 23 || hour < 6", ItemType: core.ItemTypePhone, Weight: 0.9},
	}
}

// ContextBooster 按请求上下文对结果乘以 [Min, Max] 内的系数并重排。
//
// FinalScore 总是从 BaseScore 计算，重复调用结果不变。
type ContextBooster struct {
	Rules      *dsl.RuleSet
	Min        float64
	Max        float64
	MaxReasons int
}

// NewContextBooster rules 为空时使用 DefaultBoostRules。
func NewContextBooster(rules *dsl.RuleSet) *ContextBooster {
	if rules == nil {
		rules = dsl.MustCompile(DefaultBoostRules())
	}
	return &ContextBooster{Rules: rules, Min: 0.8, Max: 1.5, MaxReasons: utils.MaxReasons}
}

func (b *ContextBooster) Name() string        { return "rerank.context_boost" }
func (b *ContextBooster) Kind() pipeline.Kind { return pipeline.KindReRank }

func (b *ContextBooster) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	recs []*core.Recommendation,
) ([]*core.Recommendation, error) {
	if rctx == nil {
		return recs, nil
	}
	return b.Boost(recs, rctx.Context), nil
}

// Multiplier 返回某类别在 rc 下的系数（命中规则的乘积，截断到 [Min, Max]）与提升类规则的解释。
func (b *ContextBooster) Multiplier(rc core.RequestContext, t core.ItemType) (float64, []string) {
	m := 1.0
	var reasons []string
	for _, rule := range b.Rules.MatchType(rc, t) {
		m *= rule.Weight
		if rule.Weight > 1 && rule.Reason != "" {
			reasons = append(reasons, rule.Reason)
		}
	}
	return math.Max(b.Min, math.Min(b.Max, m)), reasons
}

// Boost 计算 FinalScore 并重排，原地修改并返回同一切片。
func (b *ContextBooster) Boost(recs []*core.Recommendation, rc core.RequestContext) []*core.Recommendation {
	type boost struct {
		m       float64
		reasons []string
	}
	cache := make(map[core.ItemType]boost)
	for _, rec := range recs {
		bt, ok := cache[rec.Key.Type]
		if !ok {
			bt.m, bt.reasons = b.Multiplier(rc, rec.Key.Type)
			cache[rec.Key.Type] = bt
		}
		rec.ContextualBoost = bt.m
		rec.FinalScore = clampScore(int(math.Round(float64(rec.BaseScore) * bt.m)))
		if bt.m > 1 {
			rec.Reasons = utils.MergeReasons(rec.Reasons, bt.reasons, b.MaxReasons)
		}
	}
	SortByFinal(recs)
	return recs
}

// SortByFinal FinalScore 降序，BaseScore 降序，置信度降序，key 升序。
func SortByFinal(recs []*core.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, c := recs[i], recs[j]
		if a.FinalScore != c.FinalScore {
			return a.FinalScore > c.FinalScore
		}
		if a.BaseScore != c.BaseScore {
			return a.BaseScore > c.BaseScore
		}
		if a.Confidence != c.Confidence {
			return a.Confidence > c.Confidence
		}
		return a.Key.Less(c.Key)
	})
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
