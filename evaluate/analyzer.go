// Package evaluate 根据曝光、点击与后续行为计算各算法的准确率指标。
package evaluate

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// Analyzer 是准确率分析器。
//
// 相关性定义：一次曝光的 (user, item) 在以下任一情况下视为相关：
//   - 收到归因到它的点击
//   - 行为日志中在曝光之后、周期结束之前出现 favorite / prepare（转化）
//
// 指标按 (user, item) 去重：
//   - precision = 相关的曝光对 / 曝光对
//   - recall    = 相关的曝光对 / 曝光用户在周期内的全部相关对（含未归因点击与未曝光物品的转化）
//   - CTR       = 归因点击数 / 曝光数
type Analyzer struct {
	feedback     core.FeedbackStore
	interactions core.InteractionStore
	logger       zerolog.Logger
}

// NewAnalyzer interactions 可为 nil，此时只按点击计算相关性。
func NewAnalyzer(feedback core.FeedbackStore, interactions core.InteractionStore, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		feedback:     feedback,
		interactions: interactions,
		logger:       logging.Component(logger, "evaluate"),
	}
}

// ReportedAlgorithms 是总会出现在结果中的算法，没有曝光时指标全为 0。
func ReportedAlgorithms() []core.Algorithm {
	return []core.Algorithm{core.AlgorithmPersonalized, core.AlgorithmAdvanced, core.AlgorithmML, core.AlgorithmHybrid}
}

type pair struct {
	user string
	key  core.ItemKey
}

// dataset 是一个周期内计算指标所需的全部数据。
type dataset struct {
	period      core.Period
	impressions []core.Impression
	// shownIDs 周期内的曝光 ID，归因点击只在其曝光也落在周期内时计入
	shownIDs map[string]bool
	// clickAlgo 归因点击按算法计数
	clickAlgo map[core.Algorithm]int
	clickType map[core.ItemType]int
	// unattributed 未归因点击数
	unattributed int
	// firstShown 每个曝光对最早的曝光时间
	firstShown map[pair]int64
	// relevantAll 曝光用户在周期内的全部相关对
	relevantAll map[pair]bool
	// converted 曝光后发生转化的曝光对
	converted map[pair]bool
	// clickedPairs 有归因点击的曝光对
	clickedPairs map[pair]bool
}

func (a *Analyzer) load(ctx context.Context, period core.Period) (*dataset, error) {
	imps, err := a.feedback.ListImpressions(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list impressions: %w", err)
	}
	clicks, err := a.feedback.ListClicks(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}

	ds := &dataset{
		period:       period,
		impressions:  imps,
		shownIDs:     make(map[string]bool, len(imps)),
		clickAlgo:    make(map[core.Algorithm]int),
		clickType:    make(map[core.ItemType]int),
		firstShown:   make(map[pair]int64),
		relevantAll:  make(map[pair]bool),
		converted:    make(map[pair]bool),
		clickedPairs: make(map[pair]bool),
	}

	users := make(map[string]bool)
	for _, imp := range imps {
		p := pair{user: imp.UserID, key: imp.Key}
		ts := imp.ShownAt.UnixNano()
		if cur, ok := ds.firstShown[p]; !ok || ts < cur {
			ds.firstShown[p] = ts
		}
		users[imp.UserID] = true
		ds.shownIDs[imp.ID] = true
	}

	for _, c := range clicks {
		p := pair{user: c.UserID, key: c.Key}
		switch {
		case !c.Attributed:
			ds.unattributed++
		case ds.shownIDs[c.ImpressionID]:
			ds.clickAlgo[c.Algorithm]++
			ds.clickType[c.Key.Type]++
			ds.clickedPairs[p] = true
		}
		if users[c.UserID] {
			ds.relevantAll[p] = true
		}
	}

	a.loadConversions(ctx, ds, users)
	return ds, nil
}

// loadConversions 读取曝光用户的强交互。读取失败只影响该用户的转化判定。
func (a *Analyzer) loadConversions(ctx context.Context, ds *dataset, users map[string]bool) {
	if a.interactions == nil {
		return
	}
	ids := make([]string, 0, len(users))
	for u := range users {
		ids = append(ids, u)
	}
	sort.Strings(ids)

	for _, u := range ids {
		events, err := a.interactions.QueryEvents(ctx, u, core.Window{})
		if err != nil {
			a.logger.Warn().Err(err).Str("user_id", u).Msg("interaction log unavailable, using click-only relevance")
			continue
		}
		for _, ev := range events {
			if !ev.Kind.IsStrong() || !ds.period.Contains(ev.Timestamp) {
				continue
			}
			p := pair{user: u, key: ev.Key()}
			ds.relevantAll[p] = true
			if first, ok := ds.firstShown[p]; ok && ev.Timestamp.UnixNano() >= first {
				ds.converted[p] = true
			}
		}
	}
}

// compute 按 groupOf 分组计算指标。
func (ds *dataset) compute(groupOf func(core.Impression) string) map[string]*core.AlgorithmMetrics {
	type group struct {
		m     *core.AlgorithmMetrics
		shown map[pair]bool
		users map[string]bool
	}
	groups := make(map[string]*group)
	for _, imp := range ds.impressions {
		g := groups[groupOf(imp)]
		if g == nil {
			g = &group{
				m:     &core.AlgorithmMetrics{Period: ds.period},
				shown: make(map[pair]bool),
				users: make(map[string]bool),
			}
			groups[groupOf(imp)] = g
		}
		g.m.Impressions++
		g.shown[pair{user: imp.UserID, key: imp.Key}] = true
		g.users[imp.UserID] = true
	}

	out := make(map[string]*core.AlgorithmMetrics, len(groups))
	for name, g := range groups {
		var relevantShown, conversions int
		for p := range g.shown {
			if ds.converted[p] {
				conversions++
			}
			if ds.clickedPairs[p] || ds.converted[p] {
				relevantShown++
			}
		}
		var relevantTotal int
		for p := range ds.relevantAll {
			if g.users[p.user] {
				relevantTotal++
			}
		}

		m := g.m
		m.Conversions = conversions
		m.Precision = ratio(relevantShown, len(g.shown))
		m.Recall = ratio(relevantShown, relevantTotal)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		m.ConversionRate = ratio(conversions, len(g.shown))
		out[name] = m
	}
	return out
}

// ComputeMetrics 按算法计算指标。四种对外算法总会出现；存在未归因点击时额外给出 unattributed。
func (a *Analyzer) ComputeMetrics(ctx context.Context, period core.Period) (map[core.Algorithm]core.AlgorithmMetrics, error) {
	ds, err := a.load(ctx, period)
	if err != nil {
		return nil, err
	}
	grouped := ds.compute(func(imp core.Impression) string { return string(imp.Algorithm) })

	out := make(map[core.Algorithm]core.AlgorithmMetrics)
	for _, algo := range ReportedAlgorithms() {
		out[algo] = core.AlgorithmMetrics{Algorithm: algo, Period: period}
	}
	for name, m := range grouped {
		algo := core.Algorithm(name)
		m.Algorithm = algo
		m.Clicks = ds.clickAlgo[algo]
		m.ClickThroughRate = ratio(m.Clicks, m.Impressions)
		out[algo] = *m
	}
	if ds.unattributed > 0 {
		out[core.AlgorithmUnattributed] = core.AlgorithmMetrics{
			Algorithm: core.AlgorithmUnattributed,
			Period:    period,
			Clicks:    ds.unattributed,
		}
	}
	return out, nil
}

// ComputeCategoryMetrics 按物品类别计算指标，Algorithm 字段为空。
func (a *Analyzer) ComputeCategoryMetrics(ctx context.Context, period core.Period) (map[core.ItemType]core.AlgorithmMetrics, error) {
	ds, err := a.load(ctx, period)
	if err != nil {
		return nil, err
	}
	grouped := ds.compute(func(imp core.Impression) string { return string(imp.Key.Type) })

	out := make(map[core.ItemType]core.AlgorithmMetrics, len(grouped))
	for name, m := range grouped {
		t := core.ItemType(name)
		m.Clicks = ds.clickType[t]
		m.ClickThroughRate = ratio(m.Clicks, m.Impressions)
		out[t] = *m
	}
	return out, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
