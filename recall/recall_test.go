package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/signal"
	"github.com/rushteam/hybridrec/store"
)

// 2026-10-19 是周一
var monday13 = time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)

func recipe(id int64, categoria string, pop float64) *core.RecipeSummary {
	return &core.RecipeSummary{
		SummaryBase: core.SummaryBase{ID: id, Nombre: "receta", Popularity: pop},
		Categoria:   categoria,
		Dificultad:  "facil",
	}
}

func testCatalog() *store.MemoryCatalog {
	return store.NewMemoryCatalog(
		recipe(1, "postres", 0.9),
		recipe(2, "postres", 0.5),
		recipe(3, "sopas", 0.5),
		recipe(4, "postres", 0.1),
		&core.CakeSummary{SummaryBase: core.SummaryBase{ID: 10, Popularity: 0.8}, Sabor: "chocolate"},
		&core.PlaceSummary{SummaryBase: core.SummaryBase{ID: 20, Popularity: 0.4}, Ciudad: "madrid", Tipo: "parque"},
		&core.SportSummary{SummaryBase: core.SummaryBase{ID: 30, Popularity: 0.3}, Deporte: "running"},
		&core.PhoneSummary{SummaryBase: core.SummaryBase{ID: 40, Popularity: 0.7}, Marca: "acme"},
	)
}

func profileFrom(events ...core.InteractionEvent) *core.UserProfile {
	return signal.Build("u1", events, monday13, signal.DefaultConfig())
}

func evt(kind core.EventKind, t core.ItemType, id int64) core.InteractionEvent {
	return core.InteractionEvent{UserID: "u1", ItemType: t, ItemID: id, Kind: kind, Timestamp: monday13.Add(-time.Hour)}
}

func rctxFor(p *core.UserProfile, now time.Time) *core.RecommendContext {
	return &core.RecommendContext{UserID: "u1", Profile: p, Context: core.NewRequestContext(now, "")}
}

func assertContract(t *testing.T, cs []core.Candidate, limit int) {
	t.Helper()
	if len(cs) > limit {
		t.Errorf("输出 %d 条超过 limit %d", len(cs), limit)
	}
	seen := make(map[core.ItemKey]bool)
	for i, c := range cs {
		if seen[c.Key] {
			t.Errorf("重复 key: %v", c.Key)
		}
		seen[c.Key] = true
		if c.Confidence < 0 || c.Confidence > 1 {
			t.Errorf("置信度越界: %v", c.Confidence)
		}
		if i > 0 {
			prev := cs[i-1]
			if prev.RawScore < c.RawScore || (prev.RawScore == c.RawScore && !prev.Key.Less(c.Key)) {
				t.Errorf("排序错误: %v 在 %v 之前", prev, c)
			}
		}
	}
}

func TestPersonalized(t *testing.T) {
	g := NewPersonalized(testCatalog(), zerolog.Nop())
	p := profileFrom(
		evt(core.EventFavorite, core.ItemTypeRecipe, 1),
		evt(core.EventView, core.ItemTypeRecipe, 2),
	)

	cs := g.Generate(context.Background(), rctxFor(p, monday13), 10)
	assertContract(t, cs, 10)

	scores := make(map[core.ItemKey]float64)
	for _, c := range cs {
		if c.Key.Type != core.ItemTypeRecipe {
			t.Errorf("只应召回有信号的类别, got %v", c.Key)
		}
		if c.Source != core.AlgorithmPersonalized {
			t.Errorf("Source = %v", c.Source)
		}
		scores[c.Key] = c.RawScore
	}
	if _, ok := scores[core.ItemKey{Type: core.ItemTypeRecipe, ID: 1}]; ok {
		t.Error("收藏过的物品应被过滤")
	}
	seenKey := core.ItemKey{Type: core.ItemTypeRecipe, ID: 2}
	similar := core.ItemKey{Type: core.ItemTypeRecipe, ID: 4}
	if _, ok := scores[seenKey]; !ok {
		t.Fatal("只浏览过的物品应保留")
	}
	if scores[seenKey] >= scores[similar] {
		t.Errorf("浏览过的物品应被降权: seen=%v similar=%v", scores[seenKey], scores[similar])
	}
	if scores[similar] <= scores[core.ItemKey{Type: core.ItemTypeRecipe, ID: 3}] {
		t.Error("属性相似的物品应得分更高")
	}
}

func TestPersonalizedColdStartAndLimit(t *testing.T) {
	g := NewPersonalized(testCatalog(), zerolog.Nop())
	if cs := g.Generate(context.Background(), rctxFor(core.NewUserProfile("u1"), monday13), 10); len(cs) != 0 {
		t.Errorf("冷启动应返回空, got %d", len(cs))
	}
	p := profileFrom(evt(core.EventView, core.ItemTypeRecipe, 3))
	if cs := g.Generate(context.Background(), rctxFor(p, monday13), 0); len(cs) != 0 {
		t.Errorf("limit=0 应返回空, got %d", len(cs))
	}
	if cs := g.Generate(context.Background(), rctxFor(p, monday13), 2); len(cs) != 2 {
		t.Errorf("应截断到 limit, got %d", len(cs))
	}
}

func TestPersonalizedConfidence(t *testing.T) {
	g := NewPersonalized(nil, zerolog.Nop())
	if c := g.Confidence(0); c != 0 {
		t.Errorf("Confidence(0) = %v", c)
	}
	if c := g.Confidence(10); c != 0.475 {
		t.Errorf("Confidence(10) = %v", c)
	}
	if c := g.Confidence(100); c != 0.95 {
		t.Errorf("Confidence(100) = %v", c)
	}
}

func TestContextual(t *testing.T) {
	g := NewContextual(testCatalog(), nil, zerolog.Nop())

	// 周一 13 点：午餐规则只命中 recipe
	cs := g.Generate(context.Background(), rctxFor(nil, monday13), 10)
	assertContract(t, cs, 10)
	if len(cs) != 4 {
		t.Fatalf("午餐时段应召回 4 个 recipe, got %d", len(cs))
	}
	for _, c := range cs {
		if c.Key.Type != core.ItemTypeRecipe || c.Confidence != 0.6 || len(c.Reasons) == 0 {
			t.Errorf("候选不符合预期: %+v", c)
		}
	}
	if cs[0].Key.ID != 1 {
		t.Errorf("热度最高的应排第一, got %v", cs[0].Key)
	}
	// 热度相同 (2, 3) 时按 ID 升序
	if cs[1].Key.ID != 2 || cs[2].Key.ID != 3 {
		t.Errorf("同分应按 ID 升序: %v %v", cs[1].Key, cs[2].Key)
	}

	// 周六 11 点：周末规则命中 place / cake
	saturday := time.Date(2026, 10, 24, 11, 0, 0, 0, time.UTC)
	cs = g.Generate(context.Background(), rctxFor(nil, saturday), 10)
	types := make(map[core.ItemType]bool)
	for _, c := range cs {
		types[c.Key.Type] = true
	}
	if !types[core.ItemTypePlace] || !types[core.ItemTypeCake] || types[core.ItemTypeRecipe] {
		t.Errorf("周末类别错误: %v", types)
	}

	// 凌晨没有规则命中
	night := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	if cs := g.Generate(context.Background(), rctxFor(nil, night), 10); len(cs) != 0 {
		t.Errorf("无规则命中应返回空, got %d", len(cs))
	}
}

func TestLearnedNeutralFallback(t *testing.T) {
	g := NewLearned(testCatalog(), model.NewHolder(72*time.Hour), nil, zerolog.Nop())
	p := profileFrom(evt(core.EventPrepare, core.ItemTypeCake, 10), evt(core.EventView, core.ItemTypeRecipe, 2))

	cs := g.Generate(context.Background(), rctxFor(p, monday13), 20)
	assertContract(t, cs, 20)
	if len(cs) == 0 {
		t.Fatal("中性权重下也应产出候选")
	}
	for _, c := range cs {
		if c.Confidence != 0.4 {
			t.Errorf("中性权重置信度应为 0.4, got %v", c.Confidence)
		}
		if c.Key == (core.ItemKey{Type: core.ItemTypeCake, ID: 10}) {
			t.Error("强交互物品应被过滤")
		}
		if _, ok := c.Features[model.FeaturePopularity]; !ok {
			t.Errorf("候选应携带特征: %v", c.Features)
		}
	}
}

func TestLearnedFittedSnapshot(t *testing.T) {
	holder := model.NewHolder(72 * time.Hour)
	holder.Store(&model.Snapshot{
		Version:  "v1",
		Bias:     -1,
		Weights:  map[string]float64{model.FeaturePopularity: 4, "feast_ltv": 1},
		FittedAt: monday13.Add(-time.Hour),
	})
	g := NewLearned(testCatalog(), holder, nil, zerolog.Nop())
	rctx := rctxFor(nil, monday13)
	rctx.UserFeatures = map[string]float64{"ltv": 0.5}

	cs := g.Generate(context.Background(), rctx, 3)
	assertContract(t, cs, 3)
	if len(cs) != 3 || cs[0].Key != (core.ItemKey{Type: core.ItemTypeRecipe, ID: 1}) {
		t.Fatalf("热度最高的应排第一: %+v", cs)
	}
	if cs[0].Confidence <= 0.4 || cs[0].Confidence > 0.9 {
		t.Errorf("拟合快照置信度越界: %v", cs[0].Confidence)
	}
	if cs[0].Features["feast_ltv"] != 0.5 {
		t.Errorf("外部特征应带 feast_ 前缀: %v", cs[0].Features)
	}
}

type stubGenerator struct {
	name  core.Algorithm
	out   []core.Candidate
	delay time.Duration
	panic bool
}

func (s stubGenerator) Name() core.Algorithm { return s.name }

func (s stubGenerator) Generate(ctx context.Context, _ *core.RecommendContext, _ int) []core.Candidate {
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.out
}

func TestFanout(t *testing.T) {
	one := []core.Candidate{{Key: core.ItemKey{Type: core.ItemTypeRecipe, ID: 1}, RawScore: 1}}
	f := &Fanout{
		Generators: []Generator{
			stubGenerator{name: core.AlgorithmPersonalized, out: one},
			stubGenerator{name: core.AlgorithmAdvanced, panic: true},
			stubGenerator{name: core.AlgorithmML, out: one, delay: time.Second},
		},
		Timeout: 50 * time.Millisecond,
		Logger:  zerolog.Nop(),
	}

	start := time.Now()
	lists, err := f.Run(context.Background(), rctxFor(nil, monday13), 10)
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("超时的召回源不应阻塞整体, 耗时 %v", time.Since(start))
	}
	if len(lists) != 3 {
		t.Fatalf("应按配置返回 3 个列表, got %d", len(lists))
	}
	if len(lists[0]) != 1 {
		t.Errorf("正常召回源结果丢失")
	}
	if lists[1] == nil || len(lists[1]) != 0 {
		t.Errorf("panic 的召回源应返回空列表")
	}
	if len(lists[2]) != 0 {
		t.Errorf("超时的召回源应返回空列表")
	}
}

func TestFanoutNoGenerators(t *testing.T) {
	f := &Fanout{Logger: zerolog.Nop()}
	if _, err := f.Run(context.Background(), rctxFor(nil, monday13), 10); !errors.Is(err, core.ErrNoGenerators) {
		t.Errorf("期望 ErrNoGenerators, got %v", err)
	}
}
