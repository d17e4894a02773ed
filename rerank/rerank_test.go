package rerank

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/dsl"
)

func rec(t core.ItemType, id int64, base int, conf float64, reasons ...string) *core.Recommendation {
	return &core.Recommendation{
		Key:        core.ItemKey{Type: t, ID: id},
		BaseScore:  base,
		FinalScore: base,
		Confidence: conf,
		Reasons:    reasons,
	}
}

func snapshot(recs []*core.Recommendation) []core.Recommendation {
	out := make([]core.Recommendation, len(recs))
	for i, r := range recs {
		out[i] = *r
		out[i].Reasons = append([]string(nil), r.Reasons...)
	}
	return out
}

// 2026-10-19 周一 13:00
var lunch = core.NewRequestContext(time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC), "")

func TestContextBoost(t *testing.T) {
	b := NewContextBooster(nil)
	recs := []*core.Recommendation{
		rec(core.ItemTypePhone, 1, 90, 0.5, "x"),
		rec(core.ItemTypeRecipe, 2, 80, 0.5, "y"),
	}
	out := b.Boost(recs, lunch)

	if out[0].Key.Type != core.ItemTypeRecipe {
		t.Fatalf("午餐时段 recipe 应被提升到第一: %v", out[0].Key)
	}
	if out[0].FinalScore != 96 || out[0].ContextualBoost != 1.2 {
		t.Errorf("recipe FinalScore = %d boost = %v, 期望 96 / 1.2", out[0].FinalScore, out[0].ContextualBoost)
	}
	if out[0].BaseScore != 80 {
		t.Error("BaseScore 不应被修改")
	}
	if len(out[0].Reasons) != 2 || out[0].Reasons[1] != "Perfecto para la hora de comer" {
		t.Errorf("提升时应追加规则解释: %v", out[0].Reasons)
	}
	if out[1].FinalScore != 90 || out[1].ContextualBoost != 1 {
		t.Errorf("未命中规则的结果不应变化: %+v", out[1])
	}
}

func TestContextBoostIdempotent(t *testing.T) {
	b := NewContextBooster(nil)
	recs := []*core.Recommendation{
		rec(core.ItemTypeRecipe, 1, 100, 0.9, "a"),
		rec(core.ItemTypePlace, 2, 70, 0.6, "b"),
		rec(core.ItemTypeSport, 3, 70, 0.7, "c"),
	}
	once := snapshot(b.Boost(recs, lunch))
	twice := snapshot(b.Boost(recs, lunch))
	for i := range once {
		if once[i].Key != twice[i].Key || once[i].FinalScore != twice[i].FinalScore || len(once[i].Reasons) != len(twice[i].Reasons) {
			t.Errorf("重复调权结果不同: %+v vs %+v", once[i], twice[i])
		}
	}
	if once[0].FinalScore != 100 {
		t.Errorf("FinalScore 应截断到 100, got %d", once[0].FinalScore)
	}
}

func TestContextBoostClamp(t *testing.T) {
	rules := dsl.MustCompile([]dsl.Rule{
		{Name: "a", When: "true", ItemType: core.ItemTypeCake, Weight: 1.4},
		{Name: "b", When: "true", ItemType: core.ItemTypeCake, Weight: 1.4},
		{Name: "c", When: "true", ItemType: core.ItemTypePhone, Weight: 0.5},
	})
	b := NewContextBooster(rules)
	if m, _ := b.Multiplier(lunch, core.ItemTypeCake); m != 1.5 {
		t.Errorf("乘数上限应为 1.5, got %v", m)
	}
	if m, _ := b.Multiplier(lunch, core.ItemTypePhone); m != 0.8 {
		t.Errorf("乘数下限应为 0.8, got %v", m)
	}
	if m, reasons := b.Multiplier(lunch, core.ItemTypeSport); m != 1 || len(reasons) != 0 {
		t.Errorf("未命中时乘数应为 1, got %v %v", m, reasons)
	}
}

func TestContextBoostReasonCap(t *testing.T) {
	b := NewContextBooster(nil)
	r := rec(core.ItemTypeRecipe, 1, 50, 0.5, "a", "b", "c")
	b.Boost([]*core.Recommendation{r}, lunch)
	if len(r.Reasons) != 3 {
		t.Errorf("解释条数不应超过上限: %v", r.Reasons)
	}
}

func TestContextBoosterNode(t *testing.T) {
	b := NewContextBooster(nil)
	recs := []*core.Recommendation{rec(core.ItemTypeRecipe, 1, 50, 0.5, "a")}
	out, err := b.Process(context.Background(), &core.RecommendContext{Context: lunch}, recs)
	if err != nil || out[0].FinalScore != 60 {
		t.Errorf("Process 结果错误: %v %+v", err, out[0])
	}
}

func TestTopNNode(t *testing.T) {
	recs := []*core.Recommendation{rec(core.ItemTypeRecipe, 1, 3, 0), rec(core.ItemTypeRecipe, 2, 2, 0), rec(core.ItemTypeRecipe, 3, 1, 0)}
	tests := []struct {
		name string
		node *TopNNode
		rctx *core.RecommendContext
		want int
	}{
		{"不截断", &TopNNode{N: 0}, nil, 3},
		{"截断", &TopNNode{N: 2}, nil, 2},
		{"N 大于长度", &TopNNode{N: 10}, nil, 3},
		{"使用请求条数", &TopNNode{N: 10, FromRequest: true}, &core.RecommendContext{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.node.Process(context.Background(), tt.rctx, recs)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != tt.want {
				t.Errorf("len = %d, 期望 %d", len(out), tt.want)
			}
		})
	}
}

func TestDiversity(t *testing.T) {
	in := []*core.Recommendation{
		rec(core.ItemTypeRecipe, 1, 100, 0.5, "a"),
		rec(core.ItemTypeRecipe, 2, 90, 0.5, "b"),
		rec(core.ItemTypeCake, 3, 85, 0.5, "c"),
		rec(core.ItemTypeRecipe, 4, 80, 0.5, "d"),
		rec(core.ItemTypeCake, 5, 70, 0.5, "e"),
	}
	cases := []struct {
		name string
		max  int
		want []int64
	}{
		{"每类最多 1 条", 1, []int64{1, 3}},
		{"每类最多 2 条", 2, []int64{1, 2, 3, 5}},
		{"不限制", 0, []int64{1, 2, 3, 4, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := (&Diversity{MaxPerType: tc.max}).Process(context.Background(), nil, in)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != len(tc.want) {
				t.Fatalf("期望 %d 条，实际 %d", len(tc.want), len(out))
			}
			for i, id := range tc.want {
				if out[i].Key.ID != id {
					t.Errorf("第 %d 条期望 id=%d，实际 %d", i, id, out[i].Key.ID)
				}
			}
		})
	}
}
