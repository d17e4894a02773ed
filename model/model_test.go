package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/store"
)

var fitTime = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func TestSnapshotProbability(t *testing.T) {
	s := &Snapshot{Bias: 0, Weights: map[string]float64{"a": 1}}
	tests := []struct {
		name     string
		features map[string]float64
		want     float64
	}{
		{"空特征", nil, 0.5},
		{"未知特征忽略", map[string]float64{"b": 10}, 0.5},
		{"正向", map[string]float64{"a": 2}, 1 / (1 + math.Exp(-2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Probability(tt.features)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Probability = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestHolderResolve(t *testing.T) {
	h := NewHolder(72 * time.Hour)

	s, reason := h.Resolve(fitTime)
	if reason != FallbackMissing || !s.IsNeutral() {
		t.Errorf("无快照时应回退中性权重, reason=%q", reason)
	}

	h.Store(&Snapshot{Version: "v1", FittedAt: fitTime, Weights: map[string]float64{}})
	s, reason = h.Resolve(fitTime.Add(time.Hour))
	if reason != FallbackNone || s.Version != "v1" {
		t.Errorf("新鲜快照应直接使用, version=%s reason=%q", s.Version, reason)
	}

	s, reason = h.Resolve(fitTime.Add(73 * time.Hour))
	if reason != FallbackStale || !s.IsNeutral() {
		t.Errorf("过期快照应回退, reason=%q", reason)
	}
}

func separableExamples(n int) []Example {
	out := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, Example{Features: map[string]float64{FeatureCategoryShare: 1, FeaturePopularity: 0.2}, Label: 1})
		} else {
			out = append(out, Example{Features: map[string]float64{FeatureCategoryShare: 0, FeaturePopularity: 0.2}, Label: 0})
		}
	}
	return out
}

func TestTrainerFit(t *testing.T) {
	tr := DefaultTrainer()

	if _, err := tr.Fit(separableExamples(10), fitTime); !errors.Is(err, ErrNotEnoughExamples) {
		t.Fatalf("样本不足应返回 ErrNotEnoughExamples, got %v", err)
	}

	snap, err := tr.Fit(separableExamples(100), fitTime)
	if err != nil {
		t.Fatalf("Fit 失败: %v", err)
	}
	if snap.Weights[FeatureCategoryShare] <= 0 {
		t.Errorf("正相关特征权重应为正: %v", snap.Weights)
	}
	pos := snap.Probability(map[string]float64{FeatureCategoryShare: 1, FeaturePopularity: 0.2})
	neg := snap.Probability(map[string]float64{FeatureCategoryShare: 0, FeaturePopularity: 0.2})
	if pos <= neg {
		t.Errorf("正样本概率应更高: pos=%v neg=%v", pos, neg)
	}
	if snap.Examples != 100 || !snap.FittedAt.Equal(fitTime) {
		t.Errorf("快照元信息错误: %+v", snap)
	}

	again, _ := tr.Fit(separableExamples(100), fitTime)
	if again.Weights[FeatureCategoryShare] != snap.Weights[FeatureCategoryShare] {
		t.Error("相同样本训练结果应一致")
	}
}

// mixedExamples 特征多、数值不规则，累加顺序不同就会产生浮点差异。
func mixedExamples(n int) []Example {
	out := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		f := map[string]float64{
			FeatureCategoryShare:  float64(i%7) / 7,
			FeaturePopularity:     0.1 + float64(i%5)*0.173,
			FeatureAttrSimilarity: float64(i%3) / 3.3,
			FeatureCategoryCount:  math.Log1p(float64(i % 11)),
		}
		if i%4 == 0 {
			f[FeastPrefix+"orders_30d"] = float64(i) / 13
		}
		out = append(out, Example{Features: f, Label: float64((i * 7) % 3 % 2)})
	}
	return out
}

func TestTrainerFitDeterministic(t *testing.T) {
	tr := DefaultTrainer()
	examples := mixedExamples(60)
	first, err := tr.Fit(examples, fitTime)
	if err != nil {
		t.Fatalf("Fit 失败: %v", err)
	}
	sample := map[string]float64{FeatureCategoryShare: 0.3, FeaturePopularity: 0.7, FeatureAttrSimilarity: 0.11, FeatureCategoryCount: 1.9}
	for i := 0; i < 30; i++ {
		got, err := tr.Fit(examples, fitTime)
		if err != nil {
			t.Fatal(err)
		}
		if math.Float64bits(got.Bias) != math.Float64bits(first.Bias) {
			t.Fatalf("第 %d 次训练偏置不一致: %v != %v", i, got.Bias, first.Bias)
		}
		for k, w := range first.Weights {
			if math.Float64bits(got.Weights[k]) != math.Float64bits(w) {
				t.Fatalf("第 %d 次训练权重 %s 不一致: %v != %v", i, k, got.Weights[k], w)
			}
		}
		if math.Float64bits(got.Probability(sample)) != math.Float64bits(first.Probability(sample)) {
			t.Fatalf("第 %d 次预测不一致", i)
		}
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ss := NewSnapshotStore(kv)
	ctx := context.Background()

	if _, err := ss.Load(ctx); !core.IsStoreNotFound(err) {
		t.Fatalf("空存储应返回 not found, got %v", err)
	}
	want := &Snapshot{Version: "v2", Bias: -1, Weights: map[string]float64{"x": 0.5}, FittedAt: fitTime, Examples: 60}
	if err := ss.Save(ctx, want); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	got, err := ss.Load(ctx)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if got.Version != want.Version || got.Weights["x"] != 0.5 || !got.FittedAt.Equal(fitTime) {
		t.Errorf("Load = %+v", got)
	}
}

func TestRefitOnce(t *testing.T) {
	fb := store.NewMemoryFeedbackStore()
	ctx := context.Background()

	var imps []core.Impression
	var clicks []core.ClickEvent
	for i := 0; i < 60; i++ {
		imp := core.Impression{
			ID:        fmt.Sprintf("imp-%d", i),
			UserID:    "u1",
			Key:       core.ItemKey{Type: core.ItemTypeRecipe, ID: int64(i)},
			Position:  1,
			Algorithm: core.AlgorithmML,
			ShownAt:   fitTime.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 0 {
			imp.Features = map[string]float64{FeatureCategoryShare: 1}
			clicks = append(clicks, core.ClickEvent{
				ID: fmt.Sprintf("c-%d", i), ImpressionID: imp.ID, UserID: "u1", Key: imp.Key,
				Attributed: true, ClickedAt: imp.ShownAt.Add(time.Second),
			})
		} else {
			imp.Features = map[string]float64{FeatureCategoryShare: 0}
		}
		imps = append(imps, imp)
	}
	if err := fb.AppendImpressions(ctx, imps); err != nil {
		t.Fatal(err)
	}
	for _, c := range clicks {
		if err := fb.AppendClick(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	kv := store.NewMemoryStore()
	defer kv.Close()
	holder := NewHolder(72 * time.Hour)
	r := &Refitter{
		Feedback:  fb,
		Holder:    holder,
		Snapshots: NewSnapshotStore(kv),
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fitTime.Add(2 * time.Hour) },
	}
	period := core.Period{From: fitTime, To: fitTime.Add(2 * time.Hour)}
	snap, err := r.RefitOnce(ctx, period)
	if err != nil {
		t.Fatalf("RefitOnce 失败: %v", err)
	}
	if holder.Load() != snap {
		t.Error("新快照应被原子发布")
	}
	if snap.Weights[FeatureCategoryShare] <= 0 {
		t.Errorf("点击相关特征权重应为正: %v", snap.Weights)
	}

	restored := &Refitter{Feedback: fb, Holder: NewHolder(0), Snapshots: NewSnapshotStore(kv), Logger: zerolog.Nop()}
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore 失败: %v", err)
	}
	if restored.Holder.Load() == nil || restored.Holder.Load().Version != snap.Version {
		t.Error("应从持久化存储恢复快照")
	}
}

func TestRefitOnceNotEnough(t *testing.T) {
	holder := NewHolder(0)
	prev := &Snapshot{Version: "keep"}
	holder.Store(prev)
	r := &Refitter{Feedback: store.NewMemoryFeedbackStore(), Holder: holder, Logger: zerolog.Nop()}

	_, err := r.RefitOnce(context.Background(), core.Period{From: fitTime, To: fitTime.Add(time.Hour)})
	if !errors.Is(err, ErrNotEnoughExamples) {
		t.Fatalf("期望 ErrNotEnoughExamples, got %v", err)
	}
	if holder.Load() != prev {
		t.Error("样本不足时不应替换当前快照")
	}
}
