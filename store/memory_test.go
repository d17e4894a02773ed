package store

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/hybridrec/core"
)

func TestMemoryStore_GetSetTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v"), 10); err != nil {
		t.Fatalf("Set 失败: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	now = now.Add(11 * time.Second)
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("过期后应返回 ErrStoreNotFound，得到 %v", err)
	}

	if err := s.Set(ctx, "forever", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_ = s.Delete(ctx, "forever")
	if _, err := s.Get(ctx, "forever"); !core.IsStoreNotFound(err) {
		t.Errorf("删除后应返回 ErrStoreNotFound，得到 %v", err)
	}
}

func TestMemoryFeedbackStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFeedbackStore()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	key := core.ItemKey{Type: core.ItemTypeRecipe, ID: 42}

	err := s.AppendImpressions(ctx, []core.Impression{
		{ID: "a", UserID: "1", Key: key, Position: 1, ShownAt: base},
		{ID: "b", UserID: "1", Key: key, Position: 3, ShownAt: base.Add(time.Minute)},
		{ID: "c", UserID: "2", Key: key, Position: 2, ShownAt: base.Add(2 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("AppendImpressions 失败: %v", err)
	}

	tests := []struct {
		name   string
		user   string
		since  time.Time
		until  time.Time
		wantID string
	}{
		{name: "latest within window", user: "1", since: base, until: base.Add(time.Hour), wantID: "b"},
		{name: "other user", user: "2", since: base, until: base.Add(time.Hour), wantID: "c"},
		{name: "window excludes all", user: "1", since: base.Add(time.Hour), until: base.Add(2 * time.Hour), wantID: ""},
		{name: "until excludes later impression", user: "1", since: base, until: base.Add(30 * time.Second), wantID: "a"},
		{name: "unknown user", user: "9", since: base, until: base.Add(time.Hour), wantID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp, err := s.LatestImpression(ctx, tt.user, key, tt.since, tt.until)
			if err != nil {
				t.Fatal(err)
			}
			gotID := ""
			if imp != nil {
				gotID = imp.ID
			}
			if gotID != tt.wantID {
				t.Errorf("LatestImpression() = %q，期望 %q", gotID, tt.wantID)
			}
		})
	}

	period := core.Period{From: base, To: base.Add(2 * time.Minute)}
	imps, _ := s.ListImpressions(ctx, period)
	if len(imps) != 2 {
		t.Errorf("区间内曝光 %d 条，期望 2（右开区间）", len(imps))
	}

	_ = s.AppendClick(ctx, core.ClickEvent{ID: "x", UserID: "1", Key: key, ClickedAt: base.Add(30 * time.Second)})
	clicks, _ := s.ListClicks(ctx, period)
	if len(clicks) != 1 {
		t.Errorf("区间内点击 %d 条，期望 1", len(clicks))
	}
}

func TestMemoryInteractionStore_Window(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s := NewMemoryInteractionStore()
	s.Now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		s.Append(core.InteractionEvent{
			UserID:    "u",
			ItemType:  core.ItemTypeRecipe,
			ItemID:    int64(i),
			Kind:      core.EventView,
			Timestamp: now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}

	tests := []struct {
		name   string
		window core.Window
		want   []int64
	}{
		{name: "unbounded", window: core.Window{}, want: []int64{4, 3, 2, 1, 0}},
		{name: "count", window: core.Window{Count: 2}, want: []int64{1, 0}},
		{name: "span", window: core.Window{Span: 36 * time.Hour}, want: []int64{1, 0}},
		{name: "span and count", window: core.Window{Span: 72 * time.Hour, Count: 1}, want: []int64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryEvents(ctx, "u", tt.window)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("返回 %d 条，期望 %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ItemID != tt.want[i] {
					t.Errorf("第 %d 条 ItemID = %d，期望 %d", i, got[i].ItemID, tt.want[i])
				}
			}
		})
	}

	empty, err := s.QueryEvents(ctx, "nobody", core.DefaultWindow())
	if err != nil || len(empty) != 0 {
		t.Errorf("无事件用户应返回空切片，得到 %v, %v", empty, err)
	}
}

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog(
		&core.RecipeSummary{SummaryBase: core.SummaryBase{ID: 2, Nombre: "Paella"}},
		&core.RecipeSummary{SummaryBase: core.SummaryBase{ID: 1, Nombre: "Tortilla"}},
		&core.PhoneSummary{SummaryBase: core.SummaryBase{ID: 1, Nombre: "X1"}},
	)

	recipes, _ := c.ListItems(ctx, core.ItemTypeRecipe)
	if len(recipes) != 2 || recipes[0].Key().ID != 1 {
		t.Errorf("ListItems 应按 ID 升序返回 2 条菜谱，得到 %d", len(recipes))
	}

	key := core.ItemKey{Type: core.ItemTypePhone, ID: 1}
	if _, err := c.GetItemSummary(ctx, key); err != nil {
		t.Fatalf("GetItemSummary 失败: %v", err)
	}
	c.Remove(key)
	if _, err := c.GetItemSummary(ctx, key); !core.IsNotFound(err) {
		t.Errorf("下架后应返回 NOT_FOUND，得到 %v", err)
	}
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`[
		{"type": "recipe", "id": 1, "nombre": "Tarta de queso", "categoria": "postres", "popularity": 0.8},
		{"type": "phone", "id": 7, "nombre": "X1", "marca": "Acme", "precio": 299.9},
		{"type": "place", "id": 3, "ciudad": "Madrid", "tipo": "parque"}
	]`)
	items, err := ParseCatalog(data)
	if err != nil {
		t.Fatalf("ParseCatalog 失败: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("期望 3 条, 得到 %d", len(items))
	}
	r, ok := items[0].(*core.RecipeSummary)
	if !ok || r.Nombre != "Tarta de queso" || r.Base().Popularity != 0.8 {
		t.Errorf("菜谱解析错误: %+v", items[0])
	}
	if items[1].Key() != (core.ItemKey{Type: core.ItemTypePhone, ID: 7}) {
		t.Errorf("手机 key 错误: %v", items[1].Key())
	}

	bad := []struct {
		name string
		data string
	}{
		{"unknown type", `[{"type": "car", "id": 1}]`},
		{"missing id", `[{"type": "cake"}]`},
		{"not array", `{"type": "cake"}`},
	}
	for _, tt := range bad {
		if _, err := ParseCatalog([]byte(tt.data)); err == nil {
			t.Errorf("%s: 期望返回错误", tt.name)
		}
	}
}
