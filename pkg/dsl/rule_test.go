package dsl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/hybridrec/core"
)

func TestRuleSet_Match(t *testing.T) {
	rs, err := Compile([]Rule{
		{Name: "lunch", When: "hour >= 12 && hour < 15", ItemType: core.ItemTypeRecipe, Weight: 1.5},
		{Name: "weekend", When: "weekend", ItemType: core.ItemTypePlace, Weight: 1.2},
		{Name: "mobile", When: `device == "mobile"`, ItemType: core.ItemTypePlace, Weight: 1.1},
	})
	if err != nil {
		t.Fatalf("编译失败: %v", err)
	}

	// 2026-10-19 是周一
	monday := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 10, 24, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rc   core.RequestContext
		want []string
	}{
		{name: "weekday lunch desktop", rc: core.NewRequestContext(monday, "desktop"), want: []string{"lunch"}},
		{name: "saturday morning mobile", rc: core.NewRequestContext(saturday, "mobile"), want: []string{"weekend", "mobile"}},
		{name: "weekday morning", rc: core.NewRequestContext(monday.Add(-4*time.Hour), ""), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rs.Match(tt.rc)
			if len(got) != len(tt.want) {
				t.Fatalf("命中 %d 条规则，期望 %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Name != tt.want[i] {
					t.Errorf("第 %d 条规则 = %s，期望 %s", i, got[i].Name, tt.want[i])
				}
			}
		})
	}

	if got := rs.MatchType(core.NewRequestContext(saturday, "mobile"), core.ItemTypePlace); len(got) != 2 {
		t.Errorf("MatchType(place) 命中 %d 条，期望 2", len(got))
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{name: "syntax error", rule: Rule{Name: "bad", When: "hour >=", ItemType: core.ItemTypeRecipe}},
		{name: "non bool", rule: Rule{Name: "int", When: "hour + 1", ItemType: core.ItemTypeRecipe}},
		{name: "unknown variable", rule: Rule{Name: "var", When: "minute > 3", ItemType: core.ItemTypeRecipe}},
		{name: "unknown item type", rule: Rule{Name: "type", When: "weekend", ItemType: "car"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile([]Rule{tt.rule}); err == nil {
				t.Errorf("期望编译失败")
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: lunch
    when: "hour >= 12 && hour < 15"
    item_type: recipe
    weight: 1.5
    reason: "Es hora de comer"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules 失败: %v", err)
	}
	if len(rules) != 1 || rules[0].ItemType != core.ItemTypeRecipe || rules[0].Weight != 1.5 {
		t.Errorf("解析结果不符: %+v", rules)
	}
	if _, err := Compile(rules); err != nil {
		t.Errorf("加载的规则应能编译: %v", err)
	}
}
